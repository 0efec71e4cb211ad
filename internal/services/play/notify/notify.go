// Package notify turns turn outcomes into transient, localized notifications
// for the player.
package notify

import (
	stderrors "errors"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/text/message"

	apperrors "github.com/louisbranch/storyloom/internal/platform/errors"
	"github.com/louisbranch/storyloom/internal/platform/id"
	"github.com/louisbranch/storyloom/internal/services/play/protocol"
)

// Kind classifies a notification for presentation.
type Kind string

const (
	KindError       Kind = "error"
	KindInfo        Kind = "info"
	KindDisposition Kind = "disposition"
)

// Metadata keys read from platform errors.
const (
	MetaStatus  = "status"
	MetaMessage = "message"
)

// Notification is one transient message.
type Notification struct {
	ID        string
	Kind      Kind
	Code      apperrors.Code
	Text      string
	Retryable bool
	At        time.Time
}

// Sink receives notifications.
type Sink interface {
	Notify(Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notification)

// Notify calls f.
func (f SinkFunc) Notify(n Notification) { f(n) }

// Notifier formats and emits notifications. A nil *Notifier drops them.
type Notifier struct {
	printer *message.Printer
	sink    Sink
	clock   func() time.Time
}

// New returns a notifier printing through printer into sink.
func New(printer *message.Printer, sink Sink) *Notifier {
	return &Notifier{printer: printer, sink: sink, clock: time.Now}
}

// Error emits the user-facing notification for a classified failure.
func (n *Notifier) Error(err error) {
	if n == nil || err == nil {
		return
	}
	code := apperrors.GetCode(err)
	var domainErr *apperrors.Error
	var meta map[string]string
	if stderrors.As(err, &domainErr) {
		meta = domainErr.Metadata
	}

	var text string
	switch code {
	case apperrors.CodeTransportTimeout:
		text = n.printer.Sprintf("notify.timeout")
	case apperrors.CodeTransportStatus:
		status, _ := strconv.Atoi(meta[MetaStatus])
		text = n.printer.Sprintf("notify.transport_status", status)
	case apperrors.CodeStreamIncomplete:
		text = n.printer.Sprintf("notify.stream_incomplete")
	case apperrors.CodeTurnFailed:
		text = n.printer.Sprintf("notify.turn_failed", meta[MetaMessage])
	case apperrors.CodeSessionMissing:
		text = n.printer.Sprintf("notify.session_missing")
	default:
		detail := err.Error()
		if domainErr != nil && domainErr.Cause != nil {
			detail = domainErr.Cause.Error()
		}
		text = n.printer.Sprintf("notify.transport_failed", detail)
	}
	n.emit(Notification{Kind: KindError, Code: code, Text: text, Retryable: code.Retryable()})
}

// TurnFailed reports a backend turn_error.
func (n *Notifier) TurnFailed(msg string) {
	n.Error(apperrors.WithMetadata(apperrors.CodeTurnFailed, "turn error event", map[string]string{MetaMessage: msg}))
}

// DispositionChanged reports a relationship shift.
func (n *Notifier) DispositionChanged(c protocol.DispositionChange) {
	if n == nil {
		return
	}
	who := c.Name
	if who == "" {
		who = c.CharacterID
	}
	n.emit(Notification{
		Kind: KindDisposition,
		Text: n.printer.Sprintf("notify.disposition_changed", who, c.Approval, c.Trust, c.Fear, c.Romance),
	})
}

// Info emits an informational catalog message.
func (n *Notifier) Info(key string, args ...any) {
	if n == nil {
		return
	}
	n.emit(Notification{Kind: KindInfo, Text: n.printer.Sprintf(key, args...)})
}

func (n *Notifier) emit(note Notification) {
	if n.sink == nil {
		return
	}
	nid, err := id.NewID()
	if err != nil {
		log.Printf("notify: generate id: %v", err)
	}
	note.ID = nid
	note.At = n.clock()
	n.sink.Notify(note)
}

// Recorder is a Sink that keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify records note.
func (r *Recorder) Notify(note Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, note)
}

// Notifications returns the recorded notifications in order.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}
