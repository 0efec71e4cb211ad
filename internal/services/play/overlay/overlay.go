// Package overlay holds turn diagnostics that sit beside the transcript: the
// tool ledger and the dice roll waiting to be shown.
package overlay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/louisbranch/storyloom/internal/services/play/protocol"
)

// maxLedgerEntries bounds the ledger of a single turn.
const maxLedgerEntries = 200

// EntryKind distinguishes ledger entries.
type EntryKind string

const (
	EntryCall  EntryKind = "call"
	EntryTrace EntryKind = "trace"
)

// Entry is one ledger line.
type Entry struct {
	Kind      EntryKind
	Tool      string
	Arguments json.RawMessage
	Message   string
	Duration  time.Duration
	At        time.Time
}

// Overlay is safe for concurrent use. A nil *Overlay ignores writes.
type Overlay struct {
	mu      sync.Mutex
	turn    uint64
	ledger  []Entry
	pending *protocol.DiceResult
	clock   func() time.Time
}

// New returns an empty overlay.
func New() *Overlay {
	return &Overlay{clock: time.Now}
}

// BeginTurn clears the ledger for a new turn. The pending roll survives
// until it is taken.
func (o *Overlay) BeginTurn(turn uint64) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turn = turn
	o.ledger = nil
}

// RecordCall appends a tool call entry for turn.
func (o *Overlay) RecordCall(turn uint64, call protocol.ToolCall) {
	o.record(turn, Entry{
		Kind:      EntryCall,
		Tool:      call.Tool,
		Arguments: append(json.RawMessage(nil), call.Arguments...),
	})
}

// RecordTrace appends a tool trace entry for turn.
func (o *Overlay) RecordTrace(turn uint64, trace protocol.ToolTrace) {
	o.record(turn, Entry{
		Kind:     EntryTrace,
		Tool:     trace.Tool,
		Message:  trace.Message,
		Duration: time.Duration(trace.DurationMS) * time.Millisecond,
	})
}

func (o *Overlay) record(turn uint64, e Entry) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if turn != o.turn {
		return
	}
	if len(o.ledger) >= maxLedgerEntries {
		o.ledger = o.ledger[1:]
	}
	e.At = o.clock()
	o.ledger = append(o.ledger, e)
}

// Ledger returns the current turn's entries in arrival order.
func (o *Overlay) Ledger() []Entry {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Entry(nil), o.ledger...)
}

// SetPendingRoll stores the roll to animate, replacing any unconsumed one.
func (o *Overlay) SetPendingRoll(r protocol.DiceResult) {
	if o == nil {
		return
	}
	r.Rolls = append([]int(nil), r.Rolls...)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = &r
}

// TakePendingRoll returns and clears the pending roll.
func (o *Overlay) TakePendingRoll() (protocol.DiceResult, bool) {
	if o == nil {
		return protocol.DiceResult{}, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return protocol.DiceResult{}, false
	}
	r := *o.pending
	o.pending = nil
	return r, true
}

// Reset drops ledger and pending roll, as on a session switch.
func (o *Overlay) Reset() {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turn = 0
	o.ledger = nil
	o.pending = nil
}
