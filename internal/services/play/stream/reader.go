// Package stream turns a server-sent-event byte stream into protocol events.
//
// Framing follows the SSE subset the backend emits: each record is one or
// more "data:" lines terminated by a blank line, multiple data lines join
// with a newline, and lines starting with ":" are comments. Other SSE fields
// are ignored. A record pending when the stream ends is still dispatched.
// Records that fail to decode, or that contain a line longer than the line
// limit, are dropped without aborting the stream.
package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/louisbranch/storyloom/internal/services/play/protocol"
)

const (
	initialBufferSize = 64 * 1024
	maxRecordLine     = 2 * 1024 * 1024
)

// ErrStop ends Read early without error when returned from a Handler.
var ErrStop = errors.New("stop reading stream")

// ErrRecordTooLarge is reported to the drop handler for records holding a
// line over the line limit.
var ErrRecordTooLarge = errors.New("record line exceeds size limit")

// Handler receives each decoded event in arrival order.
type Handler func(protocol.Event) error

// DropFunc observes records discarded because they failed to decode.
type DropFunc func(payload string, err error)

type options struct {
	onDrop DropFunc
}

// Option configures Read.
type Option func(*options)

// WithDropHandler replaces the default logging of dropped records.
func WithDropHandler(fn DropFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onDrop = fn
		}
	}
}

// Read consumes r until EOF, cancellation, or a Handler error.
//
// When r is also an io.Closer it is closed on cancellation, which unblocks
// a pending read. Read returns nil at EOF and after ErrStop, and the context
// cause when ctx ends first.
func Read(ctx context.Context, r io.Reader, handle Handler, opts ...Option) error {
	if r == nil {
		return errors.New("stream reader is required")
	}
	if handle == nil {
		return errors.New("stream handler is required")
	}
	o := options{onDrop: logDrop}
	for _, opt := range opts {
		opt(&o)
	}

	if closer, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	lines := &lineReader{r: bufio.NewReaderSize(r, initialBufferSize), max: maxRecordLine}

	var (
		data      []string
		oversized bool
	)
	dispatch := func() error {
		if oversized {
			oversized = false
			data = data[:0]
			o.onDrop("", ErrRecordTooLarge)
			return nil
		}
		if len(data) == 0 {
			return nil
		}
		payload := strings.Join(data, "\n")
		data = data[:0]
		evt, err := protocol.Decode([]byte(payload))
		if err != nil {
			o.onDrop(payload, err)
			return nil
		}
		return handle(evt)
	}

	for {
		line, tooLong, err := lines.next()
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch {
		case tooLong:
			oversized = true
		case line == "":
			if err := dispatch(); err != nil {
				return stopErr(err)
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			value := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
	return stopErr(dispatch())
}

// lineReader yields lines without their terminator. A line longer than max
// is consumed in full but its content is discarded.
type lineReader struct {
	r   *bufio.Reader
	max int
	buf []byte
}

func (l *lineReader) next() (string, bool, error) {
	l.buf = l.buf[:0]
	tooLong := false
	for {
		chunk, err := l.r.ReadSlice('\n')
		if !tooLong {
			if len(l.buf)+len(chunk) > l.max {
				tooLong = true
				l.buf = l.buf[:0]
			} else {
				l.buf = append(l.buf, chunk...)
			}
		}
		switch {
		case err == nil:
			return trimEOL(l.buf), tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
		case errors.Is(err, io.EOF) && (len(l.buf) > 0 || tooLong):
			return trimEOL(l.buf), tooLong, nil
		default:
			return "", false, err
		}
	}
}

func trimEOL(b []byte) string {
	line := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(line, "\r")
}

func stopErr(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func logDrop(payload string, err error) {
	if len(payload) > 120 {
		payload = payload[:120] + "..."
	}
	log.Printf("stream: drop record: %v: %s", err, payload)
}
