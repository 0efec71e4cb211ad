// Package guard decides whether work belonging to a turn request is still
// wanted.
//
// Each session keeps a strictly increasing request counter. Starting a turn
// supersedes the previous one in the same session, switching sessions
// supersedes everything in the old one, and an explicit Cancel aborts the
// live request. The request context carries the reason as its cancellation
// cause, so the turn runner can tell a user cancel from a timeout.
package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrCancelled is the cause when the player cancels the live turn.
	ErrCancelled = errors.New("turn cancelled")
	// ErrSuperseded is the cause when a newer turn starts in the same session.
	ErrSuperseded = errors.New("turn superseded by a newer request")
	// ErrSessionChanged is the cause when the live session switches.
	ErrSessionChanged = errors.New("session changed")

	errFinished = errors.New("turn finished")
)

// RequestID identifies one turn request within a session.
type RequestID uint64

// SessionKey identifies a session in a world.
type SessionKey struct {
	WorldID   string
	SessionID string
}

// IsZero reports whether no session is identified.
func (k SessionKey) IsZero() bool {
	return k.WorldID == "" && k.SessionID == ""
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s", k.WorldID, k.SessionID)
}

type sessionSlot struct {
	latest RequestID
	active RequestID
	cancel context.CancelCauseFunc
}

// Guard tracks the live session and its in-flight request.
type Guard struct {
	mu       sync.Mutex
	live     SessionKey
	sessions map[SessionKey]*sessionSlot
}

// New returns a guard with no live session.
func New() *Guard {
	return &Guard{sessions: map[SessionKey]*sessionSlot{}}
}

// SetSession makes key the live session. Any request in flight for the
// previous session is cancelled with ErrSessionChanged.
func (g *Guard) SetSession(key SessionKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setLive(key)
}

// Switch makes key the live session and runs reset before any pending
// Commit or WhileLive can observe the new session. reset must not call back
// into the guard.
func (g *Guard) Switch(key SessionKey, reset func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setLive(key)
	if reset != nil {
		reset()
	}
}

func (g *Guard) setLive(key SessionKey) {
	if key == g.live {
		return
	}
	if slot, ok := g.sessions[g.live]; ok {
		slot.abort(ErrSessionChanged)
	}
	g.live = key
}

// LiveSession returns the current live session key.
func (g *Guard) LiveSession() SessionKey {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live
}

// BeginTurn allocates the next request id for key and returns a context that
// ends when the request is superseded, cancelled, or its session stops being
// live. The previous request in the same session is cancelled with
// ErrSuperseded.
func (g *Guard) BeginTurn(parent context.Context, key SessionKey) (RequestID, context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	slot, ok := g.sessions[key]
	if !ok {
		slot = &sessionSlot{}
		g.sessions[key] = slot
	}
	slot.abort(ErrSuperseded)

	slot.latest++
	ctx, cancel := context.WithCancelCause(parent)
	slot.active = slot.latest
	slot.cancel = cancel
	if key != g.live {
		cancel(ErrSessionChanged)
	}
	return slot.latest, ctx
}

// IsCurrent reports whether id is the newest request of key and key is the
// live session.
func (g *Guard) IsCurrent(id RequestID, key SessionKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isCurrent(id, key)
}

// Commit runs fn only if id is still the current request of the live
// session key, and reports whether it ran. No session switch or newer turn
// can interleave with fn. fn must not call back into the guard.
func (g *Guard) Commit(id RequestID, key SessionKey, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.isCurrent(id, key) {
		return false
	}
	fn()
	return true
}

// WhileLive runs fn only if key is the live session, and reports whether it
// ran. fn must not call back into the guard.
func (g *Guard) WhileLive(key SessionKey, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if key != g.live {
		return false
	}
	fn()
	return true
}

func (g *Guard) isCurrent(id RequestID, key SessionKey) bool {
	if key != g.live {
		return false
	}
	slot, ok := g.sessions[key]
	return ok && slot.latest == id
}

// Cancel aborts the live session's in-flight request. It reports whether a
// request was cancelled.
func (g *Guard) Cancel() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.sessions[g.live]
	if !ok || slot.cancel == nil {
		return false
	}
	slot.abort(ErrCancelled)
	return true
}

// Finish releases the context of request id once its turn has ended. It is a
// no-op when id is no longer the active request.
func (g *Guard) Finish(id RequestID, key SessionKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.sessions[key]
	if !ok || slot.active != id {
		return
	}
	slot.abort(errFinished)
}

// Active reports whether the live session has a request in flight.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.sessions[g.live]
	return ok && slot.cancel != nil
}

func (s *sessionSlot) abort(cause error) {
	if s.cancel == nil {
		return
	}
	s.cancel(cause)
	s.cancel = nil
	s.active = 0
}

// IsCancellation reports whether ctx ended because its request was cancelled,
// superseded, or orphaned by a session switch. Timeouts are not cancellations.
func IsCancellation(ctx context.Context) bool {
	if ctx == nil || ctx.Err() == nil {
		return false
	}
	cause := context.Cause(ctx)
	return errors.Is(cause, ErrCancelled) ||
		errors.Is(cause, ErrSuperseded) ||
		errors.Is(cause, ErrSessionChanged)
}
