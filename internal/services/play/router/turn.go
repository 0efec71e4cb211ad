package router

import (
	"sync"

	"github.com/louisbranch/storyloom/internal/services/play/guard"
	"github.com/louisbranch/storyloom/internal/services/play/messages"
)

// Phase is the narrator lifecycle of a turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseNarratorOpen
	PhaseNarratorClosed
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseNarratorOpen:
		return "narrator_open"
	case PhaseNarratorClosed:
		return "narrator_closed"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome is how a turn ended.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeCompleted
	OutcomeFailed
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Turn is the routing state of one request.
type Turn struct {
	mu      sync.Mutex
	id      guard.RequestID
	session guard.SessionKey

	phase   Phase
	outcome Outcome
	failure string

	narrator      messages.Handle
	sawNarrator   bool
	characters    map[string]messages.Handle
	sawCharacters bool
}

// ID returns the request id the turn belongs to.
func (t *Turn) ID() guard.RequestID { return t.id }

// Session returns the session the turn belongs to.
func (t *Turn) Session() guard.SessionKey { return t.session }

// Phase returns the current narrator phase.
func (t *Turn) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Outcome returns how the turn ended, or OutcomePending.
func (t *Turn) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Done reports whether the turn reached a terminal state.
func (t *Turn) Done() bool {
	return t.Phase() == PhaseDone
}

// Failure returns the backend message of a failed turn.
func (t *Turn) Failure() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}
