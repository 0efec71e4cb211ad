package router

import (
	"errors"
	"log"
	"sort"

	"github.com/louisbranch/storyloom/internal/services/play/guard"
	"github.com/louisbranch/storyloom/internal/services/play/mapgraph"
	"github.com/louisbranch/storyloom/internal/services/play/messages"
	"github.com/louisbranch/storyloom/internal/services/play/protocol"
	"github.com/louisbranch/storyloom/internal/services/play/state"
)

// Guard reports request currency and serializes commits against session
// switches.
type Guard interface {
	IsCurrent(id guard.RequestID, key guard.SessionKey) bool
	Commit(id guard.RequestID, key guard.SessionKey, fn func()) bool
}

// Transcript is the streaming message store.
type Transcript interface {
	Open(role messages.Role, characterID, name string) (messages.Handle, error)
	Append(h messages.Handle, text string) bool
	Finalize(h messages.Handle, fullText *string) bool
	AddFinalized(role messages.Role, characterID, name, text string) (messages.Handle, error)
}

// Reducer commits state deltas.
type Reducer interface {
	ApplyDelta(d state.Delta) *state.Snapshot
}

// MapObserver records location observations.
type MapObserver interface {
	Observe(loc state.Location, hint *mapgraph.Hint) mapgraph.Graph
}

// Diagnostics receives tool and dice side-channel events.
type Diagnostics interface {
	BeginTurn(turn uint64)
	RecordCall(turn uint64, call protocol.ToolCall)
	RecordTrace(turn uint64, trace protocol.ToolTrace)
	SetPendingRoll(r protocol.DiceResult)
}

// Notifier raises transient notifications.
type Notifier interface {
	TurnFailed(msg string)
	DispositionChanged(c protocol.DispositionChange)
}

// Deps are the stores a Router writes to. Map, Diagnostics and Notifier are
// optional.
type Deps struct {
	Guard       Guard
	Transcript  Transcript
	Reducer     Reducer
	Map         MapObserver
	Diagnostics Diagnostics
	Notifier    Notifier
}

// Options tunes routing behavior.
type Options struct {
	// InlineResponseFallback materializes turn_complete narration and
	// responses when the turn streamed none of its own.
	InlineResponseFallback bool
}

type handler func(*Router, *Turn, protocol.Event)

// Router dispatches stream events by type.
type Router struct {
	deps     Deps
	opts     Options
	handlers map[protocol.Type]handler
}

// New returns a router writing into deps.
func New(deps Deps, opts Options) (*Router, error) {
	if deps.Guard == nil {
		return nil, errors.New("request guard is required")
	}
	if deps.Transcript == nil {
		return nil, errors.New("transcript is required")
	}
	if deps.Reducer == nil {
		return nil, errors.New("state reducer is required")
	}
	r := &Router{deps: deps, opts: opts, handlers: map[protocol.Type]handler{}}
	on(r, (*Router).narratorStart)
	on(r, (*Router).narratorChunk)
	on(r, (*Router).narratorEnd)
	on(r, (*Router).characterStart)
	on(r, (*Router).characterChunk)
	on(r, (*Router).characterEnd)
	on(r, func(r *Router, t *Turn, e protocol.DialogueLine) { r.completeLine(t, e.CharacterID, e.Name, e.Text) })
	on(r, func(r *Router, t *Turn, e protocol.CharacterLine) { r.completeLine(t, e.CharacterID, e.Name, e.Text) })
	on(r, (*Router).toolCall)
	on(r, (*Router).toolTrace)
	on(r, (*Router).diceResult)
	on(r, (*Router).turnComplete)
	on(r, (*Router).turnError)
	return r, nil
}

// on registers a typed handler for E's event type.
func on[E protocol.Event](r *Router, fn func(*Router, *Turn, E)) {
	var zero E
	r.handlers[zero.Type()] = func(r *Router, t *Turn, evt protocol.Event) {
		if e, ok := evt.(E); ok {
			fn(r, t, e)
		}
	}
}

// HandledTypes returns the registered event types, sorted.
func (r *Router) HandledTypes() []protocol.Type {
	out := make([]protocol.Type, 0, len(r.handlers))
	for typ := range r.handlers {
		out = append(out, typ)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Begin starts routing for request id in session key.
func (r *Router) Begin(id guard.RequestID, key guard.SessionKey) *Turn {
	if r.deps.Diagnostics != nil {
		r.deps.Diagnostics.BeginTurn(uint64(id))
	}
	return &Turn{
		id:         id,
		session:    key,
		characters: map[string]messages.Handle{},
	}
}

// Handle applies evt to t. It reports whether the event was applied; events
// for finished or stale turns are dropped.
func (r *Router) Handle(t *Turn, evt protocol.Event) bool {
	if t == nil || evt == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.phase == PhaseDone {
		return false
	}
	if !r.deps.Guard.IsCurrent(t.id, t.session) {
		log.Printf("router: drop %s for stale request %d in %s", evt.Type(), t.id, t.session)
		return false
	}
	h, ok := r.handlers[evt.Type()]
	if !ok {
		return false
	}
	h(r, t, evt)
	return true
}

// Abort ends t without committing state, finalizing any open streams so no
// message is left live. It is a no-op on finished turns.
func (r *Router) Abort(t *Turn) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == PhaseDone {
		return
	}
	r.closeOpen(t)
	t.phase = PhaseDone
	t.outcome = OutcomeAborted
}

func (r *Router) narratorStart(t *Turn, _ protocol.NarratorStart) {
	if t.phase != PhaseIdle {
		log.Printf("router: ignore narrator_start in phase %s", t.phase)
		return
	}
	r.openNarrator(t)
}

func (r *Router) narratorChunk(t *Turn, e protocol.NarratorChunk) {
	if !e.Visible() {
		return
	}
	if t.phase == PhaseIdle {
		r.openNarrator(t)
	}
	if t.phase != PhaseNarratorOpen {
		return
	}
	r.deps.Transcript.Append(t.narrator, e.Text)
}

func (r *Router) narratorEnd(t *Turn, e protocol.NarratorEnd) {
	switch t.phase {
	case PhaseNarratorOpen:
		r.deps.Transcript.Finalize(t.narrator, e.FullText)
		t.narrator = ""
		t.phase = PhaseNarratorClosed
	case PhaseIdle:
		if e.FullText != nil && *e.FullText != "" {
			r.addFinalized(messages.RoleNarrator, "", "", *e.FullText)
			t.sawNarrator = true
		}
		t.phase = PhaseNarratorClosed
	}
}

func (r *Router) openNarrator(t *Turn) {
	h, err := r.deps.Transcript.Open(messages.RoleNarrator, "", "")
	if err != nil {
		log.Printf("router: open narrator message: %v", err)
		return
	}
	t.narrator = h
	t.sawNarrator = true
	t.phase = PhaseNarratorOpen
}

func (r *Router) characterStart(t *Turn, e protocol.CharacterStart) {
	if e.CharacterID == "" {
		return
	}
	t.sawCharacters = true
	if _, open := t.characters[e.CharacterID]; open {
		return
	}
	h, err := r.deps.Transcript.Open(messages.RoleCharacter, e.CharacterID, e.Name)
	if err != nil {
		log.Printf("router: open character %s message: %v", e.CharacterID, err)
		return
	}
	t.characters[e.CharacterID] = h
}

func (r *Router) characterChunk(t *Turn, e protocol.CharacterChunk) {
	h, open := t.characters[e.CharacterID]
	if !open {
		log.Printf("router: chunk for unopened character %q", e.CharacterID)
		return
	}
	r.deps.Transcript.Append(h, e.Text)
}

func (r *Router) characterEnd(t *Turn, e protocol.CharacterEnd) {
	h, open := t.characters[e.CharacterID]
	if !open {
		if e.FullText != nil && *e.FullText != "" && e.CharacterID != "" {
			r.addFinalized(messages.RoleCharacter, e.CharacterID, "", *e.FullText)
			t.sawCharacters = true
		}
		return
	}
	r.deps.Transcript.Finalize(h, e.FullText)
	delete(t.characters, e.CharacterID)
}

func (r *Router) completeLine(t *Turn, characterID, name, text string) {
	if characterID == "" || text == "" {
		log.Printf("router: skip empty line for %q in request %d", characterID, t.id)
		return
	}
	t.sawCharacters = true
	r.addFinalized(messages.RoleCharacter, characterID, name, text)
}

func (r *Router) toolCall(t *Turn, e protocol.ToolCall) {
	if r.deps.Diagnostics != nil {
		r.deps.Diagnostics.RecordCall(uint64(t.id), e)
	}
	if e.DispositionChange != nil && r.deps.Notifier != nil {
		r.deps.Notifier.DispositionChanged(*e.DispositionChange)
	}
}

func (r *Router) toolTrace(t *Turn, e protocol.ToolTrace) {
	if r.deps.Diagnostics != nil {
		r.deps.Diagnostics.RecordTrace(uint64(t.id), e)
	}
}

func (r *Router) diceResult(_ *Turn, e protocol.DiceResult) {
	if r.deps.Diagnostics != nil {
		r.deps.Diagnostics.SetPendingRoll(e)
	}
}

func (r *Router) turnComplete(t *Turn, e protocol.TurnComplete) {
	r.closeOpen(t)

	committed := r.deps.Guard.Commit(t.id, t.session, func() {
		if r.opts.InlineResponseFallback {
			r.materializeInline(t, e)
		}
		r.deps.Reducer.ApplyDelta(e.Delta)
		if loc, ok := e.Delta.Location.Get(); ok && r.deps.Map != nil {
			r.deps.Map.Observe(loc, hintFrom(e))
		}
	})

	t.phase = PhaseDone
	if !committed {
		log.Printf("router: drop turn_complete for request %d in %s after switch", t.id, t.session)
		t.outcome = OutcomeAborted
		return
	}
	t.outcome = OutcomeCompleted
}

func (r *Router) turnError(t *Turn, e protocol.TurnError) {
	r.closeOpen(t)
	if r.deps.Notifier != nil {
		r.deps.Notifier.TurnFailed(e.Message)
	}
	t.failure = e.Message
	t.phase = PhaseDone
	t.outcome = OutcomeFailed
}

// materializeInline adds turn_complete's inline narration and responses for
// the parts of the turn that produced no stream of their own.
func (r *Router) materializeInline(t *Turn, e protocol.TurnComplete) {
	if !t.sawNarrator && e.Narration != "" {
		log.Printf("router: request %d used inline narration", t.id)
		r.addFinalized(messages.RoleNarrator, "", "", e.Narration)
		t.sawNarrator = true
	}
	if t.sawCharacters || len(e.Responses) == 0 {
		return
	}
	log.Printf("router: request %d used %d inline responses", t.id, len(e.Responses))
	for _, resp := range e.Responses {
		if resp.Text == "" {
			continue
		}
		r.addFinalized(messages.RoleCharacter, resp.CharacterID, resp.Name, resp.Text)
	}
	t.sawCharacters = true
}

// closeOpen finalizes the narrator and every open character stream with
// their accumulated text.
func (r *Router) closeOpen(t *Turn) {
	if t.phase == PhaseNarratorOpen {
		r.deps.Transcript.Finalize(t.narrator, nil)
		t.narrator = ""
		t.phase = PhaseNarratorClosed
	}
	ids := make([]string, 0, len(t.characters))
	for id := range t.characters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r.deps.Transcript.Finalize(t.characters[id], nil)
		delete(t.characters, id)
	}
}

func (r *Router) addFinalized(role messages.Role, characterID, name, text string) {
	if _, err := r.deps.Transcript.AddFinalized(role, characterID, name, text); err != nil {
		log.Printf("router: add %s message: %v", role, err)
	}
}

func hintFrom(e protocol.TurnComplete) *mapgraph.Hint {
	if e.AvailableLocationIDs == nil && !e.AllUnlocked {
		return nil
	}
	hint := &mapgraph.Hint{AllUnlocked: e.AllUnlocked}
	if e.AvailableLocationIDs != nil {
		hint.AvailableIDs = append([]string{}, (*e.AvailableLocationIDs)...)
	}
	return hint
}
