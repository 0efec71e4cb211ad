// Package messages keeps the turn transcript: narrator, character, and player
// messages, some of which are still streaming.
//
// A streaming message is addressed by an opaque Handle that is never reused.
// Finalizing is idempotent and freezes the text; later appends are ignored,
// so a late chunk can never resurrect a closed message.
package messages

import (
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/storyloom/internal/platform/id"
)

// Role says who authored a message.
type Role string

const (
	RoleNarrator  Role = "narrator"
	RoleCharacter Role = "character"
	RolePlayer    Role = "player"
)

// Handle addresses one message in the store.
type Handle string

// Message is one transcript entry.
type Message struct {
	Handle      Handle
	Role        Role
	CharacterID string
	Name        string
	Text        string
	IsFinalized bool
}

// Observer is told about every change after it is applied.
type Observer func(Message)

type entry struct {
	msg  Message
	text strings.Builder
}

// Store holds the transcript in display order.
type Store struct {
	mu       sync.Mutex
	order    []Handle
	entries  map[Handle]*entry
	newID    func() (string, error)
	observer Observer
}

// Option configures a Store.
type Option func(*Store)

// WithObserver registers fn to receive every change.
func WithObserver(fn Observer) Option {
	return func(s *Store) { s.observer = fn }
}

// WithIDGenerator overrides handle generation.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore returns an empty transcript.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries: map[Handle]*entry{},
		newID:   id.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates an empty, streaming message and returns its handle.
func (s *Store) Open(role Role, characterID, name string) (Handle, error) {
	s.mu.Lock()
	h, err := s.insertLocked(role, characterID, name, "", false)
	var snapshot Message
	if err == nil {
		snapshot = s.entries[h].snapshot()
	}
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.notify(snapshot)
	return h, nil
}

// AddFinalized appends a complete message in one step.
func (s *Store) AddFinalized(role Role, characterID, name, text string) (Handle, error) {
	s.mu.Lock()
	h, err := s.insertLocked(role, characterID, name, text, true)
	var snapshot Message
	if err == nil {
		snapshot = s.entries[h].snapshot()
	}
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.notify(snapshot)
	return h, nil
}

// Append adds text to a live message. It reports false, changing nothing,
// when h is unknown or already finalized.
func (s *Store) Append(h Handle, text string) bool {
	s.mu.Lock()
	e, ok := s.entries[h]
	if !ok || e.msg.IsFinalized {
		s.mu.Unlock()
		return false
	}
	e.text.WriteString(text)
	snapshot := e.snapshot()
	s.mu.Unlock()
	s.notify(snapshot)
	return true
}

// Finalize closes a live message. A non-nil fullText replaces the accumulated
// text. Finalizing an already finalized or unknown handle is a no-op and
// reports false.
func (s *Store) Finalize(h Handle, fullText *string) bool {
	s.mu.Lock()
	e, ok := s.entries[h]
	if !ok || e.msg.IsFinalized {
		s.mu.Unlock()
		return false
	}
	if fullText != nil {
		e.text.Reset()
		e.text.WriteString(*fullText)
	}
	e.msg.IsFinalized = true
	snapshot := e.snapshot()
	s.mu.Unlock()
	s.notify(snapshot)
	return true
}

// IsLive reports whether h names an open, streaming message.
func (s *Store) IsLive(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h]
	return ok && !e.msg.IsFinalized
}

// Get returns the message for h.
func (s *Store) Get(h Handle) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h]
	if !ok {
		return Message{}, false
	}
	return e.snapshot(), true
}

// Messages returns the transcript in display order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.order))
	for _, h := range s.order {
		out = append(out, s.entries[h].snapshot())
	}
	return out
}

// Clear empties the transcript. Handles issued before Clear stay invalid.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.entries = map[Handle]*entry{}
}

func (s *Store) insertLocked(role Role, characterID, name, text string, finalized bool) (Handle, error) {
	raw, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("open %s message: %w", role, err)
	}
	h := Handle(raw)
	if _, exists := s.entries[h]; exists {
		return "", fmt.Errorf("open %s message: duplicate handle %q", role, h)
	}
	e := &entry{msg: Message{
		Handle:      h,
		Role:        role,
		CharacterID: characterID,
		Name:        name,
		IsFinalized: finalized,
	}}
	e.text.WriteString(text)
	s.entries[h] = e
	s.order = append(s.order, h)
	return h, nil
}

func (s *Store) notify(m Message) {
	if s.observer != nil {
		s.observer(m)
	}
}

func (e *entry) snapshot() Message {
	m := e.msg
	m.Text = e.text.String()
	return m
}
