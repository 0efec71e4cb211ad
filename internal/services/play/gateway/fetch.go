package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/louisbranch/storyloom/internal/services/play/guard"
	"github.com/louisbranch/storyloom/internal/services/play/state"
)

// FetchLocation returns the player's current location.
func (c *Client) FetchLocation(ctx context.Context, key guard.SessionKey) (state.Location, error) {
	var out state.Location
	if err := c.call(ctx, http.MethodGet, c.sessionURL(key, "location"), nil, &out, true); err != nil {
		return state.Location{}, fmt.Errorf("fetch location: %w", err)
	}
	return out, nil
}

// FetchGameTime returns the in-world clock.
func (c *Client) FetchGameTime(ctx context.Context, key guard.SessionKey) (state.GameTime, error) {
	var out state.GameTime
	if err := c.call(ctx, http.MethodGet, c.sessionURL(key, "time"), nil, &out, true); err != nil {
		return state.GameTime{}, fmt.Errorf("fetch game time: %w", err)
	}
	return out, nil
}

// FetchParty returns the party roster.
func (c *Client) FetchParty(ctx context.Context, key guard.SessionKey) ([]state.PartyMember, error) {
	var out struct {
		Members []state.PartyMember `json:"members"`
	}
	if err := c.call(ctx, http.MethodGet, c.sessionURL(key, "party"), nil, &out, true); err != nil {
		return nil, fmt.Errorf("fetch party: %w", err)
	}
	return out.Members, nil
}

// FetchChapter returns story progress.
func (c *Client) FetchChapter(ctx context.Context, key guard.SessionKey) (state.Chapter, error) {
	var out state.Chapter
	if err := c.call(ctx, http.MethodGet, c.sessionURL(key, "progress"), nil, &out, true); err != nil {
		return state.Chapter{}, fmt.Errorf("fetch progress: %w", err)
	}
	return out, nil
}

// SessionStatus is the backend lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionPaused SessionStatus = "paused"
	SessionEnded  SessionStatus = "ended"
)

// SessionSummary describes one session in a world.
type SessionSummary struct {
	ID        string        `json:"id"`
	WorldID   string        `json:"world_id"`
	Title     string        `json:"title,omitempty"`
	Status    SessionStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Key returns the session key.
func (s SessionSummary) Key() guard.SessionKey {
	return guard.SessionKey{WorldID: s.WorldID, SessionID: s.ID}
}

// Resumable reports whether the session can continue.
func (s SessionSummary) Resumable() bool {
	return s.Status == SessionActive || s.Status == SessionPaused
}

// ListSessions returns the sessions of a world.
func (c *Client) ListSessions(ctx context.Context, worldID string) ([]SessionSummary, error) {
	var out struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	if err := c.call(ctx, http.MethodGet, c.url("worlds", worldID, "sessions"), nil, &out, true); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for i := range out.Sessions {
		if out.Sessions[i].WorldID == "" {
			out.Sessions[i].WorldID = worldID
		}
	}
	return out.Sessions, nil
}

// CreateSession starts a new session in a world. It is not retried.
func (c *Client) CreateSession(ctx context.Context, worldID string) (SessionSummary, error) {
	var out SessionSummary
	if err := c.call(ctx, http.MethodPost, c.url("worlds", worldID, "sessions"), struct{}{}, &out, false); err != nil {
		return SessionSummary{}, fmt.Errorf("create session: %w", err)
	}
	if out.WorldID == "" {
		out.WorldID = worldID
	}
	return out, nil
}

// RecoverSession asks the backend to reopen a session.
func (c *Client) RecoverSession(ctx context.Context, key guard.SessionKey) (SessionSummary, error) {
	var out SessionSummary
	if err := c.call(ctx, http.MethodPost, c.sessionURL(key, "recover"), struct{}{}, &out, true); err != nil {
		return SessionSummary{}, fmt.Errorf("recover session: %w", err)
	}
	if out.WorldID == "" {
		out.WorldID = key.WorldID
	}
	if out.ID == "" {
		out.ID = key.SessionID
	}
	return out, nil
}
