// Package storage defines persistence contracts for play client state.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// SessionIdentity remembers which session the player last used in a world.
type SessionIdentity struct {
	WorldID   string
	SessionID string
	UpdatedAt time.Time
}

// IdentityStore persists session identities so a restart resumes the same
// session.
type IdentityStore interface {
	GetSessionIdentity(ctx context.Context, worldID string) (SessionIdentity, error)
	PutSessionIdentity(ctx context.Context, identity SessionIdentity) error
	DeleteSessionIdentity(ctx context.Context, worldID string) error
	ListSessionIdentities(ctx context.Context) ([]SessionIdentity, error)
}
