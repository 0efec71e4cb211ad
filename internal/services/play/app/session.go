package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/storyloom/internal/services/play/gateway"
	"github.com/louisbranch/storyloom/internal/services/play/guard"
	"github.com/louisbranch/storyloom/internal/services/play/state"
	"github.com/louisbranch/storyloom/internal/services/play/storage"
)

// Resume makes a session live, picking the first of: the configured session
// id, the identity remembered for the world, the most recently updated
// resumable session on the backend, or a new session.
func (a *App) Resume(ctx context.Context) (guard.SessionKey, error) {
	worldID := a.cfg.WorldID

	if id := strings.TrimSpace(a.cfg.SessionID); id != "" {
		key := guard.SessionKey{WorldID: worldID, SessionID: id}
		if _, err := a.client.RecoverSession(ctx, key); err != nil {
			return guard.SessionKey{}, err
		}
		return key, a.SwitchSession(ctx, key)
	}

	identity, err := a.identities.GetSessionIdentity(ctx, worldID)
	switch {
	case err == nil:
		key := guard.SessionKey{WorldID: identity.WorldID, SessionID: identity.SessionID}
		_, err := a.client.RecoverSession(ctx, key)
		if err == nil {
			return key, a.SwitchSession(ctx, key)
		}
		if !isGone(err) {
			return guard.SessionKey{}, err
		}
		log.Printf("play: remembered session %s is gone, forgetting it", key)
		if err := a.identities.DeleteSessionIdentity(ctx, worldID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return guard.SessionKey{}, err
		}
	case !errors.Is(err, storage.ErrNotFound):
		return guard.SessionKey{}, err
	}

	sessions, err := a.client.ListSessions(ctx, worldID)
	if err != nil {
		return guard.SessionKey{}, err
	}
	if summary, ok := latestResumable(sessions); ok {
		if _, err := a.client.RecoverSession(ctx, summary.Key()); err != nil {
			return guard.SessionKey{}, err
		}
		return summary.Key(), a.SwitchSession(ctx, summary.Key())
	}

	created, err := a.client.CreateSession(ctx, worldID)
	if err != nil {
		return guard.SessionKey{}, err
	}
	return created.Key(), a.SwitchSession(ctx, created.Key())
}

// NewSession creates a fresh session in the configured world and switches
// to it.
func (a *App) NewSession(ctx context.Context) (guard.SessionKey, error) {
	created, err := a.client.CreateSession(ctx, a.cfg.WorldID)
	if err != nil {
		return guard.SessionKey{}, err
	}
	return created.Key(), a.SwitchSession(ctx, created.Key())
}

// Sessions lists the configured world's sessions, most recent first.
func (a *App) Sessions(ctx context.Context) ([]gateway.SessionSummary, error) {
	sessions, err := a.client.ListSessions(ctx, a.cfg.WorldID)
	if err != nil {
		return nil, err
	}
	sortByRecency(sessions)
	return sessions, nil
}

// SwitchSession makes key the live session. Runtime state of the previous
// session is discarded, the identity is remembered and the new session's
// state is fetched.
func (a *App) SwitchSession(ctx context.Context, key guard.SessionKey) error {
	if key.WorldID == "" || key.SessionID == "" {
		return errors.New("session key is required")
	}
	a.guard.Switch(key, func() {
		a.reducer.Reset()
		a.graph.Reset()
		a.transcript.Clear()
		a.overlay.Reset()
	})

	if err := a.identities.PutSessionIdentity(ctx, storage.SessionIdentity{
		WorldID:   key.WorldID,
		SessionID: key.SessionID,
	}); err != nil {
		return fmt.Errorf("remember session: %w", err)
	}
	a.notifier.Info("notify.session_switched", key.SessionID)
	return a.Rehydrate(ctx)
}

// Rehydrate fetches location, time, party and chapter progress in parallel
// and applies whatever arrived. Results are discarded if the live session
// changed meanwhile. A partial failure is reported to the player and
// returned.
func (a *App) Rehydrate(ctx context.Context) error {
	key := a.guard.LiveSession()
	if key.IsZero() {
		return errors.New("no live session")
	}

	var (
		loc      *state.Location
		clock    *state.GameTime
		party    []state.PartyMember
		gotParty bool
		chapter  *state.Chapter
	)
	var g errgroup.Group
	g.Go(func() error {
		v, err := a.client.FetchLocation(ctx, key)
		if err != nil {
			return err
		}
		loc = &v
		return nil
	})
	g.Go(func() error {
		v, err := a.client.FetchGameTime(ctx, key)
		if err != nil {
			return err
		}
		clock = &v
		return nil
	})
	g.Go(func() error {
		v, err := a.client.FetchParty(ctx, key)
		if err != nil {
			return err
		}
		party, gotParty = v, true
		return nil
	})
	g.Go(func() error {
		v, err := a.client.FetchChapter(ctx, key)
		if err != nil {
			return err
		}
		chapter = &v
		return nil
	})
	err := g.Wait()

	applied := a.guard.WhileLive(key, func() {
		if loc != nil {
			a.reducer.SetLocation(*loc)
			a.graph.Observe(*loc, nil)
		}
		if clock != nil {
			a.reducer.SetGameTime(*clock)
		}
		if gotParty {
			a.reducer.SetParty(party)
		}
		if chapter != nil {
			a.reducer.SetChapter(*chapter)
		}
	})
	if !applied {
		log.Printf("play: drop rehydration of %s after session switch", key)
		return nil
	}
	if err != nil {
		a.notifier.Info("notify.rehydrate_failed", err.Error())
		return fmt.Errorf("rehydrate %s: %w", key, err)
	}
	return nil
}

func latestResumable(sessions []gateway.SessionSummary) (gateway.SessionSummary, bool) {
	sortByRecency(sessions)
	for _, s := range sessions {
		if s.Resumable() && s.ID != "" {
			return s, true
		}
	}
	return gateway.SessionSummary{}, false
}

func sortByRecency(sessions []gateway.SessionSummary) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}

func isGone(err error) bool {
	var statusErr *gateway.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusGone
}
