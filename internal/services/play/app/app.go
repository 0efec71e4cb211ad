// Package app wires the play client runtime: backend gateway, session
// identity storage, the streaming stores and the turn runner.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/storyloom/internal/platform/i18n"
	"github.com/louisbranch/storyloom/internal/services/play/gateway"
	"github.com/louisbranch/storyloom/internal/services/play/guard"
	"github.com/louisbranch/storyloom/internal/services/play/mapgraph"
	"github.com/louisbranch/storyloom/internal/services/play/messages"
	"github.com/louisbranch/storyloom/internal/services/play/notify"
	"github.com/louisbranch/storyloom/internal/services/play/overlay"
	"github.com/louisbranch/storyloom/internal/services/play/router"
	"github.com/louisbranch/storyloom/internal/services/play/state"
	"github.com/louisbranch/storyloom/internal/services/play/storage"
	playsqlite "github.com/louisbranch/storyloom/internal/services/play/storage/sqlite"
	"github.com/louisbranch/storyloom/internal/services/play/turn"
)

// Config holds the runtime settings of the play client.
type Config struct {
	BackendURL string
	WorldID    string
	// SessionID pins a session instead of resuming the remembered one.
	SessionID              string
	DBPath                 string
	Locale                 string
	TurnTimeout            time.Duration
	FetchTimeout           time.Duration
	FetchAttempts          uint
	InlineResponseFallback bool
	MapNodeCeiling         int
}

// App is a running play client bound to one world.
type App struct {
	cfg Config

	client     *gateway.Client
	identities storage.IdentityStore
	closeStore func() error

	guard      *guard.Guard
	transcript *messages.Store
	reducer    *state.Reducer
	graph      *mapgraph.Builder
	overlay    *overlay.Overlay
	notifier   *notify.Notifier
	router     *router.Router
	runner     *turn.Runner

	outMu sync.Mutex
	out   io.Writer
}

// New builds an App writing its transcript and notifications to out.
func New(ctx context.Context, cfg Config, out io.Writer) (*App, error) {
	if strings.TrimSpace(cfg.WorldID) == "" {
		return nil, errors.New("world id is required")
	}
	if out == nil {
		out = io.Discard
	}
	if cfg.MapNodeCeiling <= 0 {
		cfg.MapNodeCeiling = mapgraph.DefaultCeiling
	}

	client, err := gateway.New(gateway.Config{
		BaseURL:       cfg.BackendURL,
		FetchTimeout:  cfg.FetchTimeout,
		FetchAttempts: cfg.FetchAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	bundle, err := i18n.Default()
	if err != nil {
		return nil, fmt.Errorf("load notification catalogs: %w", err)
	}

	store, err := openIdentityStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		client:     client,
		identities: store,
		closeStore: store.Close,
		guard:      guard.New(),
		reducer:    state.NewReducer(),
		graph:      mapgraph.NewBuilder(cfg.MapNodeCeiling),
		overlay:    overlay.New(),
		out:        out,
	}
	a.transcript = messages.NewStore(messages.WithObserver(a.renderMessage))
	a.notifier = notify.New(bundle.Printer(cfg.Locale), notify.SinkFunc(a.renderNotification))

	a.router, err = router.New(router.Deps{
		Guard:       a.guard,
		Transcript:  a.transcript,
		Reducer:     a.reducer,
		Map:         a.graph,
		Diagnostics: a.overlay,
		Notifier:    a.notifier,
	}, router.Options{InlineResponseFallback: cfg.InlineResponseFallback})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create router: %w", err)
	}
	a.runner, err = turn.New(turn.Deps{
		Gateway:    client,
		Guard:      a.guard,
		Router:     a.router,
		Transcript: a.transcript,
		Notifier:   a.notifier,
	}, turn.Config{Timeout: cfg.TurnTimeout})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create turn runner: %w", err)
	}
	return a, nil
}

// Close releases storage. In-flight turns are cancelled.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.guard != nil {
		a.guard.Cancel()
	}
	if a.closeStore != nil {
		return a.closeStore()
	}
	return nil
}

// Session returns the live session key.
func (a *App) Session() guard.SessionKey {
	return a.guard.LiveSession()
}

// Snapshot returns the current session state.
func (a *App) Snapshot() *state.Snapshot {
	return a.reducer.Snapshot()
}

// Map returns the current map graph.
func (a *App) Map() mapgraph.Graph {
	return a.graph.Graph()
}

// Transcript returns the messages of the live session in display order.
func (a *App) Transcript() []messages.Message {
	return a.transcript.Messages()
}

// Ledger returns the tool activity of the latest turn.
func (a *App) Ledger() []overlay.Entry {
	return a.overlay.Ledger()
}

// SendTurn runs one turn against the live session.
func (a *App) SendTurn(ctx context.Context, in gateway.TurnInput) (turn.Result, error) {
	res, err := a.runner.Send(ctx, in)
	if roll, ok := a.overlay.TakePendingRoll(); ok {
		a.renderRoll(roll)
	}
	return res, err
}

// CancelTurn cancels the live turn, reporting whether one was running.
func (a *App) CancelTurn() bool {
	return a.runner.Cancel()
}

func openIdentityStore(ctx context.Context, path string) (*playsqlite.Store, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "play.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := playsqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open play sqlite store: %w", err)
	}
	log.Printf("play: session identities stored at %s", path)
	return store, nil
}
