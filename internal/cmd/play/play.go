// Package play parses play client flags and launches the interactive client.
package play

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/storyloom/internal/platform/cmd"
	"github.com/louisbranch/storyloom/internal/platform/timeouts"
	"github.com/louisbranch/storyloom/internal/services/play/app"
)

// Config holds play command configuration.
type Config struct {
	BackendURL             string        `env:"BACKEND_URL" envDefault:"http://localhost:8080"`
	WorldID                string        `env:"WORLD_ID"`
	SessionID              string        `env:"SESSION_ID"`
	DBPath                 string        `env:"DB_PATH" envDefault:"data/play.db"`
	Locale                 string        `env:"LOCALE" envDefault:"en-US"`
	TurnTimeout            time.Duration `env:"TURN_TIMEOUT"`
	FetchTimeout           time.Duration `env:"FETCH_TIMEOUT"`
	FetchAttempts          uint          `env:"FETCH_ATTEMPTS" envDefault:"3"`
	InlineResponseFallback bool          `env:"INLINE_RESPONSE_FALLBACK" envDefault:"true"`
	MapNodeCeiling         int           `env:"MAP_NODE_CEILING" envDefault:"40"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = timeouts.TurnStream
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = timeouts.Fetch
	}

	fs.StringVar(&cfg.BackendURL, "backend", cfg.BackendURL, "Narrative backend base URL")
	fs.StringVar(&cfg.WorldID, "world", cfg.WorldID, "World to play in")
	fs.StringVar(&cfg.SessionID, "session", cfg.SessionID, "Session to play instead of the remembered one")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite path for remembered sessions")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Notification locale")
	fs.DurationVar(&cfg.TurnTimeout, "turn-timeout", cfg.TurnTimeout, "Maximum duration of one streamed turn")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", cfg.FetchTimeout, "Maximum duration of one fetch attempt")
	fs.UintVar(&cfg.FetchAttempts, "fetch-attempts", cfg.FetchAttempts, "Attempts for retryable fetches")
	fs.BoolVar(&cfg.InlineResponseFallback, "inline-fallback", cfg.InlineResponseFallback, "Render inline turn responses when nothing was streamed")
	fs.IntVar(&cfg.MapNodeCeiling, "map-ceiling", cfg.MapNodeCeiling, "Maximum locations kept on the map")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.WorldID) == "" {
		return Config{}, errors.New("world id is required (-world or STORYLOOM_WORLD_ID)")
	}
	if cfg.MapNodeCeiling <= 0 {
		return Config{}, fmt.Errorf("map ceiling must be positive, got %d", cfg.MapNodeCeiling)
	}
	return cfg, nil
}

// Run starts the interactive client on stdin and stdout.
func Run(ctx context.Context, cfg Config) error {
	return RunWithIO(ctx, cfg, os.Stdin, os.Stdout)
}

// RunWithIO starts the interactive client on the given streams.
func RunWithIO(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePlay, func(ctx context.Context) error {
		client, err := app.New(ctx, cfg.appConfig(), out)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Printf("close play client: %v", err)
			}
		}()

		key, err := client.Resume(ctx)
		if err != nil {
			if client.Session().IsZero() {
				return fmt.Errorf("resume session: %w", err)
			}
			log.Printf("resume session: %v", err)
		}
		log.Printf("playing %s", key)
		return client.Run(ctx, in)
	})
}

func (c Config) appConfig() app.Config {
	return app.Config{
		BackendURL:             c.BackendURL,
		WorldID:                c.WorldID,
		SessionID:              c.SessionID,
		DBPath:                 c.DBPath,
		Locale:                 c.Locale,
		TurnTimeout:            c.TurnTimeout,
		FetchTimeout:           c.FetchTimeout,
		FetchAttempts:          c.FetchAttempts,
		InlineResponseFallback: c.InlineResponseFallback,
		MapNodeCeiling:         c.MapNodeCeiling,
	}
}
