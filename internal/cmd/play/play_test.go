package play

import (
	"flag"
	"testing"
	"time"

	"github.com/louisbranch/storyloom/internal/platform/timeouts"
)

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv("STORYLOOM_WORLD_ID", "w1")

	cfg, err := ParseConfig(flag.NewFlagSet("play", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.BackendURL != "http://localhost:8080" || cfg.DBPath != "data/play.db" || cfg.Locale != "en-US" {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.TurnTimeout != timeouts.TurnStream || cfg.FetchTimeout != timeouts.Fetch {
		t.Fatalf("timeouts = %s, %s", cfg.TurnTimeout, cfg.FetchTimeout)
	}
	if cfg.FetchAttempts != 3 || !cfg.InlineResponseFallback || cfg.MapNodeCeiling != 40 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("STORYLOOM_WORLD_ID", "env-world")
	t.Setenv("STORYLOOM_TURN_TIMEOUT", "30s")
	t.Setenv("STORYLOOM_INLINE_RESPONSE_FALLBACK", "false")

	cfg, err := ParseConfig(flag.NewFlagSet("play", flag.ContinueOnError), []string{
		"-world", "flag-world",
		"-session", "s9",
		"-map-ceiling", "12",
	})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.WorldID != "flag-world" || cfg.SessionID != "s9" || cfg.MapNodeCeiling != 12 {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.TurnTimeout != 30*time.Second || cfg.InlineResponseFallback {
		t.Fatalf("env values lost: %+v", cfg)
	}
}

func TestParseConfigRequiresWorld(t *testing.T) {
	t.Setenv("STORYLOOM_WORLD_ID", "")
	if _, err := ParseConfig(flag.NewFlagSet("play", flag.ContinueOnError), nil); err == nil {
		t.Fatal("expected world id error")
	}
}

func TestParseConfigRejectsBadCeiling(t *testing.T) {
	t.Setenv("STORYLOOM_WORLD_ID", "w1")
	if _, err := ParseConfig(flag.NewFlagSet("play", flag.ContinueOnError), []string{"-map-ceiling", "0"}); err == nil {
		t.Fatal("expected ceiling error")
	}
}

func TestAppConfigCopiesEveryField(t *testing.T) {
	cfg := Config{
		BackendURL:             "http://b",
		WorldID:                "w",
		SessionID:              "s",
		DBPath:                 "p.db",
		Locale:                 "pt-BR",
		TurnTimeout:            time.Second,
		FetchTimeout:           2 * time.Second,
		FetchAttempts:          5,
		InlineResponseFallback: true,
		MapNodeCeiling:         9,
	}
	got := cfg.appConfig()
	if got.BackendURL != cfg.BackendURL || got.WorldID != cfg.WorldID || got.SessionID != cfg.SessionID ||
		got.DBPath != cfg.DBPath || got.Locale != cfg.Locale || got.TurnTimeout != cfg.TurnTimeout ||
		got.FetchTimeout != cfg.FetchTimeout || got.FetchAttempts != cfg.FetchAttempts ||
		got.InlineResponseFallback != cfg.InlineResponseFallback || got.MapNodeCeiling != cfg.MapNodeCeiling {
		t.Fatalf("app config = %+v", got)
	}
}
