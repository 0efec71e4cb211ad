package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/louisbranch/storyloom/internal/platform/requestctx"
	"github.com/louisbranch/storyloom/internal/services/play/guard"
)

var testKey = guard.SessionKey{WorldID: "world 1", SessionID: "s1"}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:              srv.URL + "/",
		FetchTimeout:         time.Second,
		FetchAttempts:        3,
		RetryInitialInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"", "  ", "ftp://example.com", "://bad"} {
		if _, err := New(Config{BaseURL: raw}); err == nil {
			t.Fatalf("New(%q) should fail", raw)
		}
	}
}

func TestOpenTurnPostsInputAndReturnsStream(t *testing.T) {
	var gotPath, gotAccept string
	var gotBody TurnInput
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAccept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"narrator_start\"}\n\n")
	}))

	body, err := c.OpenTurn(context.Background(), testKey, TurnInput{Input: "open the door", TargetCharacterID: "a"})
	if err != nil {
		t.Fatalf("open turn: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)

	if gotPath != "/api/worlds/world%201/sessions/s1/turns" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAccept != "text/event-stream" {
		t.Fatalf("accept = %q", gotAccept)
	}
	if gotBody.Input != "open the door" || gotBody.TargetCharacterID != "a" {
		t.Fatalf("body = %+v", gotBody)
	}
	if !strings.Contains(string(data), "narrator_start") {
		t.Fatalf("stream = %q", data)
	}
}

func TestOpenTurnSendsTurnRequestHeader(t *testing.T) {
	var got string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(TurnRequestHeader)
	}))

	ctx := requestctx.WithTurn(context.Background(), requestctx.Turn{RequestID: 42, WorldID: "world 1", SessionID: "s1"})
	body, err := c.OpenTurn(ctx, testKey, TurnInput{Input: "look"})
	if err != nil {
		t.Fatalf("open turn: %v", err)
	}
	_ = body.Close()
	if got != "42" {
		t.Fatalf("turn header = %q, want 42", got)
	}
}

func TestOpenTurnStatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session locked", http.StatusConflict)
	}))

	_, err := c.OpenTurn(context.Background(), testKey, TurnInput{Input: "wait"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if statusErr.StatusCode != http.StatusConflict || statusErr.Body != "session locked" {
		t.Fatalf("status error = %+v", statusErr)
	}
	if statusErr.Temporary() {
		t.Fatal("409 should not be temporary")
	}
}

func TestOpenTurnRejectsBlankInput(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	if _, err := c.OpenTurn(context.Background(), testKey, TurnInput{Input: "   "}); err == nil {
		t.Fatal("expected blank input error")
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"id":"inn","name":"Inn","destinations":[{"id":"market","travel_label":"east"}]}`)
	}))

	loc, err := c.FetchLocation(context.Background(), testKey)
	if err != nil {
		t.Fatalf("fetch location: %v", err)
	}
	if loc.ID != "inn" || len(loc.Destinations) != 1 || loc.Destinations[0].TravelLabel != "east" {
		t.Fatalf("location = %+v", loc)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.FetchGameTime(context.Background(), testKey)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchDoesNotRetryDecodeErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"members": "nope"}`)
	}))

	if _, err := c.FetchParty(context.Background(), testKey); err == nil {
		t.Fatal("expected decode error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestFetchGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	if _, err := c.FetchChapter(context.Background(), testKey); err == nil {
		t.Fatal("expected error after retries")
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestSessionManagement(t *testing.T) {
	var creates atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/worlds/{world}/sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"sessions":[{"id":"s1","status":"ended"},{"id":"s2","status":"paused"}]}`)
	})
	mux.HandleFunc("POST /api/worlds/{world}/sessions", func(w http.ResponseWriter, r *http.Request) {
		if creates.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"id":"s3","status":"active"}`)
	})
	mux.HandleFunc("POST /api/worlds/{world}/sessions/{session}/recover", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"active"}`)
	})
	c := newTestClient(t, mux)

	sessions, err := c.ListSessions(context.Background(), "w")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].WorldID != "w" || sessions[0].Resumable() || !sessions[1].Resumable() {
		t.Fatalf("sessions = %+v", sessions)
	}

	if _, err := c.CreateSession(context.Background(), "w"); err == nil {
		t.Fatal("create should not be retried after a 500")
	}
	created, err := c.CreateSession(context.Background(), "w")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if created.Key() != (guard.SessionKey{WorldID: "w", SessionID: "s3"}) {
		t.Fatalf("created = %+v", created)
	}

	recovered, err := c.RecoverSession(context.Background(), guard.SessionKey{WorldID: "w", SessionID: "s2"})
	if err != nil {
		t.Fatalf("recover session: %v", err)
	}
	if recovered.ID != "s2" || recovered.Status != SessionActive {
		t.Fatalf("recovered = %+v", recovered)
	}
}

func TestCookiesPersistAcrossCalls(t *testing.T) {
	var sawCookie atomic.Bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("storyloom_session"); err == nil {
			sawCookie.Store(true)
		}
		http.SetCookie(w, &http.Cookie{Name: "storyloom_session", Value: "abc", Path: "/"})
		_, _ = io.WriteString(w, `{"day":1,"hour":8,"minute":0}`)
	}))

	for i := 0; i < 2; i++ {
		if _, err := c.FetchGameTime(context.Background(), testKey); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if !sawCookie.Load() {
		t.Fatal("expected cookie from first response on second request")
	}
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.FetchLocation(ctx, testKey); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
