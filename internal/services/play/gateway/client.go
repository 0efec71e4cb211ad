// Package gateway is the HTTP client for the narrative backend.
//
// A turn is submitted with OpenTurn, which returns the raw event stream for
// the caller to read. Non-streaming calls (rehydration fetches and session
// management) decode JSON and retry transient failures with exponential
// backoff. Turns are never retried because submitting one is not idempotent.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/net/publicsuffix"

	"github.com/louisbranch/storyloom/internal/platform/requestctx"
	"github.com/louisbranch/storyloom/internal/platform/timeouts"
	"github.com/louisbranch/storyloom/internal/services/play/guard"
)

// TurnRequestHeader carries the client's turn request id for correlation.
const TurnRequestHeader = "X-Turn-Request-Id"

const (
	defaultFetchAttempts   = 3
	defaultInitialInterval = 200 * time.Millisecond
	errorBodyLimit         = 4096
)

// Config configures a Client.
type Config struct {
	BaseURL string
	// FetchTimeout caps one attempt of a non-streaming call.
	FetchTimeout time.Duration
	// FetchAttempts is the total number of tries for retryable calls.
	FetchAttempts uint
	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval time.Duration
	// HTTPClient overrides the default cookie-aware client.
	HTTPClient *http.Client
}

// Client talks to one backend.
type Client struct {
	base            *url.URL
	http            *http.Client
	fetchTimeout    time.Duration
	attempts        uint
	initialInterval time.Duration
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// New returns a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend url scheme must be http or https, got %q", base.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar}
	}

	c := &Client{
		base:            base,
		http:            httpClient,
		fetchTimeout:    cfg.FetchTimeout,
		attempts:        cfg.FetchAttempts,
		initialInterval: cfg.RetryInitialInterval,
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = timeouts.Fetch
	}
	if c.attempts == 0 {
		c.attempts = defaultFetchAttempts
	}
	if c.initialInterval <= 0 {
		c.initialInterval = defaultInitialInterval
	}
	return c, nil
}

// TurnInput is the body of a turn submission.
type TurnInput struct {
	Input             string `json:"input"`
	InputType         string `json:"input_type,omitempty"`
	TargetCharacterID string `json:"target_character_id,omitempty"`
	Private           bool   `json:"private,omitempty"`
}

// OpenTurn submits input and returns the event stream body. The caller owns
// the body and must close it. ctx bounds the whole stream, not just the
// request.
func (c *Client) OpenTurn(ctx context.Context, key guard.SessionKey, in TurnInput) (io.ReadCloser, error) {
	if strings.TrimSpace(in.Input) == "" {
		return nil, errors.New("turn input is required")
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode turn input: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sessionURL(key, "turns"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build turn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if turn, ok := requestctx.TurnFromContext(ctx); ok {
		req.Header.Set(TurnRequestHeader, strconv.FormatUint(turn.RequestID, 10))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}
	return resp.Body, nil
}

func (c *Client) sessionURL(key guard.SessionKey, parts ...string) string {
	segments := append([]string{"worlds", key.WorldID, "sessions", key.SessionID}, parts...)
	return c.url(segments...)
}

func (c *Client) url(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := *c.base
	prefix := strings.TrimRight(u.EscapedPath(), "/") + "/api/"
	u.RawPath = prefix + strings.Join(escaped, "/")
	u.Path = strings.TrimRight(c.base.Path, "/") + "/api/" + strings.Join(segments, "/")
	return u.String()
}

// call performs a JSON request, retrying transient failures when retry is
// set. out may be nil.
func (c *Client) call(ctx context.Context, method, target string, in, out any, retry bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	op := func() (struct{}, error) {
		err := c.attempt(ctx, method, target, payload, out)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(context.Cause(ctx))
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return struct{}{}, backoff.Permanent(err)
		}
		var decodeErr *decodeError
		if errors.As(err, &decodeErr) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	tries := c.attempts
	if !retry {
		tries = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(tries),
		backoff.WithMaxElapsedTime(timeouts.RetryMaxElapsed),
	)
	return err
}

func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, out any) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{target: target, err: err}
	}
	return nil
}

type decodeError struct {
	target string
	err    error
}

func (e *decodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.target, e.err) }
func (e *decodeError) Unwrap() error { return e.err }

func readStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
