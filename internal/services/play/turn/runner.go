package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/storyloom/internal/platform/errors"
	"github.com/louisbranch/storyloom/internal/platform/requestctx"
	"github.com/louisbranch/storyloom/internal/platform/timeouts"
	"github.com/louisbranch/storyloom/internal/services/play/gateway"
	"github.com/louisbranch/storyloom/internal/services/play/guard"
	"github.com/louisbranch/storyloom/internal/services/play/messages"
	"github.com/louisbranch/storyloom/internal/services/play/notify"
	"github.com/louisbranch/storyloom/internal/services/play/protocol"
	"github.com/louisbranch/storyloom/internal/services/play/router"
	"github.com/louisbranch/storyloom/internal/services/play/stream"
)

const instrumentationName = "github.com/louisbranch/storyloom/internal/services/play/turn"

// Gateway opens turn streams.
type Gateway interface {
	OpenTurn(ctx context.Context, key guard.SessionKey, in gateway.TurnInput) (io.ReadCloser, error)
}

// Guard issues and checks request ids.
type Guard interface {
	LiveSession() guard.SessionKey
	BeginTurn(parent context.Context, key guard.SessionKey) (guard.RequestID, context.Context)
	IsCurrent(id guard.RequestID, key guard.SessionKey) bool
	Finish(id guard.RequestID, key guard.SessionKey)
	Cancel() bool
}

// Router applies stream events to a turn.
type Router interface {
	Begin(id guard.RequestID, key guard.SessionKey) *router.Turn
	Handle(t *router.Turn, evt protocol.Event) bool
	Abort(t *router.Turn)
}

// Transcript records the player's own input.
type Transcript interface {
	AddFinalized(role messages.Role, characterID, name, text string) (messages.Handle, error)
}

// Notifier surfaces classified failures.
type Notifier interface {
	Error(err error)
}

// Deps are the collaborators of a Runner. Notifier is optional.
type Deps struct {
	Gateway    Gateway
	Guard      Guard
	Router     Router
	Transcript Transcript
	Notifier   Notifier
}

// Config tunes a Runner.
type Config struct {
	// Timeout caps one turn stream. Zero uses timeouts.TurnStream.
	Timeout time.Duration
}

// Result describes a finished Send.
type Result struct {
	RequestID guard.RequestID
	Session   guard.SessionKey
	Outcome   Outcome
	Err       error
}

// Runner sends turns.
type Runner struct {
	deps     Deps
	timeout  time.Duration
	tracer   trace.Tracer
	turns    metric.Int64Counter
	duration metric.Float64Histogram
}

// New returns a Runner over deps.
func New(deps Deps, cfg Config) (*Runner, error) {
	if deps.Gateway == nil {
		return nil, errors.New("turn gateway is required")
	}
	if deps.Guard == nil {
		return nil, errors.New("request guard is required")
	}
	if deps.Router == nil {
		return nil, errors.New("event router is required")
	}
	if deps.Transcript == nil {
		return nil, errors.New("transcript is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = timeouts.TurnStream
	}

	meter := otel.Meter(instrumentationName)
	turns, err := meter.Int64Counter("play.turns",
		metric.WithDescription("Turns sent, by outcome."))
	if err != nil {
		return nil, fmt.Errorf("create turn counter: %w", err)
	}
	duration, err := meter.Float64Histogram("play.turn.duration",
		metric.WithDescription("Wall time from submission to the end of the turn stream."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create turn duration histogram: %w", err)
	}
	return &Runner{
		deps:     deps,
		timeout:  timeout,
		tracer:   otel.Tracer(instrumentationName),
		turns:    turns,
		duration: duration,
	}, nil
}

// Send submits in to the live session and blocks until the turn ends.
//
// The returned error is nil for completed, cancelled and superseded turns.
// Failures that belong to the current request have already been reported to
// the Notifier when Send returns.
func (r *Runner) Send(ctx context.Context, in gateway.TurnInput) (Result, error) {
	if strings.TrimSpace(in.Input) == "" {
		return Result{}, errors.New("turn input is required")
	}
	key := r.deps.Guard.LiveSession()
	if key.IsZero() {
		err := apperrors.New(apperrors.CodeSessionMissing, "no live session")
		r.notify(err)
		return Result{Outcome: OutcomeFailed, Err: err}, err
	}

	started := time.Now()
	id, reqCtx := r.deps.Guard.BeginTurn(ctx, key)
	defer r.deps.Guard.Finish(id, key)
	reqCtx = requestctx.WithTurn(reqCtx, requestctx.Turn{
		RequestID: uint64(id),
		WorldID:   key.WorldID,
		SessionID: key.SessionID,
	})

	reqCtx, span := r.tracer.Start(reqCtx, "play.turn", trace.WithAttributes(
		attribute.Int64("play.request_id", int64(id)),
		attribute.String("play.world_id", key.WorldID),
		attribute.String("play.session_id", key.SessionID),
	))
	defer span.End()

	t := r.deps.Router.Begin(id, key)
	if _, err := r.deps.Transcript.AddFinalized(messages.RolePlayer, "", "", in.Input); err != nil {
		log.Printf("turn: echo player input: %v", err)
	}

	streamCtx, cancel := context.WithTimeout(reqCtx, r.timeout)
	defer cancel()

	err := r.stream(streamCtx, key, in, t)
	res := r.finish(streamCtx, id, key, t, err)

	outcome := attribute.String("play.turn.outcome", string(res.Outcome))
	span.SetAttributes(outcome)
	r.turns.Add(ctx, 1, metric.WithAttributes(outcome))
	r.duration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(outcome))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(otelcodes.Error, string(apperrors.GetCode(res.Err)))
	}
	return res, res.Err
}

// Cancel aborts the live turn. It reports whether one was in flight.
func (r *Runner) Cancel() bool {
	return r.deps.Guard.Cancel()
}

func (r *Runner) stream(ctx context.Context, key guard.SessionKey, in gateway.TurnInput, t *router.Turn) error {
	body, err := r.deps.Gateway.OpenTurn(ctx, key, in)
	if err != nil {
		return err
	}
	defer body.Close()
	return stream.Read(ctx, body, func(evt protocol.Event) error {
		r.deps.Router.Handle(t, evt)
		if t.Done() {
			return stream.ErrStop
		}
		return nil
	})
}

func (r *Runner) finish(ctx context.Context, id guard.RequestID, key guard.SessionKey, t *router.Turn, err error) Result {
	res := Result{RequestID: id, Session: key}
	switch t.Outcome() {
	case router.OutcomeCompleted:
		res.Outcome = OutcomeCompleted
		return res
	case router.OutcomeFailed:
		// The router already surfaced the backend's turn_error.
		res.Outcome = OutcomeFailed
		res.Err = apperrors.WithMetadata(apperrors.CodeTurnFailed, "turn error event", map[string]string{notify.MetaMessage: t.Failure()})
		return res
	}

	res.Outcome, res.Err = Classify(ctx, err)
	r.deps.Router.Abort(t)
	if res.Outcome == OutcomeFailed || res.Outcome == OutcomeTimeout {
		if !r.deps.Guard.IsCurrent(id, key) {
			log.Printf("turn: request %d in %s failed after supersession: %v", id, key, res.Err)
			res.Outcome, res.Err = OutcomeStale, nil
			return res
		}
		log.Printf("turn: request %d in %s: %v", id, key, res.Err)
		r.notify(res.Err)
	}
	return res
}

func (r *Runner) notify(err error) {
	if r.deps.Notifier != nil {
		r.deps.Notifier.Error(err)
	}
}
