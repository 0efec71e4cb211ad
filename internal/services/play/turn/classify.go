package turn

import (
	"context"
	"errors"
	"net"
	"strconv"

	apperrors "github.com/louisbranch/storyloom/internal/platform/errors"
	"github.com/louisbranch/storyloom/internal/services/play/gateway"
	"github.com/louisbranch/storyloom/internal/services/play/guard"
	"github.com/louisbranch/storyloom/internal/services/play/notify"
)

// Outcome is how a turn ended from the runner's point of view.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeStale     Outcome = "stale"
)

// Silent reports whether the outcome must not produce a notification.
func (o Outcome) Silent() bool {
	return o == OutcomeCompleted || o == OutcomeCancelled || o == OutcomeStale
}

// Classify maps the termination of a turn stream that did not reach a
// terminal event. ctx is the request context issued by the guard (or a
// child of it); err is what opening or reading the stream returned, nil
// when the stream simply ended.
//
// Cancelled and stale outcomes carry no error.
func Classify(ctx context.Context, err error) (Outcome, error) {
	if ctx != nil && guard.IsCancellation(ctx) {
		if errors.Is(context.Cause(ctx), guard.ErrCancelled) {
			return OutcomeCancelled, nil
		}
		return OutcomeStale, nil
	}

	if isTimeout(ctx, err) {
		return OutcomeTimeout, apperrors.Wrap(apperrors.CodeTransportTimeout, "turn stream timed out", err)
	}

	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) {
		return OutcomeFailed, apperrors.WrapWithMetadata(
			apperrors.CodeTransportStatus,
			"turn request rejected",
			map[string]string{notify.MetaStatus: strconv.Itoa(statusErr.StatusCode)},
			err,
		)
	}
	if err == nil {
		return OutcomeFailed, apperrors.New(apperrors.CodeStreamIncomplete, "turn stream ended without a terminal event")
	}
	return OutcomeFailed, apperrors.Wrap(apperrors.CodeTransportFailed, "turn stream failed", err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if ctx != nil && errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
