// Package requestctx carries turn request identity through contexts so
// outbound calls can be correlated with the turn that issued them.
package requestctx

import "context"

// turnContextKey is the context key for the in-flight turn request.
type turnContextKey struct{}

// Turn identifies one turn request.
type Turn struct {
	RequestID uint64
	WorldID   string
	SessionID string
}

// WithTurn stores turn in context.
func WithTurn(ctx context.Context, turn Turn) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, turnContextKey{}, turn)
}

// TurnFromContext returns the turn stored in context.
func TurnFromContext(ctx context.Context) (Turn, bool) {
	if ctx == nil {
		return Turn{}, false
	}
	turn, ok := ctx.Value(turnContextKey{}).(Turn)
	return turn, ok
}
