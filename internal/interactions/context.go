package interactions

import (
	"context"
	"errors"
)

// ErrNoState is the panic value of MustFrom outside a state scope.
var ErrNoState = errors.New("interactions: no state in context")

type stateKey struct{}

// WithState scopes s to ctx.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, stateKey{}, s)
}

// From returns the state scoped to ctx.
func From(ctx context.Context) (*State, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(stateKey{}).(*State)
	return s, ok && s != nil
}

// MustFrom returns the state scoped to ctx and panics when there is none. Reaching
// interaction state outside a tab scope is a programming error.
func MustFrom(ctx context.Context) *State {
	s, ok := From(ctx)
	if !ok {
		panic(ErrNoState)
	}
	return s
}
