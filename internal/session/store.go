package session

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations.
var (
	ErrSessionNotFound = errors.New("session: session not found")
	ErrFlowNotFound    = errors.New("session: flow not found")
	ErrFlowExpired     = errors.New("session: flow expired")
	ErrStateCollision  = errors.New("session: flow state already registered")
)

// Store persists sessions and the flow index. Implementations must be safe
// for concurrent use; the flow index in particular is shared by every
// session in the process (or, for external backings, every instance).
type Store interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	PutSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, id string) error

	// PutFlow registers a flow under its state. Returns ErrStateCollision
	// if the state is already registered.
	PutFlow(ctx context.Context, f *Flow) error

	// TakeFlow atomically removes and returns the flow registered under
	// state. A missing state returns ErrFlowNotFound. A flow that expired
	// before now is removed as well and reported as ErrFlowExpired.
	TakeFlow(ctx context.Context, state string, now time.Time) (*Flow, error)

	DeleteFlow(ctx context.Context, state string) error

	// Reap removes flows and sessions that expired before now and returns
	// how many records were removed.
	Reap(ctx context.Context, now time.Time) (int, error)
}
