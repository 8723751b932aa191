package driveops

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonimelisma/irdrive/internal/graph"
)

// Sentinel errors. Graph failures are translated into these so callers do
// not depend on the transport's classification.
var (
	ErrNotFound    = errors.New("driveops: not found")
	ErrConflict    = errors.New("driveops: name conflict")
	ErrNotFolder   = errors.New("driveops: not a folder")
	ErrNotFile     = errors.New("driveops: not a file")
	ErrInvalidPath = errors.New("driveops: invalid path")
	ErrTransport   = errors.New("driveops: remote request failed")

	// ErrRootNotFound is a configuration problem: the configured root
	// folder does not exist. It matches ErrNotFound as well.
	ErrRootNotFound = fmt.Errorf("driveops: configured root folder missing: %w", ErrNotFound)
)

// ProvisionError reports the path segment at which EnsurePath failed.
type ProvisionError struct {
	Path    string // path up to and including Segment
	Segment string
	Err     error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("driveops: provisioning %q at segment %q: %v", e.Path, e.Segment, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// translate maps a graph error onto the driveops sentinels, keeping the
// original in the chain. Context and token-source errors pass unchanged.
func translate(err error) error {
	var ge *graph.GraphError

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, graph.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, graph.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, graph.ErrTransport), errors.As(err, &ge):
		return fmt.Errorf("%w: %w", ErrTransport, err)
	default:
		return err
	}
}
