package dispatcher

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoTargetDeployment is returned when no id was given and nothing is tracked.
	ErrNoTargetDeployment = errors.New("no deployment specified and none tracked")
	// ErrCancelled is returned when the caller's context ended the operation.
	ErrCancelled = errors.New("operation cancelled")
	// ErrNotConfirmed is returned by destructive operations called without confirmation.
	ErrNotConfirmed = errors.New("operation requires confirmation")
	// ErrInvalidArgument is returned for blank or malformed arguments.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBuildFailed is returned when the local image build fails.
	ErrBuildFailed = errors.New("image build failed")
)

// Error annotates a failure with the dispatcher operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// fail wraps err for op. Context errors become ErrCancelled while keeping the
// original error in the chain.
func fail(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		cause := ctx.Err()
		if cause == nil {
			cause = err
		}
		return &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrCancelled, cause)}
	}
	return &Error{Op: op, Err: err}
}
