package core

import "context"

// Priority orders queued operations: higher runs first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 10
	PriorityHigh   Priority = 20
)

type (
	Operation func(ctx context.Context) error

	// OperationRunner is any service that can run operations out of the request flow.
	OperationRunner interface {
		// Do queues `op` and blocks until it has run (or ctx is done).
		Do(ctx context.Context, prio Priority, name string, op Operation) error
	}
)

type directRunner struct{}

func (directRunner) Do(ctx context.Context, _ Priority, _ string, op Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return op(ctx)
}

// DirectRunner runs operations synchronously on the caller's goroutine.
var DirectRunner OperationRunner = directRunner{}
