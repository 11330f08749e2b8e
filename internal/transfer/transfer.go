package transfer

import (
	"context"
	"fmt"
)

// Replicator copies a batch of objects to a destination tier. threads is a
// hint for how parallel a single transfer may be; implementations are free
// to ignore it.
type Replicator interface {
	Replicate(ctx context.Context, dest string, threads int, paths []string) error
}

// StatusError carries the raw exit status and stderr of a failed transfer
// invocation. It marks a per-batch failure, never a fatal pool error.
type StatusError struct {
	Status int
	Stderr string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transfer exited with status %d", e.Status)
}
