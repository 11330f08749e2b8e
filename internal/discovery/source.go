package discovery

import (
	"context"

	"replbatch/internal/band"
)

// Source yields the full list of objects that need replication. The
// scheduler materializes the list before partitioning, so Items returns a
// slice rather than a stream.
type Source interface {
	Items(ctx context.Context) ([]band.WorkItem, error)
	Close() error
}
