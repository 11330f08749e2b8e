package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"replbatch/internal/band"

	"go.uber.org/zap"
)

// haltAfterFailures is how many failed batches a single execution tolerates
// before it stops dispatching. One bad batch is noise; two in the same band
// usually means the destination is down and further attempts would only
// burn the time budget.
const haltAfterFailures = 2

// Op transfers one batch of items. A non-nil error or non-zero status marks
// the batch failed without stopping the pool, unless the failure threshold
// is crossed.
type Op func(ctx context.Context, items []band.WorkItem) (status int, stderr string, err error)

// Options bounds a single execution.
type Options struct {
	MaxConcurrency int
	MaxBatchSize   int

	// Gate is consulted before dispatching each batch. Returning false
	// stops dispatch without counting as a failure. May be nil.
	Gate func() bool
}

// Pool runs batches of transfer operations with bounded concurrency.
type Pool struct {
	logger *zap.Logger
}

// NewPool creates a worker pool.
func NewPool(logger *zap.Logger) *Pool {
	return &Pool{logger: logger}
}

// Execution is one in-flight run of the pool. Results arrive in completion
// order; Halted and Expired are meaningful once Results is drained.
type Execution struct {
	results chan Result
	halted  atomic.Bool
	expired atomic.Bool
}

// Results returns the completion-ordered result stream. The channel is
// closed once all dispatched batches have finished.
func (e *Execution) Results() <-chan Result {
	return e.results
}

// Halted reports whether dispatch stopped because of repeated batch failures.
func (e *Execution) Halted() bool { return e.halted.Load() }

// Expired reports whether dispatch stopped because the gate closed.
func (e *Execution) Expired() bool { return e.expired.Load() }

// Execute runs op over items, grouping them into batches of up to
// opts.MaxBatchSize with at most opts.MaxConcurrency batches in flight.
// In-flight batches always run to completion; only dispatch is stopped
// early, either by the gate or by the failure threshold.
func (p *Pool) Execute(ctx context.Context, items []band.WorkItem, opts Options, op Op) *Execution {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.MaxBatchSize < 1 {
		opts.MaxBatchSize = 1
	}

	batches := makeBatches(items, opts.MaxBatchSize)
	exec := &Execution{results: make(chan Result, opts.MaxConcurrency)}

	go func() {
		defer close(exec.results)

		var (
			wg       sync.WaitGroup
			failures atomic.Int32
			sem      = make(chan struct{}, opts.MaxConcurrency)
		)

		for _, batch := range batches {
			if opts.Gate != nil && !opts.Gate() {
				exec.expired.Store(true)
				break
			}
			select {
			case <-ctx.Done():
				exec.expired.Store(true)
			case sem <- struct{}{}:
			}
			if exec.expired.Load() {
				break
			}
			// Re-checked after the semaphore wait: a slot freed by a
			// failed batch must not be reused once the threshold is hit.
			if failures.Load() >= haltAfterFailures {
				exec.halted.Store(true)
				<-sem
				break
			}
			if err := ctx.Err(); err != nil {
				exec.expired.Store(true)
				<-sem
				break
			}

			wg.Add(1)
			go func(batch []band.WorkItem) {
				defer wg.Done()
				defer func() { <-sem }()

				start := time.Now()
				status, stderr, err := op(ctx, batch)
				res := Result{
					Items:    batch,
					Status:   status,
					Stderr:   stderr,
					Err:      err,
					Duration: time.Since(start),
				}
				if res.Failed() {
					failures.Add(1)
					p.logger.Warn("batch failed",
						zap.Int("items", len(batch)),
						zap.Int("status", status),
						zap.Error(err),
					)
				}
				exec.results <- res
			}(batch)
		}

		wg.Wait()
	}()

	return exec
}

// makeBatches splits items into consecutive groups of at most size.
func makeBatches(items []band.WorkItem, size int) [][]band.WorkItem {
	var batches [][]band.WorkItem
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		batches = append(batches, items[:n])
		items = items[n:]
	}
	return batches
}
