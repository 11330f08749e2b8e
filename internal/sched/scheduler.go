package sched

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"replbatch/internal/band"
	"replbatch/internal/metrics"
	"replbatch/internal/progress"
	"replbatch/internal/transfer"
	"replbatch/internal/worker"

	"go.uber.org/zap"
)

// ErrSystemic is returned when a band hit the repeated-failure threshold
// and the run stopped early. Completed counts are preserved.
var ErrSystemic = errors.New("replication halted after repeated batch failures")

// Outcome is the top-level result of a run. TimedOut is an expected,
// informational state, distinct from item failures and from hard errors.
type Outcome struct {
	Completed int
	Failed    int
	TimedOut  bool
}

// Scheduler drives the catalog band by band: partition the items, execute
// the cohort with the band's bounded concurrency, track progress, repeat.
// Bands never run concurrently; the only parallelism lives inside the
// worker pool.
type Scheduler struct {
	repl      transfer.Replicator
	dest      string
	pool      *worker.Pool
	collector *metrics.Collector
	logger    *zap.Logger
	out       io.Writer
}

// NewScheduler creates a scheduler. collector may be nil; out defaults to
// stdout.
func NewScheduler(repl transfer.Replicator, dest string, collector *metrics.Collector, logger *zap.Logger, out io.Writer) *Scheduler {
	if out == nil {
		out = os.Stdout
	}
	return &Scheduler{
		repl:      repl,
		dest:      dest,
		pool:      worker.NewPool(logger),
		collector: collector,
		logger:    logger,
		out:       out,
	}
}

// Run replicates items according to catalog, scaling every band's
// concurrency by multiplier and stopping at deadline (zero means no
// limit). Deadline expiry is not an error: already-dispatched batches
// drain, Outcome.TimedOut is set, and completed counts are kept.
func (s *Scheduler) Run(ctx context.Context, items []band.WorkItem, catalog []band.Band, multiplier int, deadline time.Time) (Outcome, error) {
	if err := band.Validate(catalog); err != nil {
		return Outcome{}, fmt.Errorf("invalid band catalog: %w", err)
	}
	if multiplier < 1 {
		multiplier = 1
	}

	state := &progress.RunState{Total: len(items)}
	gate := NewGate(deadline)
	outcome := Outcome{}

	for i, b := range catalog {
		if gate.Expired() || ctx.Err() != nil {
			outcome.TimedOut = true
			break
		}

		cohort := band.Partition(items, b)
		s.logger.Info("starting cohort",
			zap.Int("band", i+1),
			zap.Int("bands", len(catalog)),
			zap.String("size_range", b.Label()),
			zap.Int("files", len(cohort)),
			zap.Int("threads", b.Threads),
			zap.Int("concurrency", b.MaxConcurrency*multiplier),
		)

		tracker := progress.NewTracker(s.out, b.Label(), len(cohort), state)
		tracker.Start(totalBytes(cohort))
		if len(cohort) == 0 {
			continue
		}

		halted, timedOut := s.runCohort(ctx, b, cohort, multiplier, gate, tracker, &outcome)
		if timedOut {
			outcome.TimedOut = true
			break
		}
		if halted {
			outcome.Completed = state.Completed
			return outcome, ErrSystemic
		}
	}

	outcome.Completed = state.Completed
	s.logger.Info("run finished",
		zap.Int("completed", outcome.Completed),
		zap.Int("failed", outcome.Failed),
		zap.Int("total", state.Total),
		zap.Bool("timed_out", outcome.TimedOut),
	)
	return outcome, nil
}

// runCohort executes one band's cohort and observes its result stream.
func (s *Scheduler) runCohort(ctx context.Context, b band.Band, cohort []band.WorkItem, multiplier int, gate *Gate, tracker *progress.Tracker, outcome *Outcome) (halted, timedOut bool) {
	op := func(ctx context.Context, batch []band.WorkItem) (int, string, error) {
		if s.collector != nil {
			s.collector.AddInflight(1)
			defer s.collector.AddInflight(-1)
		}
		err := s.repl.Replicate(ctx, s.dest, b.Threads, paths(batch))
		var statusErr *transfer.StatusError
		if errors.As(err, &statusErr) {
			return statusErr.Status, statusErr.Stderr, nil
		}
		return 0, "", err
	}

	exec := s.pool.Execute(ctx, cohort, worker.Options{
		MaxConcurrency: b.MaxConcurrency * multiplier,
		MaxBatchSize:   b.MaxBatchSize,
		Gate:           gate.Open,
	}, op)

	for res := range exec.Results() {
		tracker.Add(len(res.Items))
		if s.collector != nil {
			s.collector.ObserveBatch(res.Duration)
		}
		if res.Failed() {
			outcome.Failed += len(res.Items)
			if s.collector != nil {
				s.collector.IncFailed(len(res.Items))
			}
			s.logger.Warn("cohort batch failed",
				zap.String("size_range", b.Label()),
				zap.Int("status", res.Status),
				zap.Int("files", len(res.Items)),
				zap.Error(res.Err),
			)
			continue
		}
		if s.collector != nil {
			s.collector.IncReplicated(len(res.Items), res.Bytes())
		}
	}

	tracker.Finish(exec.Expired())
	return exec.Halted(), exec.Expired()
}

func paths(items []band.WorkItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path
	}
	return out
}

func totalBytes(items []band.WorkItem) int64 {
	var n int64
	for _, it := range items {
		n += it.Size
	}
	return n
}
