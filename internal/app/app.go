package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"replbatch/internal/band"
	"replbatch/internal/config"
	"replbatch/internal/discovery"
	"replbatch/internal/metrics"
	"replbatch/internal/progress"
	"replbatch/internal/sched"
	"replbatch/internal/transfer"

	"go.uber.org/zap"
)

// App wires discovery, transfer, metrics, and the cohort scheduler
// together for one replication run.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	source    discovery.Source
	collector *metrics.Collector
	scheduler *sched.Scheduler
}

// New creates an application instance from the configuration.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	source, err := newSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery source: %w", err)
	}

	repl, err := newReplicator(cfg, logger)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("failed to create replicator: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		source:    source,
		collector: collector,
		scheduler: sched.NewScheduler(repl, cfg.Destination, collector, logger, os.Stdout),
	}, nil
}

// Run executes the replication run.
func (a *App) Run(ctx context.Context) (sched.Outcome, error) {
	if a.collector != nil {
		go func() {
			if err := a.collector.StartServer(a.cfg.Metrics.Addr); err != nil {
				a.logger.Error("failed to start metrics server", zap.Error(err))
			}
		}()
	}

	items, err := a.source.Items(ctx)
	if err != nil {
		return sched.Outcome{}, fmt.Errorf("discovery failed: %w", err)
	}

	catalog, err := a.cfg.Catalog()
	if err != nil {
		return sched.Outcome{}, err
	}

	a.logger.Info("starting replication",
		zap.String("destination", a.cfg.Destination),
		zap.Int("files", len(items)),
		zap.Int("bands", len(catalog)),
		zap.Int("multiplier", a.cfg.Run.Multiplier),
		zap.String("deadline", a.cfg.Run.Deadline),
		zap.Bool("dry_run", a.cfg.Run.DryRun),
	)

	if a.cfg.Run.DryRun {
		a.logCohortPlan(items, catalog)
		return sched.Outcome{}, nil
	}

	deadline := a.cfg.DeadlineAt(time.Now())
	return a.scheduler.Run(ctx, items, catalog, a.cfg.Run.Multiplier, deadline)
}

// Close cleans up resources.
func (a *App) Close() error {
	return a.source.Close()
}

// logCohortPlan reports what each band would replicate, without invoking
// any transfers.
func (a *App) logCohortPlan(items []band.WorkItem, catalog []band.Band) {
	for _, b := range catalog {
		cohort := band.Partition(items, b)
		var bytes int64
		for _, it := range cohort {
			bytes += it.Size
		}
		a.logger.Info("would replicate",
			zap.String("size_range", b.Label()),
			zap.Int("files", len(cohort)),
			zap.String("bytes", progress.FormatBytes(bytes)),
			zap.Int("threads", b.Threads),
			zap.Int("concurrency", b.MaxConcurrency*a.cfg.Run.Multiplier),
		)
	}
}

func newSource(cfg *config.Config) (discovery.Source, error) {
	if cfg.Discovery.DB != "" {
		return discovery.NewSQLSource(cfg.Discovery.DB, cfg.Discovery.Query)
	}
	if cfg.Discovery.File == "-" {
		return discovery.NewReaderSource(os.Stdin), nil
	}
	f, err := os.Open(cfg.Discovery.File)
	if err != nil {
		return nil, err
	}
	return discovery.NewReaderSource(f), nil
}

func newReplicator(cfg *config.Config, logger *zap.Logger) (transfer.Replicator, error) {
	switch cfg.Transfer.Mode {
	case config.ModeS3:
		return transfer.NewS3Replicator(cfg.SourceS3(), cfg.TargetS3(), logger)
	default:
		return transfer.NewCommandReplicator(cfg.Transfer.Command, cfg.Transfer.Args, logger), nil
	}
}
