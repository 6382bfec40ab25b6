// Package pipeline runs the background data jobs: exchange kline
// collection and cold-storage archival.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the pipeline goroutines: kline collection and
// cold-storage archival.
type Orchestrator struct {
	collector       *Collector
	archiver        *Archiver
	collectInterval time.Duration
	archiveCron     string
	logger          *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates all pipeline
// sub-systems. archiver may be nil when blob storage is not configured.
func NewOrchestrator(
	collector *Collector,
	archiver *Archiver,
	collectInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		collector:       collector,
		archiver:        archiver,
		collectInterval: collectInterval,
		archiveCron:     archiveCron,
		logger:          logger,
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run
// returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Duration("collect_interval", o.collectInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	// 1. Kline collector on ticker.
	g.Go(func() error {
		o.logger.Info("starting kline collector loop")
		err := o.collector.RunLoop(ctx, o.collectInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("kline collector: %w", err)
	})

	// 2. Archiver on cron schedule.
	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver cron")
			err := o.archiver.RunCron(ctx, o.archiveCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
