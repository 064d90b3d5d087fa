// Package reconciler keeps the in-memory job table healthy.
//
// A job is stuck when it has been in_progress for longer than the threshold,
// typically because its browser hung. The reconciler marks such jobs failed
// so pollers see a terminal status. If the job later finishes, the store's
// terminal state guard makes its completion a no-op.
//
// Terminal jobs older than the retention are dropped so the table does not
// grow without bound.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/dispatcher"
	"github.com/smyja/web3event/internal/domain"
)

// Store defines the interface for finding and finishing stale jobs.
type Store interface {
	StuckJobs(ctx context.Context, cutoff time.Time, max int) ([]domain.ScrapeJob, error)
	FailJob(ctx context.Context, id uuid.UUID, out dispatcher.Outcome, reason string) error
	PruneJobs(ctx context.Context, cutoff time.Time) (int, error)
}

// MetricsSink defines the interface for recording reconciler metrics.
type MetricsSink interface {
	StuckJobsFailed(count int)
	JobsPruned(count int)
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs.
	// Default: 5 minutes.
	Interval time.Duration

	// Threshold is how long a job may stay in_progress.
	// Default: 2 hours.
	Threshold time.Duration

	// BatchSize is the maximum number of stuck jobs failed per cycle.
	// Default: 100.
	BatchSize int

	// Retention is how long finished jobs are kept. Zero disables pruning.
	// Default: 24 hours.
	Retention time.Duration
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Threshold: 2 * time.Hour,
		BatchSize: 100,
		Retention: 24 * time.Hour,
	}
}

// Reconciler fails stuck jobs and prunes old ones.
type Reconciler struct {
	config  Config
	store   Store
	metrics MetricsSink
	log     zerolog.Logger
	clock   func() time.Time
}

// New creates a new Reconciler.
func New(config Config, store Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		config: config,
		store:  store,
		log:    log,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink to the reconciler.
func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

// WithClock replaces the time source. Used by tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.clock = now
	return r
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.log.Info().
		Dur("interval", r.config.Interval).
		Dur("threshold", r.config.Threshold).
		Int("batch", r.config.BatchSize).
		Dur("retention", r.config.Retention).
		Msg("started")

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one reconciliation cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()
	r.failStuck(ctx, now)
	r.prune(ctx, now)
}

func (r *Reconciler) failStuck(ctx context.Context, now time.Time) {
	stuck, err := r.store.StuckJobs(ctx, now.Add(-r.config.Threshold), r.config.BatchSize)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to fetch stuck jobs")
		return
	}
	if len(stuck) == 0 {
		return
	}

	r.log.Warn().Int("jobs", len(stuck)).Msg("found stuck jobs")
	reason := fmt.Sprintf("job did not finish within %s", r.config.Threshold)

	failed := 0
	for _, job := range stuck {
		// Check context before each update to allow graceful shutdown
		if ctx.Err() != nil {
			r.log.Info().Int("processed", failed).Int("found", len(stuck)).Msg("cycle interrupted")
			break
		}

		err := r.store.FailJob(ctx, job.ID, dispatcher.Outcome{Raw: job.RawEvents, Events: job.Events}, reason)
		if err != nil {
			if !errors.Is(err, dispatcher.ErrStatusTransitionDenied) {
				r.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("failed to fail stuck job")
			}
			continue
		}

		r.log.Warn().
			Str("job_id", job.ID.String()).
			Str("city", job.City).
			Dur("age", now.Sub(job.StartedAt).Round(time.Second)).
			Msg("stuck job marked failed")
		failed++
	}

	if r.metrics != nil && failed > 0 {
		r.metrics.StuckJobsFailed(failed)
	}
}

func (r *Reconciler) prune(ctx context.Context, now time.Time) {
	if r.config.Retention <= 0 {
		return
	}
	n, err := r.store.PruneJobs(ctx, now.Add(-r.config.Retention))
	if err != nil {
		r.log.Error().Err(err).Msg("failed to prune jobs")
		return
	}
	if n == 0 {
		return
	}
	r.log.Info().Int("jobs", n).Msg("pruned finished jobs")
	if r.metrics != nil {
		r.metrics.JobsPruned(n)
	}
}
