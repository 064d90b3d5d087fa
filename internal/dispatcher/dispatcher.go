package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/logstream"
	"github.com/smyja/web3event/internal/source"
)

// DefaultDrainTimeout bounds how long buffered jobs are processed after
// shutdown begins.
const DefaultDrainTimeout = 30 * time.Second

// ReasonShutdown is stored on jobs that were still queued when the
// dispatcher stopped.
const ReasonShutdown = "server shutting down"

// ErrStatusTransitionDenied is returned when a status update would move a
// job out of a terminal state (completed/failed).
var ErrStatusTransitionDenied = errors.New("status transition denied: job already in terminal state")

// Outcome is what a finished job keeps: the deduplicated raw records, the
// normalized events and any artifact paths.
type Outcome struct {
	Raw       []domain.RawEvent
	Events    []domain.NormalizedEvent
	Artifacts []string
}

type Store interface {
	GetJob(ctx context.Context, id uuid.UUID) (domain.ScrapeJob, error)
	// UpdateStatus MUST reject transitions out of a terminal state with
	// ErrStatusTransitionDenied so a replayed request is a no-op.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus) error
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int) error
	UpdatePage(ctx context.Context, id uuid.UUID, tag string, page int) error
	CompleteJob(ctx context.Context, id uuid.UUID, out Outcome) error
	FailJob(ctx context.Context, id uuid.UUID, out Outcome, reason string) error
}

type Sources interface {
	Get(p domain.Provider) (source.Source, error)
}

type ArtifactWriter interface {
	Write(provider domain.Provider, city string, raw []domain.RawEvent, events []domain.NormalizedEvent) ([]string, error)
}

type LogPublisher interface {
	Publish(e logstream.Entry)
}

type Notifier interface {
	Notify(ctx context.Context, job domain.ScrapeJob) WebhookResult
}

type AnalyticsSink interface {
	Record(ctx context.Context, job domain.ScrapeJob)
}

// MetricsSink defines the interface for recording dispatcher metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	JobStarted(provider string)
	JobFinished(provider, outcome string, duration time.Duration)
	JobsInFlightIncr()
	JobsInFlightDecr()
}

type Dispatcher struct {
	store        Store
	sources      Sources
	log          zerolog.Logger
	artifacts    ArtifactWriter // optional, nil = no files
	hub          LogPublisher   // optional, nil = log only
	notifier     Notifier       // optional, nil = no callbacks
	analytics    AnalyticsSink  // optional, nil = disabled
	metrics      MetricsSink    // optional, nil = disabled
	workers      int
	drainTimeout time.Duration
	now          func() time.Time
}

func New(store Store, sources Sources, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		sources:      sources,
		log:          log,
		workers:      1,
		drainTimeout: DefaultDrainTimeout,
		now:          time.Now,
	}
}

func (d *Dispatcher) WithArtifacts(w ArtifactWriter) *Dispatcher {
	d.artifacts = w
	return d
}

// WithLogHub publishes job log lines to live subscribers.
func (d *Dispatcher) WithLogHub(hub LogPublisher) *Dispatcher {
	d.hub = hub
	return d
}

func (d *Dispatcher) WithNotifier(n Notifier) *Dispatcher {
	d.notifier = n
	return d
}

func (d *Dispatcher) WithAnalytics(sink AnalyticsSink) *Dispatcher {
	d.analytics = sink
	return d
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

// WithWorkers sets how many jobs run at once. Each job still owns a single
// browser session and crawls its tags sequentially.
func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

// WithDrainTimeout sets the maximum time to wait for buffered jobs during shutdown.
func (d *Dispatcher) WithDrainTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.drainTimeout = timeout
	}
	return d
}

// WithClock replaces the time source. Used by tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run processes job requests from the channel until ctx is cancelled.
// After cancellation, jobs still buffered are marked failed so no job is
// left pending forever.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.JobRequest) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx, ch)
		}()
	}
	wg.Wait()
	d.drain(ch)
}

func (d *Dispatcher) work(ctx context.Context, ch <-chan domain.JobRequest) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-ch:
			if !ok {
				return
			}
			if _, err := d.Execute(ctx, req.JobID); err != nil {
				d.log.Error().Err(err).Str("job_id", req.JobID.String()).Msg("job failed")
			}
		}
	}
}

// drain fails the jobs left in the channel buffer after the shutdown signal.
// Uses a background context since the main context is already cancelled.
func (d *Dispatcher) drain(ch <-chan domain.JobRequest) {
	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				d.log.Warn().Int("jobs", count).Msg("drain timeout")
			}
			return
		case req, ok := <-ch:
			if !ok {
				d.log.Info().Int("jobs", count).Msg("drain complete")
				return
			}
			d.abandon(drainCtx, req)
			count++
		default:
			if count > 0 {
				d.log.Info().Int("jobs", count).Msg("drain complete")
			}
			return
		}
	}
}

func (d *Dispatcher) abandon(ctx context.Context, req domain.JobRequest) {
	err := d.store.FailJob(ctx, req.JobID, Outcome{}, ReasonShutdown)
	switch {
	case err == nil:
		if d.metrics != nil {
			d.metrics.JobFinished(string(req.Provider), "abandoned", 0)
		}
	case errors.Is(err, ErrStatusTransitionDenied):
	default:
		d.log.Error().Err(err).Str("job_id", req.JobID.String()).Msg("drain: fail job")
	}
}

// Execute runs one job to a terminal state and returns the stored result.
// A job that is already terminal is returned untouched. The scrape error,
// if any, is returned after the failure has been recorded.
func (d *Dispatcher) Execute(ctx context.Context, id uuid.UUID) (domain.ScrapeJob, error) {
	job, err := d.store.GetJob(ctx, id)
	if err != nil {
		return domain.ScrapeJob{}, fmt.Errorf("get job: %w", err)
	}

	if err := d.store.UpdateStatus(ctx, id, domain.JobStatusInProgress); err != nil {
		if errors.Is(err, ErrStatusTransitionDenied) {
			d.log.Info().Str("job_id", id.String()).Str("status", string(job.Status)).
				Msg("job already terminal, skipping")
			return job, nil
		}
		return job, fmt.Errorf("start job: %w", err)
	}

	provider := string(job.Provider)
	if d.metrics != nil {
		d.metrics.JobStarted(provider)
		d.metrics.JobsInFlightIncr()
		defer d.metrics.JobsInFlightDecr()
	}
	started := d.now()

	rep := d.reporter(ctx, job)
	runErr := d.run(ctx, job, rep)

	// Terminal bookkeeping must survive a cancelled job context.
	finalCtx := context.WithoutCancel(ctx)
	final, err := d.store.GetJob(finalCtx, id)
	if err != nil {
		return job, fmt.Errorf("get job: %w", err)
	}

	if d.metrics != nil {
		d.metrics.JobFinished(provider, string(final.Status), d.now().Sub(started))
	}
	if d.analytics != nil && final.Status == domain.JobStatusCompleted {
		d.analytics.Record(finalCtx, final)
	}
	if d.notifier != nil && final.CallbackURL != "" {
		res := d.notifier.Notify(finalCtx, final)
		if !res.IsSuccess() {
			rep.Logf(zerolog.WarnLevel, "Callback to %s failed: status=%d err=%v", final.CallbackURL, res.StatusCode, res.Error)
		}
	}
	return final, runErr
}

func (d *Dispatcher) run(ctx context.Context, job domain.ScrapeJob, rep *jobReporter) error {
	finalCtx := context.WithoutCancel(ctx)

	src, err := d.sources.Get(job.Provider)
	if err != nil {
		return d.fail(finalCtx, job, Outcome{}, rep, err)
	}

	rep.Logf(zerolog.InfoLevel, "Starting %s scrape for %s (%d tags)", job.Provider, job.City, len(job.Tags))
	res, err := src.Scrape(ctx, job, rep)
	out := Outcome{Raw: res.Raw, Events: res.Events}
	if err != nil {
		return d.fail(finalCtx, job, out, rep, err)
	}

	if d.artifacts != nil {
		paths, err := d.artifacts.Write(job.Provider, job.City, res.Raw, res.Events)
		if err != nil {
			return d.fail(finalCtx, job, out, rep, fmt.Errorf("write artifacts: %w", err))
		}
		out.Artifacts = paths
		for _, p := range paths {
			rep.Logf(zerolog.InfoLevel, "Saved data to %s", p)
		}
	}

	if err := d.store.CompleteJob(finalCtx, job.ID, out); err != nil {
		if errors.Is(err, ErrStatusTransitionDenied) {
			return nil
		}
		return fmt.Errorf("complete job: %w", err)
	}
	rep.Logf(zerolog.InfoLevel, "Scraping completed: %d raw events, %d unique events", len(out.Raw), len(out.Events))
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, job domain.ScrapeJob, out Outcome, rep *jobReporter, cause error) error {
	rep.Logf(zerolog.ErrorLevel, "Job failed: %v", cause)
	if err := d.store.FailJob(ctx, job.ID, out, cause.Error()); err != nil && !errors.Is(err, ErrStatusTransitionDenied) {
		return fmt.Errorf("fail job: %w (cause: %v)", err, cause)
	}
	return cause
}
