// Package scheduler runs periodic sweeps: at every due time of the sweep
// schedule it submits one scrape job per configured provider and city.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/dispatcher"
	"github.com/smyja/web3event/internal/domain"
)

var ErrDuplicateJob = errors.New("job already exists")

// maxDueTimes bounds how many missed fire times a single tick catches up on.
const maxDueTimes = 1000

type Store interface {
	// CreateJob MUST reject a job whose idempotency key is already stored
	// with ErrDuplicateJob.
	CreateJob(ctx context.Context, job domain.ScrapeJob) error
	FailJob(ctx context.Context, id uuid.UUID, out dispatcher.Outcome, reason string) error
}

type CronParser interface {
	Parse(expression string, timezone string) (CronSchedule, error)
}

type CronSchedule interface {
	Next(after time.Time) time.Time
}

type JobEmitter interface {
	Emit(ctx context.Context, req domain.JobRequest) error
}

// MetricsSink defines the interface for recording sweep metrics.
type MetricsSink interface {
	SweepCompleted(jobsSubmitted int, err error)
}

type Config struct {
	TickInterval time.Duration
	Expression   string
	Timezone     string
	Providers    []domain.Provider

	// Catalog supplies the cities and default tags swept for each provider.
	Catalog domain.Catalog
}

type Scheduler struct {
	config   Config
	store    Store
	parser   CronParser
	emitter  JobEmitter
	metrics  MetricsSink
	log      zerolog.Logger
	clock    func() time.Time
	schedule CronSchedule
	lastTick time.Time
}

func New(config Config, store Store, parser CronParser, emitter JobEmitter, log zerolog.Logger) *Scheduler {
	if len(config.Providers) == 0 {
		config.Providers = []domain.Provider{domain.ProviderEventbrite}
	}
	return &Scheduler{
		config:  config,
		store:   store,
		parser:  parser,
		emitter: emitter,
		log:     log,
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink to the scheduler.
func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// WithClock replaces the time source. Used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.clock = now
	return s
}

// Run ticks until ctx is cancelled. Due times that fall between two ticks
// are all submitted on the later tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.init(); err != nil {
		return err
	}

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.log.Info().
		Str("cron", s.config.Expression).
		Str("timezone", s.config.Timezone).
		Dur("tick", s.config.TickInterval).
		Int("cities", len(s.config.Catalog.Cities)).
		Msg("started")
	s.lastTick = s.clock().UTC()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.processTick(ctx); err != nil {
				s.log.Error().Err(err).Msg("tick error")
			}
		}
	}
}

func (s *Scheduler) init() error {
	if s.schedule != nil {
		return nil
	}
	sched, err := s.parser.Parse(s.config.Expression, s.config.Timezone)
	if err != nil {
		return fmt.Errorf("sweep schedule: %w", err)
	}
	s.schedule = sched
	return nil
}

func (s *Scheduler) processTick(ctx context.Context) error {
	if err := s.init(); err != nil {
		return err
	}
	now := s.clock().UTC()

	submitted := 0
	var tickErr error
	t := s.schedule.Next(s.lastTick)
	for i := 0; i < maxDueTimes && !t.IsZero() && !t.After(now); i++ {
		scheduledAt := t.UTC().Truncate(time.Minute)
		n, err := s.sweep(ctx, scheduledAt, now)
		submitted += n
		if err != nil {
			tickErr = err
		}
		t = s.schedule.Next(t)
	}

	s.lastTick = now
	if s.metrics != nil {
		s.metrics.SweepCompleted(submitted, tickErr)
	}
	return tickErr
}

// sweep submits one job per provider and city for scheduledAt. Cities a
// provider does not cover are left out. Jobs that were already submitted for
// the same due time are skipped.
func (s *Scheduler) sweep(ctx context.Context, scheduledAt, now time.Time) (int, error) {
	submitted := 0
	var lastErr error
	for _, provider := range s.config.Providers {
		for _, city := range s.config.Catalog.CityIDsFor(provider) {
			err := s.submit(ctx, provider, city, scheduledAt, now)
			switch {
			case err == nil:
				submitted++
			case errors.Is(err, ErrDuplicateJob):
			default:
				lastErr = err
				s.log.Error().Err(err).
					Str("provider", string(provider)).
					Str("city", city).
					Time("scheduled_at", scheduledAt).
					Msg("sweep submit failed")
			}
		}
	}
	return submitted, lastErr
}

func (s *Scheduler) submit(ctx context.Context, provider domain.Provider, city string, scheduledAt, now time.Time) error {
	job := domain.ScrapeJob{
		ID:             uuid.New(),
		Provider:       provider,
		City:           city,
		Tags:           s.config.Catalog.DefaultTags(provider),
		Status:         domain.JobStatusPending,
		IdempotencyKey: generateIdempotencyKey(provider, city, scheduledAt),
		CreatedAt:      now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, ErrDuplicateJob) {
			return err
		}
		return fmt.Errorf("create job: %w", err)
	}

	req := domain.JobRequest{JobID: job.ID, Provider: provider, SubmittedAt: now}
	if err := s.emitter.Emit(ctx, req); err != nil {
		reason := fmt.Sprintf("job queue unavailable: %v", err)
		if ferr := s.store.FailJob(context.WithoutCancel(ctx), job.ID, dispatcher.Outcome{}, reason); ferr != nil {
			s.log.Error().Err(ferr).Str("job_id", job.ID.String()).Msg("fail unqueued job")
		}
		return fmt.Errorf("emit: %w", err)
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("provider", string(provider)).
		Str("city", city).
		Time("scheduled_at", scheduledAt).
		Msg("submitted")
	return nil
}

func generateIdempotencyKey(provider domain.Provider, city string, scheduledAt time.Time) string {
	data := fmt.Sprintf("%s:%s:%d", provider, city, scheduledAt.Unix())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
