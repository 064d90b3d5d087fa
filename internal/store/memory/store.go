// Package memory is the job store. Jobs live only for the lifetime of the
// process; scraped data is persisted as JSON artifacts by the output sink.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smyja/web3event/internal/dispatcher"
	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/scheduler"
)

type Store struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]*domain.ScrapeJob
	keys  map[string]uuid.UUID
	clock func() time.Time
}

func New() *Store {
	return &Store{
		jobs:  make(map[uuid.UUID]*domain.ScrapeJob),
		keys:  make(map[string]uuid.UUID),
		clock: time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Store) WithClock(fn func() time.Time) *Store {
	s.clock = fn
	return s
}

// CreateJob stores a new job. A job whose ID or idempotency key already
// exists is rejected with scheduler.ErrDuplicateJob.
func (s *Store) CreateJob(ctx context.Context, job domain.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return scheduler.ErrDuplicateJob
	}
	if job.IdempotencyKey != "" {
		if _, ok := s.keys[job.IdempotencyKey]; ok {
			return scheduler.ErrDuplicateJob
		}
		s.keys[job.IdempotencyKey] = job.ID
	}

	now := s.clock().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	if job.Pages == nil {
		job.Pages = make(map[string]int)
	}
	stored := clone(job)
	s.jobs[job.ID] = &stored
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (domain.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return domain.ScrapeJob{}, domain.ErrJobNotFound
	}
	return clone(*j), nil
}

// ListJobs returns jobs newest first, without their event payloads.
func (s *Store) ListJobs(ctx context.Context, limit, offset int) ([]domain.ScrapeJob, error) {
	s.mu.RLock()
	all := make([]domain.ScrapeJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		summary := clone(*j)
		summary.RawEvents = nil
		summary.Events = nil
		all = append(all, summary)
	}
	s.mu.RUnlock()

	sortNewestFirst(all)
	if offset >= len(all) {
		return []domain.ScrapeJob{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// UpdateStatus moves a job to status. Leaving a terminal state is rejected
// with dispatcher.ErrStatusTransitionDenied.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus) error {
	return s.mutate(id, func(j *domain.ScrapeJob, now time.Time) error {
		if j.Status.IsTerminal() {
			return dispatcher.ErrStatusTransitionDenied
		}
		j.Status = status
		if status == domain.JobStatusInProgress && j.StartedAt.IsZero() {
			j.StartedAt = now
		}
		return nil
	})
}

func (s *Store) UpdateProgress(ctx context.Context, id uuid.UUID, percent int) error {
	return s.mutate(id, func(j *domain.ScrapeJob, _ time.Time) error {
		if j.Status.IsTerminal() {
			return dispatcher.ErrStatusTransitionDenied
		}
		j.Progress = clamp(percent)
		return nil
	})
}

// UpdatePage records the last page scraped for a tag.
func (s *Store) UpdatePage(ctx context.Context, id uuid.UUID, tag string, page int) error {
	return s.mutate(id, func(j *domain.ScrapeJob, _ time.Time) error {
		if j.Pages == nil {
			j.Pages = make(map[string]int)
		}
		j.Pages[tag] = page
		return nil
	})
}

// CompleteJob stores the result and marks the job completed.
func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID, out dispatcher.Outcome) error {
	return s.finish(id, domain.JobStatusCompleted, out, "")
}

// FailJob stores whatever was gathered and marks the job failed.
func (s *Store) FailJob(ctx context.Context, id uuid.UUID, out dispatcher.Outcome, reason string) error {
	return s.finish(id, domain.JobStatusFailed, out, reason)
}

func (s *Store) finish(id uuid.UUID, status domain.JobStatus, out dispatcher.Outcome, reason string) error {
	return s.mutate(id, func(j *domain.ScrapeJob, now time.Time) error {
		if j.Status.IsTerminal() {
			return dispatcher.ErrStatusTransitionDenied
		}
		j.Status = status
		j.RawEvents = append([]domain.RawEvent(nil), out.Raw...)
		j.Events = append([]domain.NormalizedEvent(nil), out.Events...)
		j.Artifacts = append([]string(nil), out.Artifacts...)
		j.Error = reason
		j.FinishedAt = now
		if status == domain.JobStatusCompleted {
			j.Progress = 100
		}
		return nil
	})
}

// StuckJobs returns in-progress jobs started before cutoff, oldest first.
func (s *Store) StuckJobs(ctx context.Context, cutoff time.Time, max int) ([]domain.ScrapeJob, error) {
	s.mu.RLock()
	var out []domain.ScrapeJob
	for _, j := range s.jobs {
		if j.Status == domain.JobStatusInProgress && j.StartedAt.Before(cutoff) {
			out = append(out, clone(*j))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.Before(out[b].StartedAt) })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

// PruneJobs deletes terminal jobs finished before cutoff and returns how
// many were removed.
func (s *Store) PruneJobs(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			if j.IdempotencyKey != "" {
				delete(s.keys, j.IdempotencyKey)
			}
			n++
		}
	}
	return n, nil
}

// Len is the number of jobs held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) mutate(id uuid.UUID, fn func(j *domain.ScrapeJob, now time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, domain.ErrJobNotFound)
	}
	now := s.clock().UTC()
	if err := fn(j, now); err != nil {
		return err
	}
	j.UpdatedAt = now
	return nil
}

func sortNewestFirst(jobs []domain.ScrapeJob) {
	sort.SliceStable(jobs, func(a, b int) bool {
		if jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].ID.String() < jobs[b].ID.String()
		}
		return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
	})
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// clone copies the slices and maps of a job so callers cannot mutate
// stored state.
func clone(j domain.ScrapeJob) domain.ScrapeJob {
	j.Tags = append([]string(nil), j.Tags...)
	j.RawEvents = append([]domain.RawEvent(nil), j.RawEvents...)
	j.Events = append([]domain.NormalizedEvent(nil), j.Events...)
	j.Artifacts = append([]string(nil), j.Artifacts...)
	if j.Pages != nil {
		pages := make(map[string]int, len(j.Pages))
		for k, v := range j.Pages {
			pages[k] = v
		}
		j.Pages = pages
	}
	return j
}
