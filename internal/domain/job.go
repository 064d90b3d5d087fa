package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned by stores for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

type Provider string

const (
	ProviderEventbrite Provider = "eventbrite"
	ProviderLuma       Provider = "luma"
)

// Valid reports whether p names a supported provider.
func (p Provider) Valid() bool {
	return p == ProviderEventbrite || p == ProviderLuma
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ScrapeJob is one city/tag-set scrape. It is created pending, mutated by the
// crawl loop page by page, and ends completed or failed.
type ScrapeJob struct {
	ID       uuid.UUID
	Provider Provider

	City string
	Tags []string

	// Pages holds the last page scraped per tag.
	Pages map[string]int

	RawEvents []RawEvent
	Events    []NormalizedEvent

	Status   JobStatus
	Progress int // 0-100
	Error    string

	// Artifacts lists files written for a completed job.
	Artifacts []string

	CallbackURL    string
	IdempotencyKey string // set by scheduled sweeps; empty for API submissions

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	UpdatedAt  time.Time
}

// JobRequest is emitted on the bus when a job is ready to run.
type JobRequest struct {
	JobID       uuid.UUID
	Provider    Provider
	SubmittedAt time.Time
}
