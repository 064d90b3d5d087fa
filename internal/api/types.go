package api

import (
	"time"

	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/logstream"
)

// CreateJobRequest is the body of POST /jobs, /scrape and /scrape/sync.
// Provider defaults to eventbrite. Eventbrite jobs without tags get the
// catalog tags; Luma jobs keep only the tags the caller names.
type CreateJobRequest struct {
	City        string   `json:"city"`
	Tags        []string `json:"tags,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

type CreateJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type JobResponse struct {
	ID          string         `json:"id"`
	Provider    string         `json:"provider"`
	City        string         `json:"city"`
	Tags        []string       `json:"tags"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	Error       string         `json:"error,omitempty"`
	Pages       map[string]int `json:"pages,omitempty"`
	RawEvents   int            `json:"raw_events"`
	Events      int            `json:"events"`
	Artifacts   []string       `json:"artifacts,omitempty"`
	CallbackURL string         `json:"callback_url,omitempty"`
	CreatedAt   string         `json:"created_at"`
	StartedAt   string         `json:"started_at,omitempty"`
	FinishedAt  string         `json:"finished_at,omitempty"`
}

type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type EventsResponse struct {
	JobID  string                   `json:"job_id"`
	Events []domain.NormalizedEvent `json:"events"`
}

// ScrapeResult is the final JSON block of POST /scrape and the body of
// POST /scrape/sync.
type ScrapeResult struct {
	JobID  string                   `json:"job_id,omitempty"`
	Status string                   `json:"status,omitempty"`
	Error  string                   `json:"error,omitempty"`
	Events []domain.NormalizedEvent `json:"events"`
}

type CitiesResponse struct {
	Cities []domain.City `json:"cities"`
	Tags   []string      `json:"tags"`
}

// LogMessage is one websocket frame on /ws.
type LogMessage struct {
	Log logstream.Entry `json:"log"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func newJobResponse(job domain.ScrapeJob) JobResponse {
	resp := JobResponse{
		ID:          job.ID.String(),
		Provider:    string(job.Provider),
		City:        job.City,
		Tags:        job.Tags,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Error:       job.Error,
		Pages:       job.Pages,
		RawEvents:   len(job.RawEvents),
		Events:      len(job.Events),
		Artifacts:   job.Artifacts,
		CallbackURL: job.CallbackURL,
		CreatedAt:   formatTime(job.CreatedAt),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if !job.StartedAt.IsZero() {
		resp.StartedAt = formatTime(job.StartedAt)
	}
	if !job.FinishedAt.IsZero() {
		resp.FinishedAt = formatTime(job.FinishedAt)
	}
	return resp
}

func eventsOrEmpty(events []domain.NormalizedEvent) []domain.NormalizedEvent {
	if events == nil {
		return []domain.NormalizedEvent{}
	}
	return events
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
