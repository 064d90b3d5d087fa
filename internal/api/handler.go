package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smyja/web3event/internal/dispatcher"
	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/logstream"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Store interface {
	CreateJob(ctx context.Context, job domain.ScrapeJob) error
	GetJob(ctx context.Context, id uuid.UUID) (domain.ScrapeJob, error)
	ListJobs(ctx context.Context, limit, offset int) ([]domain.ScrapeJob, error)
	FailJob(ctx context.Context, id uuid.UUID, out dispatcher.Outcome, reason string) error
}

// JobEmitter queues a job for the background dispatcher.
type JobEmitter interface {
	Emit(ctx context.Context, req domain.JobRequest) error
}

// Runner executes a stored job inline. Used by the synchronous and
// streaming scrape endpoints.
type Runner interface {
	Execute(ctx context.Context, id uuid.UUID) (domain.ScrapeJob, error)
}

// LogSubscriber is the live log feed behind /ws and POST /scrape.
type LogSubscriber interface {
	Subscribe(jobID uuid.UUID) (<-chan logstream.Entry, func())
}

// HealthChecker reports the health of an optional backing service.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store   Store
	emitter JobEmitter
	catalog domain.Catalog
	log     zerolog.Logger
	runner  Runner        // optional, nil = no inline scrapes
	logs    LogSubscriber // optional, nil = no live logs
	health  map[string]HealthChecker
	baseCtx context.Context
	now     func() time.Time
}

func NewHandler(store Store, emitter JobEmitter, catalog domain.Catalog, log zerolog.Logger) *Handler {
	return &Handler{
		store:   store,
		emitter: emitter,
		catalog: catalog,
		log:     log,
		health:  make(map[string]HealthChecker),
		baseCtx: context.Background(),
		now:     time.Now,
	}
}

func (h *Handler) WithRunner(r Runner) *Handler {
	h.runner = r
	return h
}

func (h *Handler) WithLogStream(s LogSubscriber) *Handler {
	h.logs = s
	return h
}

// WithHealthChecker adds a named component to verbose /health responses.
func (h *Handler) WithHealthChecker(name string, c HealthChecker) *Handler {
	h.health[name] = c
	return h
}

// WithBaseContext sets the context inline scrapes and websocket streams run
// under. Cancelling it (server shutdown) stops them; a client disconnect
// does not.
func (h *Handler) WithBaseContext(ctx context.Context) *Handler {
	h.baseCtx = ctx
	return h
}

// WithClock replaces the time source. Used by tests.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.healthCheck(w, r)

	case path == "/cities" && r.Method == http.MethodGet:
		h.listCities(w, r)

	case path == "/jobs" && r.Method == http.MethodPost:
		h.createJob(w, r)

	case path == "/jobs" && r.Method == http.MethodGet:
		h.listJobs(w, r)

	case strings.HasPrefix(path, "/jobs/") && strings.HasSuffix(path, "/events") && r.Method == http.MethodGet:
		h.jobEvents(w, r)

	case strings.HasPrefix(path, "/jobs/") && r.Method == http.MethodGet:
		h.getJob(w, r)

	case path == "/scrape" && r.Method == http.MethodPost:
		h.scrapeStream(w, r)

	case path == "/scrape/sync" && r.Method == http.MethodPost:
		h.scrapeSync(w, r)

	case path == "/ws" && r.Method == http.MethodGet:
		h.streamLogs(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	// Check if verbose mode requested via ?verbose=true
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || len(h.health) == 0 {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	for name, c := range h.health {
		if err := c.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = "unhealthy: " + err.Error()
		} else {
			resp.Components[name] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) listCities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CitiesResponse{Cities: h.catalog.Cities, Tags: h.catalog.Tags})
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// decodeJob reads and validates a job request, writing the error response
// itself when it fails.
func (h *Handler) decodeJob(w http.ResponseWriter, r *http.Request) (CreateJobRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}

	if err := validateCreateJob(req, h.catalog); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) newJob(req CreateJobRequest) domain.ScrapeJob {
	provider := domain.Provider(req.Provider)
	if provider == "" {
		provider = domain.ProviderEventbrite
	}
	tags := req.Tags
	if len(tags) == 0 {
		tags = h.catalog.DefaultTags(provider)
	}
	return domain.ScrapeJob{
		ID:          uuid.New(),
		Provider:    provider,
		City:        req.City,
		Tags:        append([]string(nil), tags...),
		Status:      domain.JobStatusPending,
		CallbackURL: req.CallbackURL,
		CreatedAt:   h.now().UTC(),
	}
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeJob(w, r)
	if !ok {
		return
	}

	job := h.newJob(req)
	if err := h.store.CreateJob(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("create job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	err := h.emitter.Emit(r.Context(), domain.JobRequest{JobID: job.ID, Provider: job.Provider, SubmittedAt: job.CreatedAt})
	if err != nil {
		reason := fmt.Sprintf("job queue unavailable: %v", err)
		if ferr := h.store.FailJob(context.WithoutCancel(r.Context()), job.ID, dispatcher.Outcome{}, reason); ferr != nil {
			h.log.Error().Err(ferr).Str("job_id", job.ID.String()).Msg("fail unqueued job")
		}
		h.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("emit job")
		writeError(w, http.StatusServiceUnavailable, "job queue unavailable")
		return
	}

	h.log.Info().
		Str("job_id", job.ID.String()).
		Str("provider", string(job.Provider)).
		Str("city", job.City).
		Int("tags", len(job.Tags)).
		Msg("job accepted")
	writeJSON(w, http.StatusAccepted, CreateJobResponse{JobID: job.ID.String(), Status: string(job.Status)})
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := h.store.ListJobs(r.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list jobs")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = newJobResponse(job)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	// Extract job ID from path: /jobs/{id}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "jobs" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	job, ok := h.lookupJob(w, r, parts[1])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

func (h *Handler) jobEvents(w http.ResponseWriter, r *http.Request) {
	// Extract job ID from path: /jobs/{id}/events
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "jobs" || parts[2] != "events" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	job, ok := h.lookupJob(w, r, parts[1])
	if !ok {
		return
	}
	if job.Status != domain.JobStatusCompleted {
		writeError(w, http.StatusConflict, "job is "+string(job.Status))
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{JobID: job.ID.String(), Events: eventsOrEmpty(job.Events)})
}

func (h *Handler) lookupJob(w http.ResponseWriter, r *http.Request, rawID string) (domain.ScrapeJob, bool) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return domain.ScrapeJob{}, false
	}

	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return domain.ScrapeJob{}, false
		}
		h.log.Error().Err(err).Str("job_id", rawID).Msg("get job")
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return domain.ScrapeJob{}, false
	}
	return job, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("api: json encode")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
