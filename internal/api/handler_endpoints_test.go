package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/dispatcher"
	"github.com/smyja/web3event/internal/domain"
)

// mockHandlerStore implements api.Store for handler tests.
type mockHandlerStore struct {
	mu sync.Mutex

	jobs    map[uuid.UUID]domain.ScrapeJob
	created []domain.ScrapeJob
	failed  map[uuid.UUID]string

	createJobFn func(ctx context.Context, job domain.ScrapeJob) error
	listJobsFn  func(ctx context.Context, limit, offset int) ([]domain.ScrapeJob, error)
	getJobFn    func(ctx context.Context, id uuid.UUID) (domain.ScrapeJob, error)
}

func newMockStore() *mockHandlerStore {
	return &mockHandlerStore{
		jobs:   make(map[uuid.UUID]domain.ScrapeJob),
		failed: make(map[uuid.UUID]string),
	}
}

func (s *mockHandlerStore) CreateJob(ctx context.Context, job domain.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createJobFn != nil {
		if err := s.createJobFn(ctx, job); err != nil {
			return err
		}
	}
	s.jobs[job.ID] = job
	s.created = append(s.created, job)
	return nil
}

func (s *mockHandlerStore) GetJob(ctx context.Context, id uuid.UUID) (domain.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getJobFn != nil {
		return s.getJobFn(ctx, id)
	}
	job, ok := s.jobs[id]
	if !ok {
		return domain.ScrapeJob{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *mockHandlerStore) ListJobs(ctx context.Context, limit, offset int) ([]domain.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listJobsFn != nil {
		return s.listJobsFn(ctx, limit, offset)
	}
	return nil, nil
}

func (s *mockHandlerStore) FailJob(ctx context.Context, id uuid.UUID, out dispatcher.Outcome, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = reason
	job := s.jobs[id]
	job.Status = domain.JobStatusFailed
	job.Error = reason
	s.jobs[id] = job
	return nil
}

func (s *mockHandlerStore) put(job domain.ScrapeJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// mockEmitter implements JobEmitter.
type mockEmitter struct {
	mu      sync.Mutex
	emitted []domain.JobRequest
	err     error
}

func (e *mockEmitter) Emit(ctx context.Context, req domain.JobRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.emitted = append(e.emitted, req)
	return nil
}

// mockHealthChecker implements HealthChecker for handler tests.
type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHandler(store *mockHandlerStore, emitter *mockEmitter) *Handler {
	return NewHandler(store, emitter, domain.DefaultCatalog(), zerolog.Nop()).
		WithClock(func() time.Time { return testNow })
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// --- CreateJob Tests ---

func TestHandler_CreateJob_Success(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}
	handler := newTestHandler(store, emitter)

	w := serve(handler, http.MethodPost, "/jobs", `{"city": "ny--new-york", "tags": ["token"]}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp CreateJobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Status != "pending" {
		t.Errorf("Status = %q, want pending", resp.Status)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 stored job, got %d", len(store.created))
	}
	job := store.created[0]
	if job.ID.String() != resp.JobID {
		t.Errorf("stored job %s does not match response %s", job.ID, resp.JobID)
	}
	if job.Provider != domain.ProviderEventbrite {
		t.Errorf("Provider = %q, want eventbrite", job.Provider)
	}
	if len(job.Tags) != 1 || job.Tags[0] != "token" {
		t.Errorf("Tags = %v, want [token]", job.Tags)
	}
	if !job.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", job.CreatedAt, testNow)
	}

	if len(emitter.emitted) != 1 || emitter.emitted[0].JobID != job.ID {
		t.Errorf("expected job to be emitted once, got %v", emitter.emitted)
	}
}

func TestHandler_CreateJob_DefaultTags(t *testing.T) {
	store := newMockStore()
	handler := newTestHandler(store, &mockEmitter{})

	w := serve(handler, http.MethodPost, "/jobs", `{"city": "gb--london"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	want := domain.DefaultCatalog().Tags
	if got := store.created[0].Tags; len(got) != len(want) {
		t.Errorf("expected %d default tags, got %v", len(want), got)
	}
}

func TestHandler_CreateJob_LumaGetsNoDefaultTags(t *testing.T) {
	store := newMockStore()
	handler := newTestHandler(store, &mockEmitter{})

	w := serve(handler, http.MethodPost, "/jobs", `{"city": "gb--london", "provider": "luma"}`)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if got := store.created[0].Tags; len(got) != 0 {
		t.Errorf("luma job tags = %v, want none", got)
	}
}

func TestHandler_CreateJob_InvalidCity(t *testing.T) {
	store := newMockStore()
	emitter := &mockEmitter{}
	handler := newTestHandler(store, emitter)

	w := serve(handler, http.MethodPost, "/jobs", `{"city": "fr--paris"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"error":"invalid city"}` {
		t.Errorf("body = %s", got)
	}
	if len(store.created) != 0 || len(emitter.emitted) != 0 {
		t.Error("no job should be created for an invalid city")
	}
}

func TestHandler_CreateJob_InvalidJSON(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{})

	w := serve(handler, http.MethodPost, "/jobs", "{invalid")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandler_CreateJob_StoreError(t *testing.T) {
	store := newMockStore()
	store.createJobFn = func(ctx context.Context, job domain.ScrapeJob) error {
		return errors.New("store error")
	}
	emitter := &mockEmitter{}
	handler := newTestHandler(store, emitter)

	w := serve(handler, http.MethodPost, "/jobs", `{"city": "ny--new-york"}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if len(emitter.emitted) != 0 {
		t.Error("job should not be emitted when it was not stored")
	}
}

func TestHandler_CreateJob_EmitFailureFailsJob(t *testing.T) {
	store := newMockStore()
	handler := newTestHandler(store, &mockEmitter{err: errors.New("buffer full")})

	w := serve(handler, http.MethodPost, "/jobs", `{"city": "ny--new-york"}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	id := store.created[0].ID
	if reason := store.failed[id]; !strings.Contains(reason, "job queue unavailable") {
		t.Errorf("job should be failed with queue reason, got %q", reason)
	}
}

func TestHandler_CreateJob_BodyTooLarge(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{})

	largeBody := `{"city": "` + strings.Repeat("a", 1<<20+1) + `"}`
	w := serve(handler, http.MethodPost, "/jobs", largeBody)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

// --- Read endpoints ---

func TestHandler_GetJob(t *testing.T) {
	store := newMockStore()
	job := domain.ScrapeJob{
		ID:        uuid.New(),
		Provider:  domain.ProviderEventbrite,
		City:      "ny--new-york",
		Tags:      []string{"token"},
		Status:    domain.JobStatusInProgress,
		Progress:  50,
		Pages:     map[string]int{"token": 2},
		CreatedAt: testNow,
		StartedAt: testNow.Add(time.Second),
	}
	store.put(job)
	handler := newTestHandler(store, &mockEmitter{})

	w := serve(handler, http.MethodGet, "/jobs/"+job.ID.String(), "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "in_progress" || resp.Progress != 50 {
		t.Errorf("got status=%s progress=%d", resp.Status, resp.Progress)
	}
	if resp.Pages["token"] != 2 {
		t.Errorf("pages = %v", resp.Pages)
	}
	if resp.StartedAt != "2026-03-01T12:00:01Z" {
		t.Errorf("StartedAt = %q", resp.StartedAt)
	}
	if resp.FinishedAt != "" {
		t.Errorf("FinishedAt should be empty, got %q", resp.FinishedAt)
	}
}

func TestHandler_GetJob_NotFound(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{})

	w := serve(handler, http.MethodGet, "/jobs/"+uuid.NewString(), "")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandler_GetJob_InvalidID(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{})

	w := serve(handler, http.MethodGet, "/jobs/not-a-uuid", "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandler_GetJob_StoreError(t *testing.T) {
	store := newMockStore()
	store.getJobFn = func(ctx context.Context, id uuid.UUID) (domain.ScrapeJob, error) {
		return domain.ScrapeJob{}, errors.New("boom")
	}
	handler := newTestHandler(store, &mockEmitter{})

	w := serve(handler, http.MethodGet, "/jobs/"+uuid.NewString(), "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandler_JobEvents(t *testing.T) {
	store := newMockStore()
	done := domain.ScrapeJob{
		ID:     uuid.New(),
		Status: domain.JobStatusCompleted,
		Events: []domain.NormalizedEvent{{Title: "ETH Meetup", Href: "https://x/1", Organizers: []string{}}},
	}
	running := domain.ScrapeJob{ID: uuid.New(), Status: domain.JobStatusInProgress}
	empty := domain.ScrapeJob{ID: uuid.New(), Status: domain.JobStatusCompleted}
	store.put(done)
	store.put(running)
	store.put(empty)
	handler := newTestHandler(store, &mockEmitter{})

	w := serve(handler, http.MethodGet, "/jobs/"+done.ID.String()+"/events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp EventsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Title != "ETH Meetup" {
		t.Errorf("events = %+v", resp.Events)
	}

	w = serve(handler, http.MethodGet, "/jobs/"+running.ID.String()+"/events", "")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for running job, got %d", w.Code)
	}

	w = serve(handler, http.MethodGet, "/jobs/"+empty.ID.String()+"/events", "")
	if !strings.Contains(w.Body.String(), `"events":[]`) {
		t.Errorf("empty completed job should return an empty list: %s", w.Body.String())
	}
}

func TestHandler_ListJobs(t *testing.T) {
	store := newMockStore()
	var gotLimit, gotOffset int
	store.listJobsFn = func(ctx context.Context, limit, offset int) ([]domain.ScrapeJob, error) {
		gotLimit, gotOffset = limit, offset
		return []domain.ScrapeJob{
			{ID: uuid.New(), City: "ny--new-york", Status: domain.JobStatusCompleted},
			{ID: uuid.New(), City: "gb--london", Status: domain.JobStatusPending},
		}, nil
	}
	handler := newTestHandler(store, &mockEmitter{})

	w := serve(handler, http.MethodGet, "/jobs?limit=10&offset=5", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotLimit != 10 || gotOffset != 5 {
		t.Errorf("pagination = %d/%d, want 10/5", gotLimit, gotOffset)
	}
	var resp ListJobsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Jobs) != 2 || resp.Jobs[1].City != "gb--london" {
		t.Errorf("jobs = %+v", resp.Jobs)
	}
	if resp.Jobs[0].Tags == nil {
		t.Error("tags should encode as an empty list")
	}
}

func TestHandler_ListJobs_BadPagination(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{})

	w := serve(handler, http.MethodGet, "/jobs?limit=5000", "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandler_Cities(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{})

	w := serve(handler, http.MethodGet, "/cities", "")

	var resp CitiesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Cities) != 3 || resp.Cities[0].ID != "ny--new-york" {
		t.Errorf("cities = %+v", resp.Cities)
	}
	if len(resp.Tags) == 0 {
		t.Error("tags should not be empty")
	}
}

// --- Health ---

func TestHandler_Health(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{})

	w := serve(handler, http.MethodGet, "/health?verbose=true", "")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "components") {
		t.Errorf("no components registered, got %s", w.Body.String())
	}
}

func TestHandler_Health_Degraded(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{}).
		WithHealthChecker("redis", &mockHealthChecker{pingFn: func(ctx context.Context) error {
			return errors.New("connection refused")
		}})

	w := serve(handler, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("non-verbose health should stay 200, got %d", w.Code)
	}

	w = serve(handler, http.MethodGet, "/health?verbose=true", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "degraded" || !strings.Contains(resp.Components["redis"], "connection refused") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandler_NotFound(t *testing.T) {
	handler := newTestHandler(newMockStore(), &mockEmitter{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/unknown"},
		{http.MethodDelete, "/jobs"},
		{http.MethodGet, "/jobs/a/b/c"},
		{http.MethodGet, "/scrape"},
	} {
		w := serve(handler, tc.method, tc.path, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	handler := CORS(newTestHandler(newMockStore(), &mockEmitter{}))

	req := httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight: expected 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}

	w = serve(handler, http.MethodGet, "/health", "")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("simple request Allow-Origin = %q", got)
	}
}
