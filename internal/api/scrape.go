package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/smyja/web3event/internal/domain"
)

// Markers around the final JSON block of a streamed scrape.
const (
	BeginJSONData = "BEGIN_JSON_DATA"
	EndJSONData   = "END_JSON_DATA"
)

type runResult struct {
	job domain.ScrapeJob
	err error
}

// start validates and stores a job for an inline run.
func (h *Handler) start(w http.ResponseWriter, r *http.Request) (domain.ScrapeJob, bool) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "inline scraping unavailable")
		return domain.ScrapeJob{}, false
	}
	req, ok := h.decodeJob(w, r)
	if !ok {
		return domain.ScrapeJob{}, false
	}

	job := h.newJob(req)
	if err := h.store.CreateJob(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("create job")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return domain.ScrapeJob{}, false
	}
	return job, true
}

// run executes job under the base context, so a client that goes away does
// not cancel the crawl.
func (h *Handler) run(job domain.ScrapeJob) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		final, err := h.runner.Execute(h.baseCtx, job.ID)
		done <- runResult{job: final, err: err}
	}()
	return done
}

// scrapeStream runs a job inline and streams its log lines as plain text,
// one per line. A completed run ends with
//
//	BEGIN_JSON_DATA
//	{"events":[...]}
//	END_JSON_DATA
func (h *Handler) scrapeStream(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log stream unavailable")
		return
	}
	job, ok := h.start(w, r)
	if !ok {
		return
	}

	// Subscribe before the run starts so no line is missed.
	entries, cancel := h.logs.Subscribe(job.ID)
	defer cancel()
	done := h.run(job)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Job-ID", job.ID.String())
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	writeLine := func(line string) {
		io.WriteString(w, line+"\n")
		rc.Flush()
	}

	for {
		select {
		case e := <-entries:
			writeLine(e.Message)

		case res := <-done:
			for pending := true; pending; {
				select {
				case e := <-entries:
					writeLine(e.Message)
				default:
					pending = false
				}
			}
			h.finishStream(w, job, res)
			rc.Flush()
			return

		case <-r.Context().Done():
			h.log.Info().Str("job_id", job.ID.String()).Msg("stream client gone, job continues")
			return
		}
	}
}

func (h *Handler) finishStream(w io.Writer, job domain.ScrapeJob, res runResult) {
	switch res.job.Status {
	case domain.JobStatusCompleted:
		io.WriteString(w, BeginJSONData+"\n")
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(ScrapeResult{Events: eventsOrEmpty(res.job.Events)}); err != nil {
			h.log.Error().Err(err).Str("job_id", job.ID.String()).Msg("encode events")
		}
		io.WriteString(w, EndJSONData)
	case domain.JobStatusFailed:
		// The failure line was already streamed by the job itself.
	default:
		fmt.Fprintf(w, "An error occurred during scraping: %v\n", res.err)
	}
}

// scrapeSync runs a job inline and answers once it is terminal.
func (h *Handler) scrapeSync(w http.ResponseWriter, r *http.Request) {
	job, ok := h.start(w, r)
	if !ok {
		return
	}

	res := <-h.run(job)
	if res.job.ID == job.ID && res.job.Status.IsTerminal() {
		writeJSON(w, http.StatusOK, ScrapeResult{
			JobID:  job.ID.String(),
			Status: string(res.job.Status),
			Error:  res.job.Error,
			Events: eventsOrEmpty(res.job.Events),
		})
		return
	}

	h.log.Error().Err(res.err).Str("job_id", job.ID.String()).Msg("inline scrape")
	writeError(w, http.StatusInternalServerError, "scrape did not finish")
}
