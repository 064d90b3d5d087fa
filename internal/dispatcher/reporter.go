package dispatcher

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/logstream"
)

// jobReporter routes a running job's log lines to the process logger and the
// log hub, and its progress and page cursor to the store.
type jobReporter struct {
	ctx   context.Context
	job   domain.ScrapeJob
	log   zerolog.Logger
	hub   LogPublisher
	store Store
}

func (d *Dispatcher) reporter(ctx context.Context, job domain.ScrapeJob) *jobReporter {
	return &jobReporter{
		ctx: context.WithoutCancel(ctx),
		job: job,
		log: d.log.With().
			Str("job_id", job.ID.String()).
			Str("provider", string(job.Provider)).
			Str("city", job.City).
			Logger(),
		hub:   d.hub,
		store: d.store,
	}
}

func (r *jobReporter) Logf(level zerolog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.WithLevel(level).Msg(msg)
	if r.hub != nil {
		r.hub.Publish(logstream.NewEntry(r.job.ID, level.String(), msg))
	}
}

func (r *jobReporter) SetProgress(percent int) {
	if err := r.store.UpdateProgress(r.ctx, r.job.ID, percent); err != nil {
		r.log.Debug().Err(err).Int("progress", percent).Msg("progress not recorded")
	}
}

func (r *jobReporter) PageDone(tag string, page int) {
	if err := r.store.UpdatePage(r.ctx, r.job.ID, tag, page); err != nil {
		r.log.Debug().Err(err).Str("tag", tag).Int("page", page).Msg("page not recorded")
	}
}
