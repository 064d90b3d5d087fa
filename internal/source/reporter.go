package source

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// LogReporter writes scrape progress to a zerolog logger.
type LogReporter struct {
	log      zerolog.Logger
	progress atomic.Int64
}

func NewLogReporter(log zerolog.Logger) *LogReporter {
	return &LogReporter{log: log}
}

func (r *LogReporter) Logf(level zerolog.Level, format string, args ...any) {
	r.log.WithLevel(level).Msg(fmt.Sprintf(format, args...))
}

func (r *LogReporter) SetProgress(percent int) {
	r.progress.Store(int64(percent))
	r.log.Debug().Int("progress", percent).Msg("progress")
}

func (r *LogReporter) PageDone(tag string, page int) {
	r.log.Debug().Str("tag", tag).Int("page", page).Msg("page done")
}

func (r *LogReporter) Progress() int {
	return int(r.progress.Load())
}

// Nop discards everything.
var Nop Reporter = nopReporter{}

type nopReporter struct{}

func (nopReporter) Logf(zerolog.Level, string, ...any) {}
func (nopReporter) SetProgress(int)                    {}
func (nopReporter) PageDone(string, int)               {}
