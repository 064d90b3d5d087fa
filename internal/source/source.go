// Package source defines the contract every provider scraper implements and
// a registry to look them up by provider.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/domain"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Reporter receives job-scoped log lines and progress from a running scrape.
// Implementations must be safe for use from the scraping goroutine and must
// not block it.
type Reporter interface {
	Logf(level zerolog.Level, format string, args ...any)
	// SetProgress records completion percentage (0-100).
	SetProgress(percent int)
	// PageDone records the last page of tag that yielded events.
	PageDone(tag string, page int)
}

// Result is what a scrape produced. On failure it still carries everything
// accumulated before the error.
type Result struct {
	Raw    []domain.RawEvent
	Events []domain.NormalizedEvent
}

// Source scrapes one provider for a job's city and tags.
type Source interface {
	Provider() domain.Provider
	Scrape(ctx context.Context, job domain.ScrapeJob, r Reporter) (Result, error)
}

// Registry maps providers to sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.Provider]Source
}

func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[domain.Provider]Source)}
	for _, s := range sources {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Source) {
	r.mu.Lock()
	r.sources[s.Provider()] = s
	r.mu.Unlock()
}

func (r *Registry) Get(p domain.Provider) (Source, error) {
	r.mu.RLock()
	s, ok := r.sources[p]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}
	return s, nil
}

func (r *Registry) Has(p domain.Provider) bool {
	_, err := r.Get(p)
	return err == nil
}
