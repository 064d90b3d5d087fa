package eventbrite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/browser"
	"github.com/smyja/web3event/internal/dedup"
	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/source"
)

// Options tunes the waits of an Eventbrite scrape.
type Options struct {
	SettleDelay time.Duration
	IdleQuiet   time.Duration // non-zero enables the network idle wait
	PageDelay   time.Duration
	BaseURL     string
}

// Source is the Eventbrite scraping strategy.
type Source struct {
	browsers browser.Factory
	detail   DetailFetcher
	opts     Options
	sleep    browser.SleepFunc
	metrics  MetricsSink
}

var _ source.Source = (*Source)(nil)

func NewSource(browsers browser.Factory, detail DetailFetcher, opts Options) *Source {
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.PageDelay == 0 {
		opts.PageDelay = DefaultPageDelay
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Source{
		browsers: browsers,
		detail:   detail,
		opts:     opts,
		sleep:    browser.Sleep,
		metrics:  nopMetrics{},
	}
}

func (s *Source) WithSleep(fn browser.SleepFunc) *Source {
	s.sleep = fn
	return s
}

func (s *Source) WithMetrics(m MetricsSink) *Source {
	s.metrics = m
	return s
}

func (s *Source) Provider() domain.Provider { return domain.ProviderEventbrite }

// Scrape crawls every tag of the job's city in a dedicated browser session.
// The session is always closed before Scrape returns.
func (s *Source) Scrape(ctx context.Context, job domain.ScrapeJob, r source.Reporter) (source.Result, error) {
	sess, err := s.browsers(ctx)
	if err != nil {
		return source.Result{}, fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			r.Logf(zerolog.WarnLevel, "Error closing browser: %v", err)
		}
		r.Logf(zerolog.InfoLevel, "Browser closed")
	}()

	capturer := NewCapturer(sess, s.opts.SettleDelay).
		WithSleep(s.sleep).
		WithReporter(r).
		WithMetrics(s.metrics)
	if s.opts.IdleQuiet > 0 {
		capturer.WithIdleWait(s.opts.IdleQuiet)
	}

	crawler := NewCrawler(capturer, s.detail).
		WithBaseURL(s.opts.BaseURL).
		WithPageDelay(s.opts.PageDelay).
		WithSleep(s.sleep).
		WithReporter(r).
		WithMetrics(s.metrics)

	raw, crawlErr := crawler.Crawl(ctx, job.City, job.Tags)
	raw = dedup.ByField(raw, "url")
	res := source.Result{Raw: raw, Events: NormalizeAll(raw)}
	if crawlErr != nil {
		r.Logf(zerolog.ErrorLevel, "An error occurred during scraping: %v", crawlErr)
		return res, crawlErr
	}
	return res, nil
}
