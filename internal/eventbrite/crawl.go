package eventbrite

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/browser"
	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/source"
)

const (
	DefaultBaseURL   = "https://www.eventbrite.com"
	DefaultPageDelay = 2 * time.Second
)

// PageCapturer returns the internal API requests a listing page issued.
type PageCapturer interface {
	Capture(ctx context.Context, url string) ([]domain.CapturedRequest, error)
}

// DetailFetcher fetches full records for a batch of event ids.
type DetailFetcher interface {
	Fetch(ctx context.Context, ids []string) (DetailResponse, error)
}

// Crawler pages through a city's listings tag by tag. One crawler serves one
// job; it is not safe for concurrent use.
type Crawler struct {
	capture   PageCapturer
	fetch     DetailFetcher
	baseURL   string
	pageDelay time.Duration
	sleep     browser.SleepFunc
	report    source.Reporter
	metrics   MetricsSink
}

func NewCrawler(capture PageCapturer, fetch DetailFetcher) *Crawler {
	return &Crawler{
		capture:   capture,
		fetch:     fetch,
		baseURL:   DefaultBaseURL,
		pageDelay: DefaultPageDelay,
		sleep:     browser.Sleep,
		report:    source.Nop,
		metrics:   nopMetrics{},
	}
}

func (c *Crawler) WithBaseURL(u string) *Crawler {
	c.baseURL = u
	return c
}

func (c *Crawler) WithPageDelay(d time.Duration) *Crawler {
	c.pageDelay = d
	return c
}

func (c *Crawler) WithSleep(fn browser.SleepFunc) *Crawler {
	c.sleep = fn
	return c
}

func (c *Crawler) WithReporter(r source.Reporter) *Crawler {
	c.report = r
	return c
}

func (c *Crawler) WithMetrics(m MetricsSink) *Crawler {
	c.metrics = m
	return c
}

// ListingURL is the listing page for a city, tag and 1-based page number.
func (c *Crawler) ListingURL(city, tag string, page int) string {
	return fmt.Sprintf("%s/d/%s/%s/?page=%d", c.baseURL, url.PathEscape(city), url.PathEscape(tag), page)
}

// CrawlTag walks pages 1..n for one tag until a page yields no ids or no
// events. It returns the events gathered and the number of pages that had
// events. On error the events gathered so far are still returned.
func (c *Crawler) CrawlTag(ctx context.Context, city, tag string) ([]domain.RawEvent, int, error) {
	var events []domain.RawEvent
	page := 1
	for {
		c.report.Logf(zerolog.InfoLevel, "Scraping page %d for tag %s", page, tag)

		more, batch, err := c.crawlPage(ctx, city, tag, page)
		if err != nil {
			return events, page - 1, err
		}
		if more {
			events = append(events, batch...)
			c.report.Logf(zerolog.InfoLevel, "Found %d events on page %d", len(batch), page)
			c.metrics.PageScraped(string(domain.ProviderEventbrite), len(batch))
			c.report.PageDone(tag, page)
			page++
		}

		if err := c.sleep(ctx, c.pageDelay); err != nil {
			return events, page - 1, err
		}
		if !more {
			return events, page - 1, nil
		}
	}
}

func (c *Crawler) crawlPage(ctx context.Context, city, tag string, page int) (bool, []domain.RawEvent, error) {
	requests, err := c.capture.Capture(ctx, c.ListingURL(city, tag, page))
	if err != nil {
		return false, nil, fmt.Errorf("capture page %d for tag %s: %w", page, tag, err)
	}

	ids := ExtractEventIDs(requests)
	if len(ids) == 0 {
		c.report.Logf(zerolog.InfoLevel, "No event IDs found on page %d. Stopping search for tag %s.", page, tag)
		return false, nil, nil
	}

	resp, err := c.fetch.Fetch(ctx, ids)
	if err != nil {
		return false, nil, fmt.Errorf("fetch page %d for tag %s: %w", page, tag, err)
	}
	if len(resp.Events) == 0 {
		c.report.Logf(zerolog.InfoLevel, "No events found on page %d. Stopping search for tag %s.", page, tag)
		return false, nil, nil
	}
	return true, resp.Events, nil
}

// Crawl runs CrawlTag for every tag in order and reports progress after
// each one. Events from finished tags are returned even when a later tag
// fails.
func (c *Crawler) Crawl(ctx context.Context, city string, tags []string) ([]domain.RawEvent, error) {
	var all []domain.RawEvent
	for i, tag := range tags {
		c.report.Logf(zerolog.InfoLevel, "Searching events in %s with tag %s", city, tag)

		events, pages, err := c.CrawlTag(ctx, city, tag)
		all = append(all, events...)
		if err != nil {
			return all, err
		}

		c.report.Logf(zerolog.InfoLevel, "Finished searching for tag %s. Total pages scraped: %d", tag, pages)
		c.report.SetProgress((i + 1) * 100 / len(tags))
	}
	c.report.Logf(zerolog.InfoLevel, "Total events found in %s: %d", city, len(all))
	return all, nil
}
