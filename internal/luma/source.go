package luma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/browser"
	"github.com/smyja/web3event/internal/dedup"
	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/source"
)

const (
	DefaultBaseURL     = "https://lu.ma"
	DefaultSettleDelay = 3 * time.Second
	DefaultDetailDelay = 2 * time.Second
)

// DetailFetcher reads structured data from an event page.
type DetailFetcher interface {
	Fetch(ctx context.Context, href string) (Detail, error)
}

type Options struct {
	BaseURL     string
	SettleDelay time.Duration
	DetailDelay time.Duration // pause between event page fetches
}

// Source is the Luma scraping strategy.
type Source struct {
	browsers browser.Factory
	detail   DetailFetcher // nil: cards only
	catalog  domain.Catalog
	opts     Options
	sleep    browser.SleepFunc
}

var _ source.Source = (*Source)(nil)

func NewSource(browsers browser.Factory, catalog domain.Catalog, opts Options) *Source {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.DetailDelay == 0 {
		opts.DetailDelay = DefaultDetailDelay
	}
	return &Source{
		browsers: browsers,
		catalog:  catalog,
		opts:     opts,
		sleep:    browser.Sleep,
	}
}

// WithDetails enables fetching every matching event page.
func (s *Source) WithDetails(d DetailFetcher) *Source {
	s.detail = d
	return s
}

func (s *Source) WithSleep(fn browser.SleepFunc) *Source {
	s.sleep = fn
	return s
}

func (s *Source) Provider() domain.Provider { return domain.ProviderLuma }

// rawCard is the raw record kept for a Luma event.
type rawCard struct {
	Card
	Detail *Detail `json:"detail,omitempty"`
}

func (s *Source) Scrape(ctx context.Context, job domain.ScrapeJob, r source.Reporter) (source.Result, error) {
	city, ok := s.catalog.City(job.City)
	if !ok || city.LumaSlug == "" {
		return source.Result{}, fmt.Errorf("no luma page for city %q", job.City)
	}
	base, err := url.Parse(s.opts.BaseURL)
	if err != nil {
		return source.Result{}, fmt.Errorf("luma base url: %w", err)
	}
	pageURL := base.JoinPath(city.LumaSlug).String()

	html, err := s.render(ctx, pageURL, r)
	if err != nil {
		return source.Result{}, err
	}

	cards, lookupErrs, err := ParseCards(html, base)
	if err != nil {
		return source.Result{}, err
	}
	for _, e := range lookupErrs {
		r.Logf(zerolog.WarnLevel, "Unable to locate elements in card-wrapper: %v", e)
	}

	// job.Tags holds only tags the caller named; Luma jobs get no catalog
	// defaults, which are Eventbrite search terms.
	keywords := append(append([]string(nil), job.Tags...), s.catalog.LumaKeywords...)
	matched := make([]Card, 0, len(cards))
	for _, c := range cards {
		if MatchesKeywords(c.Title, keywords) {
			matched = append(matched, c)
		}
	}
	matched = dedup.By(matched, func(c Card) string { return c.Href })
	r.Logf(zerolog.InfoLevel, "Found %d matching events out of %d cards on %s", len(matched), len(cards), pageURL)

	var res source.Result
	for i, c := range matched {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rc := rawCard{Card: c}
		if s.detail != nil {
			if i > 0 {
				if err := s.sleep(ctx, s.opts.DetailDelay); err != nil {
					return res, err
				}
			}
			d, err := s.detail.Fetch(ctx, c.Href)
			if err != nil {
				r.Logf(zerolog.WarnLevel, "Event detail unavailable for %s: %v", c.Href, err)
			} else {
				rc.Detail = &d
			}
		}
		raw, err := json.Marshal(rc)
		if err != nil {
			return res, fmt.Errorf("encode card: %w", err)
		}
		res.Raw = append(res.Raw, raw)
		res.Events = append(res.Events, Normalize(rc.Card, rc.Detail))
		r.SetProgress((i + 1) * 100 / len(matched))
	}
	if len(matched) == 0 {
		r.SetProgress(100)
	}
	return res, nil
}

// render loads pageURL in a fresh browser and returns its HTML. The browser
// is closed before render returns.
func (s *Source) render(ctx context.Context, pageURL string, r source.Reporter) (string, error) {
	sess, err := s.browsers(ctx)
	if err != nil {
		return "", fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			r.Logf(zerolog.WarnLevel, "Error closing browser: %v", err)
		}
		r.Logf(zerolog.InfoLevel, "Browser closed")
	}()

	doc, ok := sess.(browser.DocumentReader)
	if !ok {
		return "", fmt.Errorf("browser session cannot read documents")
	}

	r.Logf(zerolog.InfoLevel, "Navigating to %s", pageURL)
	if err := sess.Navigate(ctx, pageURL); err != nil {
		return "", err
	}
	if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
		return "", err
	}
	html, err := doc.OuterHTML(ctx)
	if err != nil {
		return "", err
	}
	r.Logf(zerolog.InfoLevel, "Page loaded completely")
	return html, nil
}
