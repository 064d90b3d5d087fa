// Package eventbrite scrapes Eventbrite listing pages by watching the
// requests the page makes to its internal API, then fetching event details
// from that API directly.
package eventbrite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/smyja/web3event/internal/browser"
	"github.com/smyja/web3event/internal/domain"
	"github.com/smyja/web3event/internal/source"
)

const (
	DefaultSettleDelay = 10 * time.Second
	DefaultIdleQuiet   = 2 * time.Second

	domainMarker = "eventbrite"
	apiMarker    = "/v3/"
)

// Capturer loads a page in a browser session and returns the internal API
// requests the page issued.
type Capturer struct {
	session   browser.Session
	settle    time.Duration
	idleQuiet time.Duration // zero: always sleep the full settle delay
	sleep     browser.SleepFunc
	report    source.Reporter
	now       func() time.Time
	metrics   MetricsSink
}

func NewCapturer(session browser.Session, settle time.Duration) *Capturer {
	if settle < 0 {
		settle = 0
	}
	return &Capturer{
		session: session,
		settle:  settle,
		sleep:   browser.Sleep,
		report:  source.Nop,
		now:     time.Now,
		metrics: nopMetrics{},
	}
}

// WithIdleWait waits for the network to go quiet instead of sleeping, when
// the session supports it. The settle delay still bounds the wait.
func (c *Capturer) WithIdleWait(quiet time.Duration) *Capturer {
	c.idleQuiet = quiet
	return c
}

func (c *Capturer) WithSleep(fn browser.SleepFunc) *Capturer {
	c.sleep = fn
	return c
}

func (c *Capturer) WithReporter(r source.Reporter) *Capturer {
	c.report = r
	return c
}

func (c *Capturer) WithMetrics(m MetricsSink) *Capturer {
	c.metrics = m
	return c
}

// Capture navigates to url, waits for the page to settle and returns the
// filtered requests in the order the browser sent them.
func (c *Capturer) Capture(ctx context.Context, url string) ([]domain.CapturedRequest, error) {
	start := c.now()
	c.report.Logf(zerolog.InfoLevel, "Navigating to %s", url)
	if err := c.session.Navigate(ctx, url); err != nil {
		return nil, err
	}

	if err := c.settleWait(ctx); err != nil {
		return nil, err
	}

	c.report.Logf(zerolog.DebugLevel, "Retrieving network log")
	entries, err := c.session.NetworkLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("read network log: %w", err)
	}

	requests := make([]domain.CapturedRequest, 0, len(entries))
	for i, entry := range entries {
		req, ok, err := parseEntry(entry)
		if err != nil {
			c.report.Logf(zerolog.ErrorLevel, "Error processing log entry %d: %v", i, err)
			continue
		}
		if ok {
			requests = append(requests, req)
		}
	}
	c.metrics.CaptureCompleted(c.now().Sub(start), len(requests))
	return requests, nil
}

func (c *Capturer) settleWait(ctx context.Context) error {
	if c.idleQuiet > 0 {
		if w, ok := c.session.(browser.IdleWaiter); ok {
			c.report.Logf(zerolog.InfoLevel, "Waiting up to %s for network to go idle", c.settle)
			return w.WaitNetworkIdle(ctx, c.idleQuiet, c.settle)
		}
	}
	c.report.Logf(zerolog.InfoLevel, "Waiting for %s to allow data to arrive", c.settle)
	return c.sleep(ctx, c.settle)
}

// parseEntry decodes one network log entry. ok is false for well-formed
// entries that are not internal API requests.
func parseEntry(entry []byte) (req domain.CapturedRequest, ok bool, err error) {
	if !gjson.ValidBytes(entry) {
		return req, false, fmt.Errorf("invalid json")
	}
	msg := gjson.ParseBytes(entry)
	method := msg.Get("method")
	if !method.Exists() {
		return req, false, fmt.Errorf("missing method")
	}
	if method.String() != browser.MethodRequestWillBeSent {
		return req, false, nil
	}

	request := msg.Get("params.request")
	url := request.Get("url")
	if !url.Exists() {
		return req, false, fmt.Errorf("missing params.request.url")
	}
	if !IsInternalAPI(url.String()) {
		return req, false, nil
	}

	req = domain.CapturedRequest{
		URL:    url.String(),
		Method: request.Get("method").String(),
	}
	if headers := request.Get("headers"); headers.IsObject() {
		req.Headers = make(map[string]string)
		headers.ForEach(func(k, v gjson.Result) bool {
			req.Headers[k.String()] = v.String()
			return true
		})
	}
	return req, true, nil
}

// IsInternalAPI reports whether url targets Eventbrite's versioned API.
func IsInternalAPI(url string) bool {
	return strings.Contains(url, domainMarker) && strings.Contains(url, apiMarker)
}
