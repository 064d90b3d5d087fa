package eventbrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/smyja/web3event/internal/domain"
)

const (
	DefaultDetailURL = "https://www.eventbrite.com/api/v3/destination/events/"
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.6533.90 Safari/537.36"
	defaultTimeout   = 30 * time.Second

	expandFields = "event_sales_status,image,primary_venue,saves,ticket_availability,primary_organizer,public_collections"
)

var ErrNoEventIDs = errors.New("no event ids")

// HTTPError is returned when the detail API answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("detail api: unexpected status %d from %s", e.StatusCode, e.URL)
}

// DetailResponse is the subset of the detail API response we consume.
type DetailResponse struct {
	Events []domain.RawEvent `json:"events"`
}

// DetailClient calls the bulk event detail endpoint.
type DetailClient struct {
	client  *resty.Client
	url     string
	metrics MetricsSink
}

func NewDetailClient(timeout time.Duration) *DetailClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeaders(map[string]string{
		"User-Agent":       DefaultUserAgent,
		"Accept":           "*/*",
		"Accept-Language":  "en-US,en;q=0.5",
		"Referer":          "https://www.eventbrite.com/",
		"X-Requested-With": "XMLHttpRequest",
	})
	return &DetailClient{
		client:  client,
		url:     DefaultDetailURL,
		metrics: nopMetrics{},
	}
}

// WithURL points the client at another endpoint. Used by tests.
func (c *DetailClient) WithURL(url string) *DetailClient {
	c.url = url
	return c
}

func (c *DetailClient) WithMetrics(m MetricsSink) *DetailClient {
	c.metrics = m
	return c
}

// Fetch returns full event records for ids. It makes exactly one request.
func (c *DetailClient) Fetch(ctx context.Context, ids []string) (DetailResponse, error) {
	if len(ids) == 0 {
		return DetailResponse{}, ErrNoEventIDs
	}

	start := time.Now()
	res, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"event_ids": strings.Join(ids, ","),
			"expand":    expandFields,
			"page_size": strconv.Itoa(len(ids)),
		}).
		Get(c.url)
	if err != nil {
		c.metrics.DetailFetchCompleted(0, err, time.Since(start))
		return DetailResponse{}, fmt.Errorf("detail api: %w", err)
	}
	c.metrics.DetailFetchCompleted(res.StatusCode(), nil, time.Since(start))

	if res.IsError() || res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return DetailResponse{}, &HTTPError{StatusCode: res.StatusCode(), URL: c.url}
	}

	var out DetailResponse
	if err := json.Unmarshal(res.Body(), &out); err != nil {
		return DetailResponse{}, fmt.Errorf("decode detail response: %w", err)
	}
	return out, nil
}
