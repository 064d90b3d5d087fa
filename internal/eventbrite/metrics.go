package eventbrite

import "time"

// MetricsSink records scraping metrics. Methods must not block.
type MetricsSink interface {
	CaptureCompleted(duration time.Duration, requests int)
	// DetailFetchCompleted is called with status 0 and a non-nil err on transport errors.
	DetailFetchCompleted(statusCode int, err error, duration time.Duration)
	PageScraped(provider string, events int)
}

type nopMetrics struct{}

func (nopMetrics) CaptureCompleted(time.Duration, int)            {}
func (nopMetrics) DetailFetchCompleted(int, error, time.Duration) {}
func (nopMetrics) PageScraped(string, int)                        {}
