package metrics

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	// Job metrics
	JobStarted(provider string)
	JobFinished(provider, outcome string, duration time.Duration)
	JobsInFlightIncr()
	JobsInFlightDecr()

	// Scrape metrics
	PageScraped(provider string, events int)
	CaptureCompleted(duration time.Duration, requests int)
	DetailFetchCompleted(statusCode int, err error, duration time.Duration)

	// Completion webhook metrics
	WebhookDelivered(statusClass string, duration time.Duration)

	// JobBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()

	// Sweep and reconciler metrics
	SweepCompleted(jobsSubmitted int, err error)
	StuckJobsFailed(count int)
	JobsPruned(count int)
}

// Outcome constants for JobFinished.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// StatusClass constants for DetailFetchCompleted and WebhookDelivered.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassCanceled        = "canceled"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a status code and error to a status class. Typed
// errors are checked first; resty and chromedp sometimes surface only a
// message, so the text is matched as a fallback.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		return classifyError(err)
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}

func classifyError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusClassTimeout
	}
	if errors.Is(err, context.Canceled) {
		return StatusClassCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusClassTimeout
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || (errors.As(err, &opErr) && opErr.Op == "dial") {
		return StatusClassConnectionError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return StatusClassTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"):
		return StatusClassConnectionError
	}
	return StatusClassOtherError
}
