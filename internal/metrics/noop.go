package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) JobStarted(provider string)                                      {}
func (n *NoopSink) JobFinished(provider, outcome string, duration time.Duration)    {}
func (n *NoopSink) JobsInFlightIncr()                                               {}
func (n *NoopSink) JobsInFlightDecr()                                               {}
func (n *NoopSink) PageScraped(provider string, events int)                         {}
func (n *NoopSink) CaptureCompleted(duration time.Duration, requests int)           {}
func (n *NoopSink) DetailFetchCompleted(statusCode int, err error, d time.Duration) {}
func (n *NoopSink) WebhookDelivered(statusClass string, duration time.Duration)     {}
func (n *NoopSink) BufferSizeUpdate(size int)                                       {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                  {}
func (n *NoopSink) BufferSaturationUpdate(saturation float64)                       {}
func (n *NoopSink) EmitError()                                                      {}
func (n *NoopSink) SweepCompleted(jobsSubmitted int, err error)                     {}
func (n *NoopSink) StuckJobsFailed(count int)                                       {}
func (n *NoopSink) JobsPruned(count int)                                            {}
