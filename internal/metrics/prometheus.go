package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	log zerolog.Logger

	// Job metrics
	jobsStartedTotal  *prometheus.CounterVec
	jobsFinishedTotal *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobsInFlight      prometheus.Gauge

	// Scrape metrics
	pagesScrapedTotal  *prometheus.CounterVec
	eventsFetchedTotal *prometheus.CounterVec
	captureDuration    prometheus.Histogram
	capturedRequests   prometheus.Histogram
	detailFetchesTotal *prometheus.CounterVec
	detailDuration     prometheus.Histogram

	// Webhook metrics
	webhooksTotal   *prometheus.CounterVec
	webhookDuration prometheus.Histogram

	// JobBus metrics
	bufferSize       prometheus.Gauge
	bufferCapacity   prometheus.Gauge
	bufferSaturation prometheus.Gauge
	emitErrorsTotal  prometheus.Counter

	// Sweep and reconciler metrics
	sweepsTotal      prometheus.Counter
	sweepErrorsTotal prometheus.Counter
	sweepJobsTotal   prometheus.Counter
	stuckJobsFailed  prometheus.Counter
	jobsPrunedTotal  prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer, log zerolog.Logger) *PrometheusSink {
	s := &PrometheusSink{log: log}
	s.initJobMetrics(reg)
	s.initScrapeMetrics(reg)
	s.initWebhookMetrics(reg)
	s.initJobBusMetrics(reg)
	s.initSweepMetrics(reg)
	return s
}

func (s *PrometheusSink) initJobMetrics(reg prometheus.Registerer) {
	s.jobsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "web3event_jobs_started_total",
		Help: "Total number of scrape jobs started.",
	}, []string{"provider"})
	s.jobsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "web3event_jobs_finished_total",
		Help: "Total number of scrape jobs finished, by outcome.",
	}, []string{"provider", "outcome"})
	s.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "web3event_job_duration_seconds",
		Help:    "Wall time of a scrape job in seconds.",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
	}, []string{"provider"})
	s.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "web3event_jobs_in_flight",
		Help: "Number of scrape jobs currently running.",
	})

	s.register(reg, s.jobsStartedTotal, "web3event_jobs_started_total")
	s.register(reg, s.jobsFinishedTotal, "web3event_jobs_finished_total")
	s.register(reg, s.jobDuration, "web3event_job_duration_seconds")
	s.register(reg, s.jobsInFlight, "web3event_jobs_in_flight")
}

func (s *PrometheusSink) initScrapeMetrics(reg prometheus.Registerer) {
	s.pagesScrapedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "web3event_pages_scraped_total",
		Help: "Total number of listing pages that yielded events.",
	}, []string{"provider"})
	s.eventsFetchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "web3event_events_fetched_total",
		Help: "Total number of raw events fetched, before deduplication.",
	}, []string{"provider"})
	s.captureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "web3event_capture_duration_seconds",
		Help:    "Time from navigation to a filtered network log in seconds.",
		Buckets: []float64{1, 2.5, 5, 10, 15, 20, 30, 60},
	})
	s.capturedRequests = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "web3event_captured_requests",
		Help:    "Internal API requests kept per captured page.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})
	s.detailFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "web3event_detail_fetches_total",
		Help: "Total number of detail API requests, by status class.",
	}, []string{"status_class"})
	s.detailDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "web3event_detail_fetch_duration_seconds",
		Help:    "Detail API request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.register(reg, s.pagesScrapedTotal, "web3event_pages_scraped_total")
	s.register(reg, s.eventsFetchedTotal, "web3event_events_fetched_total")
	s.register(reg, s.captureDuration, "web3event_capture_duration_seconds")
	s.register(reg, s.capturedRequests, "web3event_captured_requests")
	s.register(reg, s.detailFetchesTotal, "web3event_detail_fetches_total")
	s.register(reg, s.detailDuration, "web3event_detail_fetch_duration_seconds")
}

func (s *PrometheusSink) initWebhookMetrics(reg prometheus.Registerer) {
	s.webhooksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "web3event_webhooks_total",
		Help: "Total number of completion webhooks sent, by status class.",
	}, []string{"status_class"})
	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "web3event_webhook_duration_seconds",
		Help:    "Completion webhook latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.register(reg, s.webhooksTotal, "web3event_webhooks_total")
	s.register(reg, s.webhookDuration, "web3event_webhook_duration_seconds")
}

func (s *PrometheusSink) initJobBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "web3event_jobbus_buffer_size",
		Help: "Current number of queued jobs in the job bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "web3event_jobbus_buffer_capacity",
		Help: "Capacity of the job bus buffer.",
	})
	s.bufferSaturation = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "web3event_jobbus_buffer_saturation",
		Help: "Fraction of the job bus buffer in use (0-1).",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "web3event_jobbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full or cancelled).",
	})

	s.register(reg, s.bufferSize, "web3event_jobbus_buffer_size")
	s.register(reg, s.bufferCapacity, "web3event_jobbus_buffer_capacity")
	s.register(reg, s.bufferSaturation, "web3event_jobbus_buffer_saturation")
	s.register(reg, s.emitErrorsTotal, "web3event_jobbus_emit_errors_total")
}

func (s *PrometheusSink) initSweepMetrics(reg prometheus.Registerer) {
	s.sweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "web3event_sweeps_total",
		Help: "Total number of scheduled sweep ticks processed.",
	})
	s.sweepErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "web3event_sweep_errors_total",
		Help: "Total number of sweep ticks that hit an error.",
	})
	s.sweepJobsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "web3event_sweep_jobs_submitted_total",
		Help: "Total number of jobs submitted by scheduled sweeps.",
	})
	s.stuckJobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "web3event_reconciler_stuck_jobs_failed_total",
		Help: "Total number of stuck jobs marked failed by the reconciler.",
	})
	s.jobsPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "web3event_reconciler_jobs_pruned_total",
		Help: "Total number of finished jobs removed from memory.",
	})

	s.register(reg, s.sweepsTotal, "web3event_sweeps_total")
	s.register(reg, s.sweepErrorsTotal, "web3event_sweep_errors_total")
	s.register(reg, s.sweepJobsTotal, "web3event_sweep_jobs_submitted_total")
	s.register(reg, s.stuckJobsFailed, "web3event_reconciler_stuck_jobs_failed_total")
	s.register(reg, s.jobsPrunedTotal, "web3event_reconciler_jobs_pruned_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.log.Warn().Err(err).Str("metric", name).Msg("failed to register metric")
	}
}

// Job metrics implementation

func (s *PrometheusSink) JobStarted(provider string) {
	s.jobsStartedTotal.WithLabelValues(provider).Inc()
}

func (s *PrometheusSink) JobFinished(provider, outcome string, duration time.Duration) {
	s.jobsFinishedTotal.WithLabelValues(provider, outcome).Inc()
	s.jobDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (s *PrometheusSink) JobsInFlightIncr() {
	s.jobsInFlight.Inc()
}

func (s *PrometheusSink) JobsInFlightDecr() {
	s.jobsInFlight.Dec()
}

// Scrape metrics implementation

func (s *PrometheusSink) PageScraped(provider string, events int) {
	s.pagesScrapedTotal.WithLabelValues(provider).Inc()
	s.eventsFetchedTotal.WithLabelValues(provider).Add(float64(events))
}

func (s *PrometheusSink) CaptureCompleted(duration time.Duration, requests int) {
	s.captureDuration.Observe(duration.Seconds())
	s.capturedRequests.Observe(float64(requests))
}

func (s *PrometheusSink) DetailFetchCompleted(statusCode int, err error, duration time.Duration) {
	s.detailFetchesTotal.WithLabelValues(ClassifyStatus(statusCode, err)).Inc()
	s.detailDuration.Observe(duration.Seconds())
}

// Webhook metrics implementation

func (s *PrometheusSink) WebhookDelivered(statusClass string, duration time.Duration) {
	s.webhooksTotal.WithLabelValues(statusClass).Inc()
	s.webhookDuration.Observe(duration.Seconds())
}

// JobBus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) BufferSaturationUpdate(saturation float64) {
	s.bufferSaturation.Set(saturation)
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

// Sweep and reconciler metrics implementation

func (s *PrometheusSink) SweepCompleted(jobsSubmitted int, err error) {
	s.sweepsTotal.Inc()
	s.sweepJobsTotal.Add(float64(jobsSubmitted))
	if err != nil {
		s.sweepErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) StuckJobsFailed(count int) {
	s.stuckJobsFailed.Add(float64(count))
}

func (s *PrometheusSink) JobsPruned(count int) {
	s.jobsPrunedTotal.Add(float64(count))
}
