package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg, zerolog.Nop())
	return sink, reg
}

func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getHistogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			var n uint64
			for _, m := range mf.GetMetric() {
				n += m.GetHistogram().GetSampleCount()
			}
			return n
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPrometheusSink_Registration(t *testing.T) {
	// Should not panic or error with a fresh registry.
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg, zerolog.Nop())
	if sink == nil {
		t.Fatal("NewPrometheusSink returned nil")
	}
}

func TestPrometheusSink_JobLifecycle(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.JobStarted("eventbrite")
	sink.JobStarted("luma")
	sink.JobFinished("eventbrite", OutcomeCompleted, 90*time.Second)
	sink.JobFinished("luma", OutcomeFailed, 5*time.Second)

	started := getCounterVecValue(t, reg, "web3event_jobs_started_total",
		map[string]string{"provider": "eventbrite"})
	if started != 1 {
		t.Errorf("jobs_started_total{eventbrite} = %v, want 1", started)
	}

	completed := getCounterVecValue(t, reg, "web3event_jobs_finished_total",
		map[string]string{"provider": "eventbrite", "outcome": "completed"})
	if completed != 1 {
		t.Errorf("jobs_finished_total{eventbrite,completed} = %v, want 1", completed)
	}

	failed := getCounterVecValue(t, reg, "web3event_jobs_finished_total",
		map[string]string{"provider": "luma", "outcome": "failed"})
	if failed != 1 {
		t.Errorf("jobs_finished_total{luma,failed} = %v, want 1", failed)
	}

	if n := getHistogramCount(t, reg, "web3event_job_duration_seconds"); n != 2 {
		t.Errorf("job_duration_seconds count = %d, want 2", n)
	}
}

func TestPrometheusSink_JobsInFlight(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.JobsInFlightIncr()
	sink.JobsInFlightIncr()
	sink.JobsInFlightDecr()

	val := getGaugeValue(t, reg, "web3event_jobs_in_flight")
	if val != 1 {
		t.Errorf("jobs_in_flight = %v, want 1", val)
	}
}

func TestPrometheusSink_PageScraped(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.PageScraped("eventbrite", 20)
	sink.PageScraped("eventbrite", 7)

	pages := getCounterVecValue(t, reg, "web3event_pages_scraped_total",
		map[string]string{"provider": "eventbrite"})
	if pages != 2 {
		t.Errorf("pages_scraped_total = %v, want 2", pages)
	}

	events := getCounterVecValue(t, reg, "web3event_events_fetched_total",
		map[string]string{"provider": "eventbrite"})
	if events != 27 {
		t.Errorf("events_fetched_total = %v, want 27", events)
	}
}

func TestPrometheusSink_CaptureCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.CaptureCompleted(12*time.Second, 3)

	if n := getHistogramCount(t, reg, "web3event_capture_duration_seconds"); n != 1 {
		t.Errorf("capture_duration_seconds count = %d, want 1", n)
	}
	if n := getHistogramCount(t, reg, "web3event_captured_requests"); n != 1 {
		t.Errorf("captured_requests count = %d, want 1", n)
	}
}

func TestPrometheusSink_DetailFetchLabels(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.DetailFetchCompleted(200, nil, 300*time.Millisecond)
	sink.DetailFetchCompleted(503, nil, 100*time.Millisecond)
	sink.DetailFetchCompleted(0, errors.New("context deadline exceeded"), 30*time.Second)

	for class, want := range map[string]float64{
		StatusClass2xx:     1,
		StatusClass5xx:     1,
		StatusClassTimeout: 1,
	} {
		got := getCounterVecValue(t, reg, "web3event_detail_fetches_total",
			map[string]string{"status_class": class})
		if got != want {
			t.Errorf("detail_fetches_total{%s} = %v, want %v", class, got, want)
		}
	}
}

func TestPrometheusSink_WebhookDelivered(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.WebhookDelivered(StatusClass2xx, 50*time.Millisecond)
	sink.WebhookDelivered(StatusClass4xx, 50*time.Millisecond)
	sink.WebhookDelivered(StatusClass2xx, 50*time.Millisecond)

	ok := getCounterVecValue(t, reg, "web3event_webhooks_total",
		map[string]string{"status_class": "2xx"})
	if ok != 2 {
		t.Errorf("webhooks_total{2xx} = %v, want 2", ok)
	}
}

func TestPrometheusSink_BufferMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.BufferCapacitySet(100)
	sink.BufferSizeUpdate(42)
	sink.BufferSaturationUpdate(0.42)
	sink.EmitError()

	capVal := getGaugeValue(t, reg, "web3event_jobbus_buffer_capacity")
	if capVal != 100 {
		t.Errorf("buffer_capacity = %v, want 100", capVal)
	}

	sizeVal := getGaugeValue(t, reg, "web3event_jobbus_buffer_size")
	if sizeVal != 42 {
		t.Errorf("buffer_size = %v, want 42", sizeVal)
	}

	satVal := getGaugeValue(t, reg, "web3event_jobbus_buffer_saturation")
	if satVal != 0.42 {
		t.Errorf("buffer_saturation = %v, want 0.42", satVal)
	}

	if errs := getCounterValue(t, reg, "web3event_jobbus_emit_errors_total"); errs != 1 {
		t.Errorf("emit_errors_total = %v, want 1", errs)
	}
}

func TestPrometheusSink_SweepCompleted_WithError(t *testing.T) {
	sink, reg := newTestSink(t)

	// No error
	sink.SweepCompleted(3, nil)
	errCount := getCounterValue(t, reg, "web3event_sweep_errors_total")
	if errCount != 0 {
		t.Errorf("sweep_errors_total = %v after success, want 0", errCount)
	}

	// With error
	sink.SweepCompleted(1, errors.New("bus full"))
	errCount = getCounterValue(t, reg, "web3event_sweep_errors_total")
	if errCount != 1 {
		t.Errorf("sweep_errors_total = %v after error, want 1", errCount)
	}

	if v := getCounterValue(t, reg, "web3event_sweeps_total"); v != 2 {
		t.Errorf("sweeps_total = %v, want 2", v)
	}
	if v := getCounterValue(t, reg, "web3event_sweep_jobs_submitted_total"); v != 4 {
		t.Errorf("sweep_jobs_submitted_total = %v, want 4", v)
	}
}

func TestPrometheusSink_ReconcilerCounters(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.StuckJobsFailed(2)
	sink.JobsPruned(5)
	sink.JobsPruned(1)

	if v := getCounterValue(t, reg, "web3event_reconciler_stuck_jobs_failed_total"); v != 2 {
		t.Errorf("stuck_jobs_failed_total = %v, want 2", v)
	}
	if v := getCounterValue(t, reg, "web3event_reconciler_jobs_pruned_total"); v != 6 {
		t.Errorf("jobs_pruned_total = %v, want 6", v)
	}
}

func TestPrometheusSink_DuplicateRegistration_NoPanic(t *testing.T) {
	// Registering metrics twice with the same registry should not panic.
	// The second registration will fail, but should be handled gracefully.
	reg := prometheus.NewRegistry()

	sink1 := NewPrometheusSink(reg, zerolog.Nop())
	if sink1 == nil {
		t.Fatal("first NewPrometheusSink returned nil")
	}

	// Second registration will fail for all metrics, but should not panic.
	sink2 := NewPrometheusSink(reg, zerolog.Nop())
	if sink2 == nil {
		t.Fatal("second NewPrometheusSink returned nil")
	}
}

// Verify PrometheusSink implements Sink interface.
var _ Sink = (*PrometheusSink)(nil)
