package logstream

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestHub_FilterByJob(t *testing.T) {
	hub := NewHub()
	jobA, jobB := uuid.New(), uuid.New()

	onlyA, cancelA := hub.Subscribe(jobA)
	defer cancelA()
	all, cancelAll := hub.Subscribe(uuid.Nil)
	defer cancelAll()

	hub.Publish(NewEntry(jobA, "INFO", "a1"))
	hub.Publish(NewEntry(jobB, "INFO", "b1"))

	select {
	case e := <-onlyA:
		if e.Message != "a1" {
			t.Errorf("job subscriber got %q, want a1", e.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for job entry")
	}
	select {
	case e := <-onlyA:
		t.Errorf("job subscriber received foreign entry %q", e.Message)
	default:
	}

	if got := len(all); got != 2 {
		t.Errorf("wildcard subscriber buffered %d entries, want 2", got)
	}
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	hub := NewHub().WithBuffer(1)
	job := uuid.New()

	_, cancel := hub.Subscribe(job)
	defer cancel()

	hub.Publish(NewEntry(job, "INFO", "first"))
	hub.Publish(NewEntry(job, "INFO", "second"))

	if hub.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", hub.Dropped())
	}
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe(uuid.Nil)

	if hub.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", hub.Subscribers())
	}
	cancel()
	cancel() // idempotent
	if hub.Subscribers() != 0 {
		t.Errorf("Subscribers = %d after cancel, want 0", hub.Subscribers())
	}
}
