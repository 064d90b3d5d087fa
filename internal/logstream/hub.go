// Package logstream fans job log lines out to live subscribers (the /ws push
// stream and the streaming scrape endpoint).
package logstream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultSubscriberBuffer = 256

// Entry is one log line. The JSON shape matches what the log terminal reads.
type Entry struct {
	JobID     uuid.UUID `json:"-"`
	Timestamp string    `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// NewEntry stamps a message with the current time.
func NewEntry(jobID uuid.UUID, level, message string) Entry {
	return Entry{
		JobID:     jobID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   message,
	}
}

type subscriber struct {
	ch    chan Entry
	jobID uuid.UUID // uuid.Nil receives every job
}

// Hub is a non-blocking broadcaster. A subscriber that falls behind loses
// lines instead of stalling the publishing job.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	buffer  int
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[*subscriber]struct{}),
		buffer: defaultSubscriberBuffer,
	}
}

// WithBuffer sets the per-subscriber channel size for new subscriptions.
func (h *Hub) WithBuffer(n int) *Hub {
	if n > 0 {
		h.buffer = n
	}
	return h
}

// Subscribe registers a listener. Pass uuid.Nil to receive all jobs.
// The returned cancel func must be called to release the subscription.
func (h *Hub) Subscribe(jobID uuid.UUID) (<-chan Entry, func()) {
	sub := &subscriber{ch: make(chan Entry, h.buffer), jobID: jobID}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

func (h *Hub) Publish(e Entry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if sub.jobID != uuid.Nil && sub.jobID != e.JobID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped returns how many lines were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
