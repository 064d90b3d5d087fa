// Package channel is the in-process job queue between submitters (API,
// sweeps) and dispatcher workers.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/smyja/web3event/internal/domain"
)

// DefaultEmitTimeout bounds how long Emit waits for buffer space.
const DefaultEmitTimeout = 5 * time.Second

var (
	// ErrBufferFull is returned when the buffer stayed full for the emit timeout.
	ErrBufferFull = errors.New("job bus buffer full")
	// ErrNoJobID rejects a request that does not name a stored job.
	ErrNoJobID = errors.New("job request has no job id")
)

// MetricsSink receives bus metrics. Methods must not block.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	BufferSaturationUpdate(saturation float64)
	EmitError()
}

type Option func(*JobBus)

func WithEmitTimeout(d time.Duration) Option {
	return func(b *JobBus) { b.emitTimeout = d }
}

func WithMetrics(m MetricsSink) Option {
	return func(b *JobBus) { b.metrics = m }
}

type JobBus struct {
	ch          chan domain.JobRequest
	emitTimeout time.Duration
	metrics     MetricsSink
}

func NewJobBus(buffer int, opts ...Option) *JobBus {
	b := &JobBus{
		ch:          make(chan domain.JobRequest, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit queues req. It fails with ErrBufferFull if no space frees up within
// the emit timeout, or with ctx.Err() if ctx ends first.
func (b *JobBus) Emit(ctx context.Context, req domain.JobRequest) error {
	if req.JobID == uuid.Nil {
		b.emitError()
		return ErrNoJobID
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- req:
		b.updateMetrics()
		return nil
	case <-ctx.Done():
		b.emitError()
		return ctx.Err()
	case <-timer.C:
		b.emitError()
		return ErrBufferFull
	}
}

func (b *JobBus) Channel() <-chan domain.JobRequest {
	return b.ch
}

// Len is the number of queued requests.
func (b *JobBus) Len() int {
	return len(b.ch)
}

func (b *JobBus) updateMetrics() {
	if b.metrics == nil {
		return
	}
	size := len(b.ch)
	b.metrics.BufferSizeUpdate(size)
	if c := cap(b.ch); c > 0 {
		b.metrics.BufferSaturationUpdate(float64(size) / float64(c))
	}
}

func (b *JobBus) emitError() {
	if b.metrics != nil {
		b.metrics.EmitError()
	}
}
