// Package monitoring buffers migration metrics, scores index health, polls
// backend tasks and dispatches alerts.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
)

// Buffer defaults.
const (
	DefaultFlushInterval     = 60 * time.Second
	DefaultMaxBatch          = 100
	DefaultMaxPendingBatches = 10

	finalFlushTimeout = 5 * time.Second
)

// Sink receives flushed metric points.
type Sink interface {
	Push(ctx context.Context, points []domain.MetricPoint) error
}

// BufferConfig configures a Buffer.
type BufferConfig struct {
	FlushInterval     time.Duration
	MaxBatch          int
	MaxPendingBatches int
}

// Buffer collects metric points and pushes them to a Sink in batches.
// A failed push puts the batch back at the front of the buffer.
type Buffer struct {
	sink  Sink
	clock clock.Clock
	log   logger.Logger
	cfg   BufferConfig

	mu      sync.Mutex
	points  []domain.MetricPoint
	dropped int

	full chan struct{}
}

// NewBuffer creates a Buffer. Zero config values fall back to the defaults.
func NewBuffer(sink Sink, cfg BufferConfig, clk clock.Clock, log logger.Logger) *Buffer {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if cfg.MaxPendingBatches <= 0 {
		cfg.MaxPendingBatches = DefaultMaxPendingBatches
	}
	return &Buffer{
		sink:  sink,
		clock: clk,
		log:   log,
		cfg:   cfg,
		full:  make(chan struct{}, 1),
	}
}

// Record buffers a point. Points without a timestamp are stamped with the buffer clock.
func (b *Buffer) Record(point domain.MetricPoint) {
	if point.Timestamp.IsZero() {
		point.Timestamp = b.clock.Now()
	}

	b.mu.Lock()
	b.points = append(b.points, point)
	b.trimLocked()
	ready := len(b.points) >= b.cfg.MaxBatch
	b.mu.Unlock()

	if ready {
		select {
		case b.full <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of buffered points.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points)
}

// Dropped returns how many points were discarded because the buffer overflowed.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Flush pushes every buffered point in batches of MaxBatch. On failure the
// unsent points are re-queued ahead of anything recorded meanwhile.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.points
	b.points = nil
	b.mu.Unlock()

	for len(pending) > 0 {
		n := min(len(pending), b.cfg.MaxBatch)
		if err := b.sink.Push(ctx, pending[:n]); err != nil {
			b.requeue(pending)
			return fmt.Errorf("push %d metric points: %w", n, err)
		}
		pending = pending[n:]
	}
	return nil
}

func (b *Buffer) requeue(unsent []domain.MetricPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.points = append(append(make([]domain.MetricPoint, 0, len(unsent)+len(b.points)), unsent...), b.points...)
	b.trimLocked()
}

// trimLocked drops the oldest points beyond capacity. Callers hold b.mu.
func (b *Buffer) trimLocked() {
	limit := b.cfg.MaxBatch * b.cfg.MaxPendingBatches
	if over := len(b.points) - limit; over > 0 {
		b.points = b.points[over:]
		b.dropped += over
		b.log.Warn("Metric buffer full, dropping oldest points",
			logger.Int("dropped", over),
			logger.Int("capacity", limit),
		)
	}
}

// Run flushes every FlushInterval and whenever a full batch is buffered,
// until ctx is done. A final flush is attempted on exit.
func (b *Buffer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			b.flushAndLog(flushCtx)
			cancel()
			return
		case <-b.full:
		case <-b.clock.After(b.cfg.FlushInterval):
		}
		b.flushAndLog(ctx)
	}
}

func (b *Buffer) flushAndLog(ctx context.Context) {
	if err := b.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
		b.log.Warn("Metric flush failed, points re-queued",
			logger.Int("buffered", b.Len()),
			logger.Error(err),
		)
	}
}
