// Package bulkhead bounds the number of concurrent calls to a shared backend and
// queues excess callers in FIFO order up to a capacity and wait limit.
package bulkhead

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrRejected is matched by RejectionError.
	ErrRejected = errors.New("bulkhead queue is full")
	// ErrQueueTimeout is matched by TimeoutError.
	ErrQueueTimeout = errors.New("bulkhead queue wait timed out")
)

// Default configuration values.
const (
	DefaultMaxConcurrent = 10
	DefaultMaxQueueSize  = 100
	DefaultQueueTimeout  = 5 * time.Second
)

// RejectionError is returned synchronously when the wait queue is full.
type RejectionError struct {
	MaxConcurrent int
	MaxQueueSize  int
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("bulkhead rejected call: %d active and %d queued", e.MaxConcurrent, e.MaxQueueSize)
}

// Is reports whether target is ErrRejected.
func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

// TimeoutError is returned when a queued call waits longer than the queue timeout.
type TimeoutError struct {
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("bulkhead queue wait exceeded %v", e.Waited)
}

// Is reports whether target is ErrQueueTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrQueueTimeout
}

// Config configures a Bulkhead.
type Config struct {
	MaxConcurrent int
	MaxQueueSize  int
	QueueTimeout  time.Duration
	// OnReject is an optional callback invoked with ErrRejected or ErrQueueTimeout.
	OnReject func(reason error)
}

// Stats is a point-in-time view of bulkhead occupancy.
type Stats struct {
	Active        int `json:"active"`
	Queued        int `json:"queued"`
	MaxConcurrent int `json:"max_concurrent"`
	MaxQueueSize  int `json:"max_queue_size"`
}

// Bulkhead is shared by every caller of a backend; all admission state is mutex guarded.
type Bulkhead struct {
	sem    *semaphore.Weighted
	config Config

	mu     sync.Mutex
	active int
	queued int
}

// New creates a Bulkhead.
func New(config Config) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if config.MaxQueueSize <= 0 {
		config.MaxQueueSize = DefaultMaxQueueSize
	}
	if config.QueueTimeout <= 0 {
		config.QueueTimeout = DefaultQueueTimeout
	}
	return &Bulkhead{
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
		config: config,
	}
}

// Execute runs fn once a slot is available.
func (b *Bulkhead) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	return fn(ctx)
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	b.mu.Lock()
	// TryAcquire fails while older callers are still waiting, which keeps admission FIFO.
	if b.sem.TryAcquire(1) {
		b.active++
		b.mu.Unlock()
		return nil
	}
	if b.queued >= b.config.MaxQueueSize {
		b.mu.Unlock()
		b.reject(ErrRejected)
		return &RejectionError{MaxConcurrent: b.config.MaxConcurrent, MaxQueueSize: b.config.MaxQueueSize}
	}
	b.queued++
	b.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, b.config.QueueTimeout)
	defer cancel()

	err := b.sem.Acquire(waitCtx, 1)

	b.mu.Lock()
	b.queued--
	if err == nil {
		b.active++
	}
	b.mu.Unlock()

	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	b.reject(ErrQueueTimeout)
	return &TimeoutError{Waited: b.config.QueueTimeout}
}

func (b *Bulkhead) release() {
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	b.sem.Release(1)
}

func (b *Bulkhead) reject(reason error) {
	if b.config.OnReject != nil {
		b.config.OnReject(reason)
	}
}

// Stats returns current occupancy.
func (b *Bulkhead) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Active:        b.active,
		Queued:        b.queued,
		MaxConcurrent: b.config.MaxConcurrent,
		MaxQueueSize:  b.config.MaxQueueSize,
	}
}
