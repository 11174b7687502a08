package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/internal/elasticsearch"
)

// Poller defaults.
const (
	DefaultPollInterval  = 10 * time.Second
	DefaultStallPolls    = 6
	DefaultMaxPolls      = 8640
	DefaultMaxPollErrors = 3
)

var (
	// ErrTaskFailed is matched by TaskError.
	ErrTaskFailed = errors.New("backend task failed")
	// ErrMaxPollsExceeded is returned when the task is still running after MaxPolls polls.
	ErrMaxPollsExceeded = errors.New("task did not complete within the poll limit")
	// ErrPollStopped is returned when the stop check asked the poller to give up.
	ErrPollStopped = errors.New("task polling stopped")
)

// TaskError reports a task that completed with an error.
type TaskError struct {
	TaskID string
	Reason string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Reason)
}

// Is reports whether target is ErrTaskFailed.
func (e *TaskError) Is(target error) bool {
	return target == ErrTaskFailed
}

// TaskBackend reads backend task status.
type TaskBackend interface {
	GetTask(ctx context.Context, taskID string) (elasticsearch.TaskStatus, error)
}

// PollerConfig configures a TaskPoller.
type PollerConfig struct {
	Interval time.Duration
	// StallPolls consecutive polls without progress are reported as a stall.
	StallPolls int
	MaxPolls   int
	// MaxPollErrors consecutive status read failures abort polling.
	MaxPollErrors int
}

// PollUpdate is reported after every poll.
type PollUpdate struct {
	Poll       int
	Status     elasticsearch.TaskStatus
	Elapsed    time.Duration
	Throughput float64
	ETA        time.Duration
	// Stalled is set on the poll at which the stall threshold is reached.
	Stalled bool
	Err     error
}

// TaskPoller polls a backend task on a fixed interval with stall detection and
// a bounded number of polls.
type TaskPoller struct {
	backend TaskBackend
	clock   clock.Clock
	cfg     PollerConfig
}

// NewTaskPoller creates a TaskPoller. Zero config values fall back to the defaults.
func NewTaskPoller(backend TaskBackend, cfg PollerConfig, clk clock.Clock) *TaskPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.StallPolls <= 0 {
		cfg.StallPolls = DefaultStallPolls
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	if cfg.MaxPollErrors <= 0 {
		cfg.MaxPollErrors = DefaultMaxPollErrors
	}
	return &TaskPoller{backend: backend, clock: clk, cfg: cfg}
}

// Poll waits for taskID to complete. stop is consulted before every poll; when
// it returns true polling ends with ErrPollStopped. onUpdate, if set, receives
// every observation.
func (p *TaskPoller) Poll(ctx context.Context, taskID string, stop func() bool, onUpdate func(PollUpdate)) (elasticsearch.TaskStatus, error) {
	start := p.clock.Now()
	var (
		last          elasticsearch.TaskStatus
		lastProcessed int64 = -1
		idlePolls     int
		errorPolls    int
	)

	for poll := 1; poll <= p.cfg.MaxPolls; poll++ {
		if stop != nil && stop() {
			return last, ErrPollStopped
		}

		status, err := p.backend.GetTask(ctx, taskID)
		update := PollUpdate{Poll: poll, Elapsed: p.clock.Now().Sub(start)}

		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			errorPolls++
			update.Status = last
			update.Err = err
			notify(onUpdate, update)
			if errorPolls >= p.cfg.MaxPollErrors {
				return last, fmt.Errorf("read task %s: %w", taskID, err)
			}
		} else {
			errorPolls = 0
			last = status
			update.Status = status

			processed := status.Processed()
			if processed == lastProcessed && !status.Completed {
				idlePolls++
			} else {
				idlePolls = 0
			}
			lastProcessed = processed
			update.Stalled = idlePolls == p.cfg.StallPolls

			if secs := update.Elapsed.Seconds(); secs > 0 {
				update.Throughput = float64(processed) / secs
			}
			if update.Throughput > 0 && status.Total > processed {
				remaining := float64(status.Total-processed) / update.Throughput
				update.ETA = time.Duration(remaining * float64(time.Second))
			}
			notify(onUpdate, update)

			if status.Completed {
				if status.Error != "" {
					return status, &TaskError{TaskID: taskID, Reason: status.Error}
				}
				return status, nil
			}
		}

		if sleepErr := clock.Sleep(ctx, p.clock, p.cfg.Interval); sleepErr != nil {
			return last, sleepErr
		}
	}

	return last, fmt.Errorf("%w: %d polls", ErrMaxPollsExceeded, p.cfg.MaxPolls)
}

func notify(fn func(PollUpdate), u PollUpdate) {
	if fn != nil {
		fn(u)
	}
}
