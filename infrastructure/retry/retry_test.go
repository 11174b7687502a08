package retry_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/retry"
)

type statusError struct{ code int }

func (e statusError) Error() string   { return fmt.Sprintf("backend returned %d", e.code) }
func (e statusError) StatusCode() int { return e.code }

func testPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = 3
	p.InitialDelay = 1000 * time.Millisecond
	p.BackoffMultiplier = 2
	p.MaxDelay = 10000 * time.Millisecond
	return p
}

func TestExecute_DelaysFollowBackoffWithJitter(t *testing.T) {
	t.Parallel()

	jitters := []float64{0, 0.999}
	for _, j := range jitters {
		fake := clock.NewFake(time.Unix(0, 0))
		exec := retry.NewExecutor(testPolicy(), retry.WithClock(fake), retry.WithJitter(func() float64 { return j }))

		res := retry.Execute(context.Background(), exec, func(context.Context) (int, error) {
			return 0, statusError{code: http.StatusServiceUnavailable}
		})

		require.False(t, res.Success)
		assert.Equal(t, 3, res.Attempts)

		sleeps := fake.Sleeps()
		require.Len(t, sleeps, 2)
		assert.GreaterOrEqual(t, sleeps[0], 1000*time.Millisecond)
		assert.Less(t, sleeps[0], 1250*time.Millisecond)
		assert.GreaterOrEqual(t, sleeps[1], 2000*time.Millisecond)
		assert.Less(t, sleeps[1], 2500*time.Millisecond)
		assert.Equal(t, sleeps[0]+sleeps[1], res.Duration)
	}
}

func TestExecuteNonRetryableReturnsAfterOneAttempt(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	exec := retry.NewExecutor(testPolicy(), retry.WithClock(fake))
	calls := 0

	res := retry.Execute(context.Background(), exec, func(context.Context) (string, error) {
		calls++
		return "", statusError{code: http.StatusBadRequest}
	})

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fake.Sleeps())
}

func TestExecute_SucceedsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	exec := retry.NewExecutor(testPolicy(), retry.WithClock(fake), retry.WithJitter(func() float64 { return 0 }))
	calls := 0

	res := retry.Execute(context.Background(), exec, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", syscall.ECONNRESET
		}
		return "ok", nil
	})

	require.True(t, res.Success)
	assert.Equal(t, "ok", res.Data)
	assert.Equal(t, 2, res.Attempts)
	assert.NoError(t, res.Err)
	assert.Equal(t, []time.Duration{time.Second}, fake.Sleeps())
}

func TestExecutor_BaseDelayCapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	exec := retry.NewExecutor(testPolicy())

	assert.Equal(t, 1*time.Second, exec.BaseDelay(1))
	assert.Equal(t, 2*time.Second, exec.BaseDelay(2))
	assert.Equal(t, 8*time.Second, exec.BaseDelay(4))
	assert.Equal(t, 10*time.Second, exec.BaseDelay(5))
	assert.Equal(t, 10*time.Second, exec.BaseDelay(12))
}

func TestExecute_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	exec := retry.NewExecutor(testPolicy())
	calls := 0

	res := retry.Execute(ctx, exec, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("connection reset by peer")
	})

	assert.False(t, res.Success)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, res.Err, retry.ErrContextCancelled)
}

func TestDo_WrapsExhaustedRetries(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(0, 0))
	exec := retry.NewExecutor(testPolicy(), retry.WithClock(fake))

	err := retry.Do(context.Background(), exec, func(context.Context) error {
		return errors.New("i/o timeout")
	})

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestPolicy_IsRetryable(t *testing.T) {
	t.Parallel()

	policy := retry.DefaultPolicy()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "408", err: statusError{code: http.StatusRequestTimeout}, want: true},
		{name: "429", err: statusError{code: http.StatusTooManyRequests}, want: true},
		{name: "503", err: statusError{code: http.StatusServiceUnavailable}, want: true},
		{name: "404", err: statusError{code: http.StatusNotFound}, want: false},
		{name: "400", err: statusError{code: http.StatusBadRequest}, want: false},
		{name: "wrapped status", err: fmt.Errorf("count: %w", statusError{code: http.StatusBadGateway}), want: true},
		{name: "econnrefused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "message", err: errors.New("Connection Reset by peer"), want: true},
		{name: "permanent", err: errors.New("mapper_parsing_exception"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, policy.IsRetryable(tt.err))
		})
	}
}
