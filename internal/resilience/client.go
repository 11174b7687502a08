// Package resilience composes the bulkhead, circuit breaker and retry executor
// into the single client every backend call goes through.
//
// Calls are layered Bulkhead(CircuitBreaker(Retry(op))): one bulkhead bounds
// total concurrency, and each operation class owns a breaker so that a failing
// reindex cannot fail fast the query path.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/bulkhead"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/circuitbreaker"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/retry"
)

// TracerName is the OpenTelemetry tracer name for resilient calls.
const TracerName = "github.com/jonesrussell/north-cloud/index-guard/resilience"

// ErrUnknownClass is returned for a call made with an unregistered operation class.
var ErrUnknownClass = errors.New("unknown operation class")

// Class groups backend operations that share a circuit breaker.
type Class string

const (
	ClassQuery   Class = "query"
	ClassAdmin   Class = "admin"
	ClassReindex Class = "reindex"
)

// Classes lists every operation class in reporting order.
func Classes() []Class {
	return []Class{ClassQuery, ClassAdmin, ClassReindex}
}

// Config holds the breaker, retry and bulkhead parameters.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	MonitoringPeriod time.Duration

	Retry retry.Policy

	MaxConcurrent int
	MaxQueueSize  int
	QueueTimeout  time.Duration
}

// DefaultConfig returns the default resilience parameters.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: circuitbreaker.DefaultFailureThreshold,
		SuccessThreshold: circuitbreaker.DefaultSuccessThreshold,
		OpenTimeout:      circuitbreaker.DefaultTimeout,
		MonitoringPeriod: circuitbreaker.DefaultMonitoringPeriod,
		Retry:            retry.DefaultPolicy(),
		MaxConcurrent:    bulkhead.DefaultMaxConcurrent,
		MaxQueueSize:     bulkhead.DefaultMaxQueueSize,
		QueueTimeout:     bulkhead.DefaultQueueTimeout,
	}
}

// Option configures a Client.
type Option func(*options)

type options struct {
	clock      clock.Clock
	registerer prometheus.Registerer
	jitter     func() float64
}

// WithClock sets the clock shared by the breakers and the retry executor.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

// WithRegisterer sets the Prometheus registerer for client metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithJitter overrides the retry jitter source.
func WithJitter(fn func() float64) Option {
	return func(o *options) {
		o.jitter = fn
	}
}

// Client is the shared resilient executor. Build one per process and inject it.
type Client struct {
	bulkhead *bulkhead.Bulkhead
	breakers map[Class]*circuitbreaker.Breaker
	executor *retry.Executor
	metrics  *Metrics
	tracer   trace.Tracer
	log      logger.Logger
}

// New builds a Client with one bulkhead and a breaker per operation class.
func New(cfg Config, log logger.Logger, opts ...Option) *Client {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	retryOpts := []retry.Option{retry.WithClock(o.clock)}
	if o.jitter != nil {
		retryOpts = append(retryOpts, retry.WithJitter(o.jitter))
	}

	c := &Client{
		breakers: make(map[Class]*circuitbreaker.Breaker, len(Classes())),
		executor: retry.NewExecutor(cfg.Retry, retryOpts...),
		tracer:   otel.Tracer(TracerName),
		log:      log,
	}

	c.bulkhead = bulkhead.New(bulkhead.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxQueueSize:  cfg.MaxQueueSize,
		QueueTimeout:  cfg.QueueTimeout,
		OnReject:      c.onReject,
	})
	c.metrics = NewMetrics(o.registerer, c.bulkhead)

	for _, class := range Classes() {
		c.breakers[class] = circuitbreaker.New(circuitbreaker.Config{
			Name:             string(class),
			FailureThreshold: cfg.FailureThreshold,
			SuccessThreshold: cfg.SuccessThreshold,
			Timeout:          cfg.OpenTimeout,
			MonitoringPeriod: cfg.MonitoringPeriod,
			IsFailure:        IsBackendFailure,
			OnStateChange:    c.onStateChange,
			Clock:            o.clock,
		})
		c.metrics.BreakerState.WithLabelValues(string(class)).Set(float64(circuitbreaker.StateClosed))
	}

	return c
}

// Execute runs fn for the named operation under the bulkhead, the class
// breaker and the retry policy.
func (c *Client) Execute(ctx context.Context, class Class, name string, fn func(context.Context) error) error {
	breaker, ok := c.breakers[class]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}

	ctx, span := c.tracer.Start(ctx, "resilience."+name,
		trace.WithAttributes(
			attribute.String("resilience.class", string(class)),
			attribute.String("resilience.operation", name),
		),
	)
	defer span.End()

	start := time.Now()
	attempts := 0
	err := c.bulkhead.Execute(ctx, func(ctx context.Context) error {
		return breaker.Execute(ctx, func(ctx context.Context) error {
			if noRetry(ctx) {
				attempts = 1
				return fn(ctx)
			}
			res := retry.Execute(ctx, c.executor, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, fn(ctx)
			})
			attempts = res.Attempts
			return res.Err
		})
	})

	outcome := outcomeOf(err)
	c.metrics.CallsTotal.WithLabelValues(string(class), outcome).Inc()
	c.metrics.CallDuration.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())
	if attempts > 0 {
		c.metrics.RetryAttempts.WithLabelValues(string(class)).Observe(float64(attempts))
	}

	span.SetAttributes(
		attribute.Int("resilience.attempts", attempts),
		attribute.String("resilience.outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Do is Execute for operations that return a value.
func Do[T any](ctx context.Context, c *Client, class Class, name string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := c.Execute(ctx, class, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Snapshot is a point-in-time view of breaker and bulkhead state.
type Snapshot struct {
	Breakers []circuitbreaker.Stats `json:"breakers"`
	Bulkhead bulkhead.Stats         `json:"bulkhead"`
}

// Snapshot reports every breaker and the shared bulkhead.
func (c *Client) Snapshot() Snapshot {
	s := Snapshot{Bulkhead: c.bulkhead.Stats()}
	for _, class := range Classes() {
		s.Breakers = append(s.Breakers, c.breakers[class].GetStats())
	}
	return s
}

// Metrics returns the client's Prometheus metrics.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Breaker returns the breaker for a class, or nil.
func (c *Client) Breaker(class Class) *circuitbreaker.Breaker {
	return c.breakers[class]
}

func (c *Client) onStateChange(name string, from, to circuitbreaker.State) {
	c.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
	c.metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
	c.log.Warn("Circuit breaker state changed",
		logger.String("class", name),
		logger.String("from", from.String()),
		logger.String("to", to.String()),
	)
}

func (c *Client) onReject(reason error) {
	label := "queue_full"
	if errors.Is(reason, bulkhead.ErrQueueTimeout) {
		label = "queue_timeout"
	}
	c.metrics.BulkheadRejections.WithLabelValues(label).Inc()
	c.log.Debug("Bulkhead rejected call", logger.String("reason", label))
}

// IsBackendFailure decides whether an error counts against a breaker. Client
// errors other than timeouts and throttling say nothing about backend health.
func IsBackendFailure(err error) bool {
	if !circuitbreaker.DefaultIsFailure(err) {
		return false
	}
	var coder retry.StatusCoder
	if errors.As(err, &coder) {
		code := coder.StatusCode()
		if code >= http.StatusBadRequest && code < http.StatusInternalServerError {
			return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
		}
	}
	return true
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, bulkhead.ErrRejected):
		return "rejected"
	case errors.Is(err, bulkhead.ErrQueueTimeout):
		return "queue_timeout"
	default:
		return "failure"
	}
}

type noRetryKey struct{}

// NoRetry marks ctx so that calls made with it run exactly once. The breaker
// and bulkhead still apply.
func NoRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

func noRetry(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey{}).(bool)
	return v
}
