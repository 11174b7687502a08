package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
)

// DefaultMetricsStream is the Redis stream migration metrics are appended to.
const DefaultMetricsStream = "index-guard:metrics"

// PrometheusSink exposes the latest value of every metric as a gauge.
type PrometheusSink struct {
	values *prometheus.GaugeVec
}

// NewPrometheusSink registers the indexguard_metric_value gauge on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusSink{
		values: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "indexguard",
				Name:      "metric_value",
				Help:      "Latest value of each migration metric",
			},
			[]string{"name", "unit"},
		),
	}
}

// Push sets the gauge for each point; later points win.
func (s *PrometheusSink) Push(_ context.Context, points []domain.MetricPoint) error {
	for _, p := range points {
		s.values.WithLabelValues(p.Name, p.Unit).Set(p.Value)
	}
	return nil
}

// RedisStreamSink appends metric points to a Redis stream.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a stream sink. maxLen > 0 caps the stream length approximately.
func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = DefaultMetricsStream
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Push writes the batch in a single pipeline.
func (s *RedisStreamSink) Push(ctx context.Context, points []domain.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, p := range points {
		dims := ""
		if len(p.Dimensions) > 0 {
			b, err := json.Marshal(p.Dimensions)
			if err != nil {
				return fmt.Errorf("marshal dimensions: %w", err)
			}
			dims = string(b)
		}

		args := &redis.XAddArgs{
			Stream: s.stream,
			Values: map[string]any{
				"name":       p.Name,
				"value":      p.Value,
				"unit":       p.Unit,
				"timestamp":  p.Timestamp.Format(time.RFC3339Nano),
				"dimensions": dims,
			},
		}
		if s.maxLen > 0 {
			args.MaxLen = s.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd metrics: %w", err)
	}
	return nil
}

// MultiSink pushes to every sink and joins their errors.
type MultiSink []Sink

// Push fans the batch out to each sink.
func (m MultiSink) Push(ctx context.Context, points []domain.MetricPoint) error {
	var errs []error
	for _, s := range m {
		if err := s.Push(ctx, points); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
