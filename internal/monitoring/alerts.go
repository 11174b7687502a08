package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/clock"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/index-guard/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
)

// Alert defaults.
const (
	DefaultAlertChannel   = "index-guard:alerts"
	DefaultAlertQueueSize = 64
	DefaultAlertRate      = 1.0
	DefaultAlertBurst     = 5
	DefaultAlertTimeout   = 5 * time.Second
)

// Publisher delivers one alert.
type Publisher interface {
	Publish(ctx context.Context, event domain.AlertEvent) error
}

// alertPayload is the wire format published for each alert.
type alertPayload struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Severity  domain.Severity    `json:"severity"`
	Subject   string             `json:"subject"`
	Title     string             `json:"title"`
	Message   string             `json:"message"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// RedisPublisher publishes alerts as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a RedisPublisher.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultAlertChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends the alert.
func (p *RedisPublisher) Publish(ctx context.Context, event domain.AlertEvent) error {
	payload, err := json.Marshal(alertPayload{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		Severity:  event.Severity,
		Subject:   event.Subject(),
		Title:     event.Title,
		Message:   event.Message,
		Metrics:   event.Metrics,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err = p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish alert to %s: %w", p.channel, err)
	}
	return nil
}

// LogPublisher writes alerts to the service log. It is used when Redis is disabled.
type LogPublisher struct {
	log logger.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs the alert at warn level.
func (p *LogPublisher) Publish(_ context.Context, event domain.AlertEvent) error {
	p.log.Warn(event.Subject(),
		logger.String("alert_id", event.ID),
		logger.String("message", event.Message),
		logger.Any("metrics", event.Metrics),
	)
	return nil
}

// StreamPublisher forwards alerts to the operator event stream.
type StreamPublisher struct {
	events sse.Publisher
}

// NewStreamPublisher creates a StreamPublisher.
func NewStreamPublisher(events sse.Publisher) *StreamPublisher {
	return &StreamPublisher{events: events}
}

// Publish sends the alert as an alert:raised event.
func (p *StreamPublisher) Publish(ctx context.Context, event domain.AlertEvent) error {
	return p.events.Publish(ctx, sse.NewAlertEvent(sse.AlertData{
		ID:       event.ID,
		Severity: string(event.Severity),
		Title:    event.Title,
		Message:  event.Message,
		Metrics:  event.Metrics,
	}, event.Timestamp))
}

// MultiPublisher delivers each alert to every publisher.
type MultiPublisher []Publisher

// Publish tries every publisher and joins their errors.
func (m MultiPublisher) Publish(ctx context.Context, event domain.AlertEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AlertConfig configures an AlertDispatcher.
type AlertConfig struct {
	QueueSize     int
	RatePerSecond float64
	Burst         int
	SendTimeout   time.Duration
}

// AlertDispatcher sends alerts asynchronously and best effort. Dispatch never
// blocks; alerts are dropped when the queue is full and send failures are only logged.
type AlertDispatcher struct {
	publisher Publisher
	clock     clock.Clock
	log       logger.Logger
	cfg       AlertConfig
	queue     chan domain.AlertEvent
	limiter   *rate.Limiter

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAlertDispatcher creates a dispatcher. Call Run to start delivery.
func NewAlertDispatcher(publisher Publisher, cfg AlertConfig, clk clock.Clock, log logger.Logger) *AlertDispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultAlertQueueSize
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultAlertRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultAlertBurst
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultAlertTimeout
	}
	return &AlertDispatcher{
		publisher: publisher,
		clock:     clk,
		log:       log,
		cfg:       cfg,
		queue:     make(chan domain.AlertEvent, cfg.QueueSize),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

// Dispatch queues an alert, assigning an id and timestamp when missing.
func (d *AlertDispatcher) Dispatch(event domain.AlertEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = d.clock.Now()
	}

	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		d.log.Warn("Alert queue full, dropping alert",
			logger.String("subject", event.Subject()),
			logger.String("alert_id", event.ID),
		)
	}
}

// Run delivers queued alerts until ctx is done.
func (d *AlertDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.send(ctx, event)
		}
	}
}

func (d *AlertDispatcher) send(ctx context.Context, event domain.AlertEvent) {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	if err := d.publisher.Publish(sendCtx, event); err != nil {
		d.failed.Add(1)
		d.log.Error("Failed to send alert",
			logger.String("subject", event.Subject()),
			logger.String("alert_id", event.ID),
			logger.Error(err),
		)
		return
	}
	d.sent.Add(1)
	d.log.Info("Alert sent",
		logger.String("subject", event.Subject()),
		logger.String("alert_id", event.ID),
	)
}

// AlertStats counts delivery outcomes.
type AlertStats struct {
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
	Queued  int   `json:"queued"`
}

// Stats returns delivery counters.
func (d *AlertDispatcher) Stats() AlertStats {
	return AlertStats{
		Sent:    d.sent.Load(),
		Dropped: d.dropped.Load(),
		Failed:  d.failed.Load(),
		Queued:  len(d.queue),
	}
}
