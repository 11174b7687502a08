package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/index-guard/infrastructure/logger"
)

const (
	headerContentType     = "Content-Type"
	headerCacheControl    = "Cache-Control"
	headerConnection      = "Connection"
	headerXAccelBuffering = "X-Accel-Buffering"

	sseContentType = "text/event-stream"
)

// Handler streams events from sub to the client until it disconnects or the
// broker shuts down.
func Handler(sub Subscriber, logger infralogger.Logger, opts ...ClientOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventChan, cleanup := sub.Subscribe(c.Request.Context(), opts...)
		defer cleanup()

		if eventChan == nil {
			logger.Warn("SSE subscription rejected (max clients reached)")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many connections"})
			return
		}

		// Streams outlive the server write timeout.
		_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

		setHeaders(c.Writer)
		c.Status(http.StatusOK)
		if err := writeEvent(c.Writer, Event{
			Type: eventTypeConnected,
			Data: map[string]string{"timestamp": time.Now().UTC().Format(time.RFC3339)},
		}); err != nil {
			logger.Debug("SSE connect write failed", infralogger.Error(err))
			return
		}
		c.Writer.Flush()

		stream(c, eventChan, sub.HeartbeatInterval(), logger)
	}
}

func setHeaders(w gin.ResponseWriter) {
	w.Header().Set(headerContentType, sseContentType)
	w.Header().Set(headerCacheControl, "no-cache")
	w.Header().Set(headerConnection, "keep-alive")
	w.Header().Set(headerXAccelBuffering, "no")
}

func stream(c *gin.Context, eventChan <-chan Event, heartbeat time.Duration, logger infralogger.Logger) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeEvent(c.Writer, event); err != nil {
				logger.Debug("SSE write failed (client likely disconnected)",
					infralogger.String("event_type", event.Type),
					infralogger.Error(err),
				)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprintf(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
		c.Writer.Flush()
	}
}

// writeEvent writes event in the text/event-stream wire format.
func writeEvent(w io.Writer, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	if event.Type != "" {
		if _, err = fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
			return fmt.Errorf("write event type: %w", err)
		}
	}
	if event.ID != "" {
		if _, err = fmt.Fprintf(w, "id: %s\n", event.ID); err != nil {
			return fmt.Errorf("write event id: %w", err)
		}
	}
	if event.Retry > 0 {
		if _, err = fmt.Fprintf(w, "retry: %d\n", event.Retry); err != nil {
			return fmt.Errorf("write retry: %w", err)
		}
	}
	if _, err = fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}
	return nil
}
