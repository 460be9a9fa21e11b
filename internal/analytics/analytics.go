// Package analytics implements the fire-and-forget event sinks
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"rewards_webapp/internal/domain"
	"rewards_webapp/internal/logger"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_total",
			Help: "Analytics events by name and sink outcome",
		},
		[]string{"event", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(EventsTotal)
}

// LogSink writes every event as a structured log line
type LogSink struct{}

func (LogSink) Track(_ context.Context, name, userID string, payload map[string]any) {
	logger.With("event", name, "user_id", userID).WithField("payload", payload).Info("analytics")
}

// Multi fans an event out to several sinks
type Multi []interface {
	Track(ctx context.Context, name, userID string, payload map[string]any)
}

func (m Multi) Track(ctx context.Context, name, userID string, payload map[string]any) {
	for _, s := range m {
		s.Track(ctx, name, userID, payload)
	}
}

// StreamSink appends events to a Redis stream from a background worker.
// Track never blocks; when the buffer is full the event is dropped.
type StreamSink struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	now    func() time.Time

	events chan domain.AnalyticsEvent
}

func NewStreamSink(rdb *redis.Client, stream string, buffer int) *StreamSink {
	if buffer <= 0 {
		buffer = 1024
	}
	return &StreamSink{
		rdb:    rdb,
		stream: stream,
		maxLen: 100000,
		now:    time.Now,
		events: make(chan domain.AnalyticsEvent, buffer),
	}
}

func (s *StreamSink) Track(_ context.Context, name, userID string, payload map[string]any) {
	ev := domain.AnalyticsEvent{Name: name, UserID: userID, Payload: payload, CreatedAt: s.now().UTC()}
	select {
	case s.events <- ev:
	default:
		EventsTotal.WithLabelValues(name, "dropped").Inc()
		logger.Warn("analytics buffer full, event dropped", "event", name)
	}
}

// Run drains the buffer until ctx is done, then flushes what is left
func (s *StreamSink) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-s.events:
			s.publish(ev)
		case <-ctx.Done():
			s.flush()
			return nil
		}
	}
}

func (s *StreamSink) flush() {
	for {
		select {
		case ev := <-s.events:
			s.publish(ev)
		default:
			return
		}
	}
}

// publish uses its own timeout so events taken before shutdown still go out
func (s *StreamSink) publish(ev domain.AnalyticsEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		EventsTotal.WithLabelValues(ev.Name, "error").Inc()
		return
	}

	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"name":       ev.Name,
			"user_id":    ev.UserID,
			"payload":    string(payload),
			"created_at": ev.CreatedAt.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		EventsTotal.WithLabelValues(ev.Name, "error").Inc()
		logger.Warn("analytics publish failed", "event", ev.Name, "error", err)
		return
	}
	EventsTotal.WithLabelValues(ev.Name, "published").Inc()
}
