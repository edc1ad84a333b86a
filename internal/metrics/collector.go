package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EventType string

const (
	EventRequestReceived  EventType = "request_received"
	EventThrottled        EventType = "throttled"
	EventFetchCompleted   EventType = "fetch_completed"
	EventResponseServed   EventType = "response_served"
	EventCacheUpdated     EventType = "cache_updated"
	EventHibernateChanged EventType = "hibernate_changed"
	EventVisitor          EventType = "visitor"
)

const (
	TierFresh    = "fresh"
	TierFallback = "fallback"
	TierNotReady = "not_ready"
	TierRejected = "rejected"
)

// Visitor describes who asked for the user info, as seen by the proxy.
type Visitor struct {
	UserAgent  string `json:"user_agent"`
	Origin     string `json:"origin"`
	Referer    string `json:"referer"`
	RemoteAddr string `json:"remote_addr,omitempty"`
}

type MetricEvent struct {
	Type        EventType
	Timestamp   time.Time
	Method      string
	Outcome     string
	Tier        string
	Duration    time.Duration
	StatusCode  int
	Changed     bool
	Hibernating bool
	Visitor     *Visitor
}

// Sink receives proxy events. Implementations must not block.
type Sink interface {
	Emit(event MetricEvent)
}

type discard struct{}

func (discard) Emit(MetricEvent) {}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *Prometheus
	logger     *slog.Logger
}

// NewCollector creates a collector with the given buffer size. Prometheus
// collectors are registered on reg; a nil reg skips Prometheus export.
func NewCollector(bufferSize int, logger *slog.Logger, reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
	if reg != nil {
		c.prometheus = NewPrometheus(reg)
	}
	return c
}

// Emit queues an event without waiting.
func (c *Collector) Emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Method)

	case EventThrottled:
		c.metrics.IncrementThrottled(event.Method)

	case EventFetchCompleted:
		c.metrics.RecordFetch(event.Method, event.Outcome, event.Duration, event.StatusCode)

	case EventResponseServed:
		c.metrics.RecordServed(event.Method, event.Tier)

	case EventCacheUpdated:
		c.metrics.RecordCacheWrite(event.Method, event.Changed)

	case EventHibernateChanged:
		c.metrics.UpdateHibernate(event.Hibernating, event.Timestamp)

	case EventVisitor:
		c.metrics.IncrementVisitors()
		c.logVisitor(event)
	}

	if c.prometheus != nil {
		c.prometheus.Observe(event)
	}
}

func (c *Collector) logVisitor(event MetricEvent) {
	if event.Visitor == nil {
		return
	}

	ok, failed := c.metrics.FetchTotals()
	c.logger.Info("Proxy visitor",
		slog.Int64("fetch_ok", ok),
		slog.Int64("fetch_errors", failed),
		slog.String("method", event.Method),
		slog.String("user_agent", event.Visitor.UserAgent),
		slog.String("origin", event.Visitor.Origin),
		slog.String("referer", event.Visitor.Referer),
		slog.String("remote_addr", event.Visitor.RemoteAddr))
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
