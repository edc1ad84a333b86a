package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scrobbler_proxy"

// Prometheus mirrors collector events into Prometheus collectors.
type Prometheus struct {
	Requests       *prometheus.CounterVec
	Throttled      *prometheus.CounterVec
	Fetches        *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	Responses      *prometheus.CounterVec
	CacheWrites    *prometheus.CounterVec
	Hibernating    prometheus.Gauge
	HibernateTrips prometheus.Counter
	Visitors       prometheus.Counter
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)

	return &Prometheus{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of proxy requests for a supported method",
			},
			[]string{"method"},
		),
		Throttled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "throttled_total",
				Help:      "Requests answered without an upstream call because the method window was closed",
			},
			[]string{"method"},
		),
		Fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_fetch_total",
				Help:      "Upstream calls by outcome",
			},
			[]string{"method", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Duration of upstream calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		Responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_total",
				Help:      "Responses by tier",
			},
			[]string{"method", "tier"},
		),
		CacheWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_writes_total",
				Help:      "Successful payloads by whether they changed the cached copy",
			},
			[]string{"method", "changed"},
		),
		Hibernating: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hibernating",
			Help:      "1 while the proxy is in hibernate mode",
		}),
		HibernateTrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hibernate_entries_total",
			Help:      "Number of times the proxy entered hibernate mode",
		}),
		Visitors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visitors_total",
			Help:      "User info requests seen by the proxy",
		}),
	}
}

func (p *Prometheus) Observe(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		p.Requests.WithLabelValues(event.Method).Inc()

	case EventThrottled:
		p.Throttled.WithLabelValues(event.Method).Inc()

	case EventFetchCompleted:
		p.Fetches.WithLabelValues(event.Method, event.Outcome).Inc()
		if event.Duration > 0 {
			p.FetchDuration.WithLabelValues(event.Method).Observe(event.Duration.Seconds())
		}

	case EventResponseServed:
		p.Responses.WithLabelValues(event.Method, event.Tier).Inc()

	case EventCacheUpdated:
		changed := "false"
		if event.Changed {
			changed = "true"
		}
		p.CacheWrites.WithLabelValues(event.Method, changed).Inc()

	case EventHibernateChanged:
		if event.Hibernating {
			p.Hibernating.Set(1)
			p.HibernateTrips.Inc()
		} else {
			p.Hibernating.Set(0)
		}

	case EventVisitor:
		p.Visitors.Inc()
	}
}
