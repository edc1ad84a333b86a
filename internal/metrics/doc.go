// Package metrics collects proxy statistics without blocking the request path.
//
// The proxy core reports what happened through the Sink interface:
//   - Requests and throttled requests per method
//   - Upstream fetch outcomes and durations (P50, P95, P99)
//   - Which response tier was served (fresh, fallback, not ready)
//   - Cache payload updates versus unchanged payloads
//   - Hibernate transitions
//   - Visitors of the user info endpoint
//
// The Collector runs in a dedicated goroutine and folds events both into an
// in-memory Snapshot and into Prometheus collectors. Emit never blocks; when
// the buffer is full the event is dropped.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger, prometheus.NewRegistry())
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:     metrics.EventFetchCompleted,
//		Method:   "user.getinfo",
//		Outcome:  "success",
//		Duration: 150 * time.Millisecond,
//	})
//
//	snapshot := collector.Snapshot()
package metrics
