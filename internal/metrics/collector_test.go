package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angeloszaimis/scrobbler-proxy/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		reg       *prometheus.Registry
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		ctx, cancel = context.WithCancel(context.Background())
		reg = prometheus.NewRegistry()
		collector = metrics.NewCollector(100, log, reg)
	})

	AfterEach(func() {
		cancel()
		time.Sleep(10 * time.Millisecond) // Allow goroutine to finish
	})

	Describe("NewCollector", func() {
		It("should work without a Prometheus registry", func() {
			c := metrics.NewCollector(10, log, nil)
			c.Start(ctx)
			c.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Method: getInfo})
			Eventually(func() int64 { return c.Snapshot().TotalRequests }).Should(Equal(int64(1)))
		})
	})

	Describe("Emit", func() {
		It("should not block when the buffer is full", func() {
			c := metrics.NewCollector(1, log, nil)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 10; i++ {
					c.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Method: getInfo})
				}
			}()
			Eventually(done).Should(BeClosed())
		})
	})

	Describe("Start and event processing", func() {
		BeforeEach(func() {
			collector.Start(ctx)
		})

		It("should process EventRequestReceived", func() {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Method: getInfo})

			Eventually(func() int64 {
				return collector.Snapshot().Methods[getInfo].Requests
			}).Should(Equal(int64(1)))
			Eventually(func() (int, error) {
				return testutil.GatherAndCount(reg, "scrobbler_proxy_requests_total")
			}).Should(Equal(1))
		})

		It("should process EventFetchCompleted", func() {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventFetchCompleted,
				Method:     getInfo,
				Outcome:    "success",
				Duration:   100 * time.Millisecond,
				StatusCode: 200,
			})

			Eventually(func() int64 {
				return collector.Snapshot().FetchOK
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot().Methods[getInfo].AvgFetch).To(Equal(100 * time.Millisecond))
		})

		It("should process EventHibernateChanged", func() {
			collector.Emit(metrics.MetricEvent{Type: metrics.EventHibernateChanged, Hibernating: true})

			Eventually(func() bool {
				return collector.Snapshot().Hibernating
			}).Should(BeTrue())
		})

		It("should process EventVisitor", func() {
			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventVisitor,
				Method:  getInfo,
				Visitor: &metrics.Visitor{UserAgent: "curl/8", Origin: "https://example.com"},
			})

			Eventually(func() int64 {
				return collector.Snapshot().Visitors
			}).Should(Equal(int64(1)))
		})

		It("should process multiple events in sequence", func() {
			events := []metrics.MetricEvent{
				{Type: metrics.EventRequestReceived, Method: getInfo},
				{Type: metrics.EventThrottled, Method: getInfo},
				{Type: metrics.EventResponseServed, Method: getInfo, Tier: metrics.TierFallback},
				{Type: metrics.EventCacheUpdated, Method: getInfo, Changed: true},
			}
			for _, event := range events {
				collector.Emit(event)
			}

			Eventually(func() int64 {
				return collector.Snapshot().Methods[getInfo].CacheUpdates
			}).Should(Equal(int64(1)))

			mm := collector.Snapshot().Methods[getInfo]
			Expect(mm.Requests).To(Equal(int64(1)))
			Expect(mm.Throttled).To(Equal(int64(1)))
			Expect(mm.Tiers[metrics.TierFallback]).To(Equal(int64(1)))
		})

		It("should drain events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Method: getInfo})
			}

			cancel()

			Eventually(func() int64 {
				return collector.Snapshot().Methods[getInfo].Requests
			}).Should(Equal(int64(5)))
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Method: getInfo})
			Eventually(func() int64 { return collector.Snapshot().TotalRequests }).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.Handler()(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.TotalRequests).To(Equal(int64(1)))
		})
	})
})
