package healthcheck_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/scrobbler-proxy/internal/healthcheck"
	"github.com/angeloszaimis/scrobbler-proxy/internal/proxycache"
)

type staticSource struct {
	status proxycache.Status
}

func (s staticSource) Snapshot() proxycache.Status {
	return s.status
}

type staticLatency time.Duration

func (l staticLatency) EWMATime() time.Duration {
	return time.Duration(l)
}

var _ = Describe("Healthcheck", func() {
	var log *slog.Logger

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	})

	Describe("Build", func() {
		It("should report ok while awake", func() {
			report := healthcheck.Build(staticSource{}, nil)
			Expect(report.Status).To(Equal(healthcheck.StatusOK))
			Expect(report.Latency).To(BeEmpty())
		})

		It("should report hibernating", func() {
			report := healthcheck.Build(staticSource{status: proxycache.Status{Hibernating: true}}, staticLatency(0))
			Expect(report.Status).To(Equal(healthcheck.StatusHibernating))
		})

		It("should include upstream latency when known", func() {
			report := healthcheck.Build(staticSource{}, staticLatency(250*time.Millisecond))
			Expect(report.Latency).To(Equal("250ms"))
		})
	})

	Describe("Handler", func() {
		It("should answer 200 with a JSON report even when hibernating", func() {
			source := staticSource{status: proxycache.Status{
				Hibernating: true,
				Methods: map[string]proxycache.MethodStatus{
					"user.getinfo": {HasFallback: true, PayloadBytes: 12},
				},
			}}

			w := httptest.NewRecorder()
			healthcheck.Handler(source, nil, log)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))

			var report healthcheck.Report
			Expect(json.Unmarshal(w.Body.Bytes(), &report)).To(Succeed())
			Expect(report.Status).To(Equal(healthcheck.StatusHibernating))
			Expect(report.Proxy.Methods["user.getinfo"].HasFallback).To(BeTrue())
		})
	})
})
