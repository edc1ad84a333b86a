package healthcheck

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/scrobbler-proxy/internal/proxycache"
)

const (
	StatusOK          = "ok"
	StatusHibernating = "hibernating"
)

// Source provides the proxy state.
type Source interface {
	Snapshot() proxycache.Status
}

// LatencySource optionally reports the smoothed upstream response time.
type LatencySource interface {
	EWMATime() time.Duration
}

type Report struct {
	Status  string            `json:"status"`
	Time    time.Time         `json:"time"`
	Latency string            `json:"upstream_latency,omitempty"`
	Proxy   proxycache.Status `json:"proxy"`
}

// Handler always answers 200: a hibernating proxy is alive and serving cached data.
func Handler(source Source, latency LatencySource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := Build(source, latency)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			logger.Error("Failed to encode health report", slog.Any("err", err))
		}
	}
}

func Build(source Source, latency LatencySource) Report {
	status := source.Snapshot()

	report := Report{
		Status: StatusOK,
		Time:   time.Now().UTC(),
		Proxy:  status,
	}
	if status.Hibernating {
		report.Status = StatusHibernating
	}
	if latency != nil {
		if d := latency.EWMATime(); d > 0 {
			report.Latency = d.String()
		}
	}

	return report
}
