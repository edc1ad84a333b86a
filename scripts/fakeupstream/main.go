// Fakeupstream is a stand-in for the Last.fm API used to exercise the proxy
// locally, including its hibernate and fallback paths.
//
// Usage:
//
//	go run ./scripts/fakeupstream -port 8081 -mode ok
//	curl -X POST 'localhost:8081/mode?set=error29'
//
// Point the proxy at it with LASTFM_BASE_URL=http://localhost:8081/2.0.
//
// Modes:
//   - ok: 200 with a user payload
//   - error26, error29: 403 with the matching Last.fm error code
//   - error11: 503 with a transient Last.fm error
//   - anomaly: 500 without an error field
//   - garbage: 200 with a body that is not JSON
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/scrobbler-proxy/pkg/logger"
)

var modes = map[string]bool{
	"ok": true, "error26": true, "error29": true, "error11": true, "anomaly": true, "garbage": true,
}

type upstream struct {
	mu     sync.Mutex
	mode   string
	static bool
	delay  time.Duration
	calls  int
	log    *slog.Logger
}

func (u *upstream) current() (string, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	return u.mode, u.calls
}

func (u *upstream) serveAPI(w http.ResponseWriter, r *http.Request) {
	mode, call := u.current()
	q := r.URL.Query()
	method := q.Get("method")

	u.log.Info("upstream call",
		slog.Int("call", call),
		slog.String("mode", mode),
		slog.String("method", method),
		slog.String("user", q.Get("user")),
		slog.String("limit", q.Get("limit")))

	if u.delay > 0 {
		time.Sleep(u.delay)
	}

	w.Header().Set("Content-Type", "application/json")

	switch mode {
	case "error26":
		writeJSON(w, http.StatusForbidden, map[string]any{"error": 26, "message": "Suspended API key"})
	case "error29":
		writeJSON(w, http.StatusForbidden, map[string]any{"error": 29, "message": "Rate limit exceeded"})
	case "error11":
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": 11, "message": "Service Offline"})
	case "anomaly":
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal"})
	case "garbage":
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>maintenance</html>"))
	default:
		writeJSON(w, http.StatusOK, u.payload(method, call))
	}
}

func (u *upstream) payload(method string, call int) map[string]any {
	id := "static"
	if !u.static {
		id = uuid.NewString()
	}

	if method == "user.getrecenttracks" {
		return map[string]any{
			"recenttracks": map[string]any{
				"track": []map[string]any{{"name": fmt.Sprintf("Track %d", call), "mbid": id}},
			},
		}
	}

	return map[string]any{
		"user": map[string]any{"name": "rockland", "playcount": "1000", "mbid": id},
	}
}

func (u *upstream) serveMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mode := r.URL.Query().Get("set")
	if !modes[mode] {
		http.Error(w, "unknown mode", http.StatusBadRequest)
		return
	}

	u.mu.Lock()
	u.mode = mode
	u.mu.Unlock()

	u.log.Warn("mode changed", slog.String("mode", mode))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, _ := json.Marshal(v)
	w.WriteHeader(status)
	w.Write(b)
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	mode := flag.String("mode", "ok", "initial response mode")
	static := flag.Bool("static", false, "return identical payloads on every call")
	delay := flag.Duration("delay", 0, "delay before each response")
	flag.Parse()

	log := logger.New("info", false, "dev")

	if !modes[*mode] {
		log.Error("unknown mode", slog.String("mode", *mode))
		os.Exit(1)
	}

	u := &upstream{mode: *mode, static: *static, delay: *delay, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/2.0", u.serveAPI)
	mux.HandleFunc("/2.0/", u.serveAPI)
	mux.HandleFunc("/mode", u.serveMode)

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting fake upstream", slog.String("addr", addr), slog.String("mode", *mode))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
