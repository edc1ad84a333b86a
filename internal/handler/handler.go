package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/angeloszaimis/scrobbler-proxy/internal/metrics"
	"github.com/angeloszaimis/scrobbler-proxy/internal/middleware"
	"github.com/angeloszaimis/scrobbler-proxy/internal/proxycache"
	"github.com/angeloszaimis/scrobbler-proxy/internal/upstream"
)

// StatusTextHeader carries the envelope status text, which HTTP/1.1 reason
// phrases cannot express from net/http.
const StatusTextHeader = "X-Proxy-Status"

// Proxy is the part of proxycache.Proxy the handler needs.
type Proxy interface {
	Handle(ctx context.Context, method, origin string) proxycache.Envelope
	Supports(method string) bool
}

type ProxyHandler struct {
	logger *slog.Logger
	proxy  Proxy
	sink   metrics.Sink
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)
	method := r.URL.Query().Get("method")
	origin := r.Header.Get("Origin")

	h.logger.Debug("Received proxy request",
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.String("from", clientIP),
		slog.String("method", method),
		slog.String("origin", origin),
		slog.String("user_agent", r.UserAgent()))

	// user.getinfo is requested about once per page view, so it doubles as a visitor log.
	if normalized := proxycache.NormalizeMethod(method); normalized == upstream.MethodUserGetInfo && h.proxy.Supports(normalized) {
		h.sink.Emit(metrics.MetricEvent{
			Type:   metrics.EventVisitor,
			Method: normalized,
			Visitor: &metrics.Visitor{
				UserAgent:  r.UserAgent(),
				Origin:     origin,
				Referer:    r.Referer(),
				RemoteAddr: clientIP,
			},
		})
	}

	// A started upstream call always runs to completion, even if the client goes away.
	env := h.proxy.Handle(context.WithoutCancel(r.Context()), method, origin)

	writeEnvelope(w, env)
}

func writeEnvelope(w http.ResponseWriter, env proxycache.Envelope) {
	for key, values := range env.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	if env.StatusText != "" {
		w.Header().Set(StatusTextHeader, env.StatusText)
	}

	w.WriteHeader(env.Status)
	_, _ = w.Write([]byte(env.Body))
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func NewProxyHandler(logger *slog.Logger, proxy Proxy, sink metrics.Sink) *ProxyHandler {
	if sink == nil {
		sink = metrics.Discard
	}

	return &ProxyHandler{
		logger: logger,
		proxy:  proxy,
		sink:   sink,
	}
}
