package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/scrobbler-proxy/internal/handler"
	"github.com/angeloszaimis/scrobbler-proxy/internal/healthcheck"
	"github.com/angeloszaimis/scrobbler-proxy/internal/middleware"
)

func setupRouter(a *app) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)

	proxyHandler := handler.NewProxyHandler(a.logger, a.proxy, a.collector)

	r.Method(http.MethodGet, "/proxy-api", proxyHandler)
	r.Method(http.MethodGet, "/audioscrobbler", proxyHandler)

	r.Get("/health", healthcheck.Handler(a.proxy, a.client, a.logger))
	r.Get("/stats", a.collector.Handler())
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	if dir := a.cfg.Static.Dir; dir != "" {
		r.Get("/demo", http.RedirectHandler("/demo/", http.StatusMovedPermanently).ServeHTTP)
		r.Handle("/*", http.FileServer(http.Dir(dir)))
	}

	return r
}
