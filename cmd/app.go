package main

import (
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angeloszaimis/scrobbler-proxy/config"
	"github.com/angeloszaimis/scrobbler-proxy/internal/circuitbreaker"
	"github.com/angeloszaimis/scrobbler-proxy/internal/metrics"
	"github.com/angeloszaimis/scrobbler-proxy/internal/proxycache"
	"github.com/angeloszaimis/scrobbler-proxy/internal/upstream"
)

const metricsBufferSize = 1024

// app holds the wired components shared by the serve and fetch commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *upstream.Client
	breaker   *circuitbreaker.CircuitBreaker
	registry  *prometheus.Registry
	collector *metrics.Collector
	proxy     *proxycache.Proxy
}

func newApp(cfg *config.Config, log *slog.Logger, clk clock.Clock) (*app, error) {
	client, err := upstream.New(cfg.UpstreamClientConfig())
	if err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	if !client.HasAPIKey() {
		log.Warn("API key not defined, proxy requests will be answered with an error")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metrics.NewCollector(metricsBufferSize, log, registry)
	breaker := circuitbreaker.New(cfg.Hibernate.FatalCodes, clk)

	proxy := proxycache.New(proxycache.Options{
		Fetcher:   client,
		Policy:    cfg.WaitPolicy(),
		AllowList: cfg.AllowList(),
		Breaker:   breaker,
		Clock:     clk,
		Logger:    log,
		Sink:      collector,
	})

	log.Info("Proxy configured",
		slog.String("user", cfg.LastFM.User),
		slog.String("upstream", cfg.LastFM.BaseURL),
		slog.Any("cors_allow", cfg.AllowList()),
		slog.Duration("upstream_timeout", cfg.UpstreamTimeout()))

	return &app{
		cfg:       cfg,
		logger:    log,
		client:    client,
		breaker:   breaker,
		registry:  registry,
		collector: collector,
		proxy:     proxy,
	}, nil
}
