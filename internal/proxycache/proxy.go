package proxycache

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/angeloszaimis/scrobbler-proxy/internal/circuitbreaker"
	"github.com/angeloszaimis/scrobbler-proxy/internal/metrics"
	"github.com/angeloszaimis/scrobbler-proxy/internal/upstream"
)

// Fetcher performs one upstream call for a method.
type Fetcher interface {
	HasAPIKey() bool
	Fetch(ctx context.Context, method string) upstream.Result
}

type Options struct {
	Fetcher   Fetcher
	Policy    WaitPolicy
	AllowList AllowList
	// Methods restricts the accepted method names. Defaults to upstream.Methods.
	Methods []string
	Breaker *circuitbreaker.CircuitBreaker
	Clock   clock.Clock
	Logger  *slog.Logger
	Sink    metrics.Sink
}

type Proxy struct {
	fetcher   Fetcher
	policy    WaitPolicy
	allowList AllowList
	methods   map[string]struct{}
	breaker   *circuitbreaker.CircuitBreaker
	clock     clock.Clock
	logger    *slog.Logger
	sink      metrics.Sink

	// mutex guards states. It is never held across an upstream call.
	mutex  sync.Mutex
	states map[string]*MethodState
}

func New(opts Options) *Proxy {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = circuitbreaker.New(nil, clk)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sink := opts.Sink
	if sink == nil {
		sink = metrics.Discard
	}

	names := opts.Methods
	if len(names) == 0 {
		names = upstream.Methods
	}
	methods := make(map[string]struct{}, len(names))
	for _, m := range names {
		methods[m] = struct{}{}
	}

	return &Proxy{
		fetcher:   opts.Fetcher,
		policy:    opts.Policy.clone(),
		allowList: opts.AllowList,
		methods:   methods,
		breaker:   breaker,
		clock:     clk,
		logger:    logger,
		sink:      sink,
		states:    make(map[string]*MethodState),
	}
}

// NormalizeMethod trims and lowercases a method name.
func NormalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

// Supports reports whether method (already normalized) is forwarded upstream.
func (p *Proxy) Supports(method string) bool {
	_, ok := p.methods[method]
	return ok
}

// Handle answers one proxy request. It always returns an envelope.
func (p *Proxy) Handle(ctx context.Context, method, origin string) Envelope {
	header := p.responseHeader(origin)

	if p.fetcher == nil || !p.fetcher.HasAPIKey() {
		p.logger.Error("API key not defined")
		return apiKeyMissing(header)
	}

	method = NormalizeMethod(method)
	if !p.Supports(method) {
		p.logger.Warn("Method missing or not supported", slog.String("method", method))
		p.sink.Emit(metrics.MetricEvent{Type: metrics.EventResponseServed, Method: method, Tier: metrics.TierRejected})
		return methodError(method, header)
	}

	p.sink.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived, Method: method})

	if !p.reserve(method) {
		p.logger.Debug("Too early for upstream call, using cached data", slog.String("method", method))
		p.sink.Emit(metrics.MetricEvent{Type: metrics.EventThrottled, Method: method})
		return p.fallback(method, header)
	}

	res := p.fetcher.Fetch(ctx, method)
	p.sink.Emit(metrics.MetricEvent{
		Type:       metrics.EventFetchCompleted,
		Method:     method,
		Outcome:    res.Kind.String(),
		Duration:   res.Duration,
		StatusCode: res.Status,
	})

	if res.OK() {
		p.logger.Debug("Upstream fetch OK",
			slog.String("method", method),
			slog.Int("status", res.Status),
			slog.Duration("duration", res.Duration))
		return p.success(method, res.Payload, header)
	}

	switch res.Kind {
	case upstream.KindUpstreamError:
		p.logger.Error("Upstream returned an error",
			slog.String("method", method),
			slog.String("url", res.URL),
			slog.Int("status", res.Status),
			slog.String("status_text", res.StatusText),
			slog.Int("code", res.Code),
			slog.String("message", res.Message))
		if p.breaker.RecordError(res.Code, res.Message) {
			p.logger.Warn("Going into hibernate mode",
				slog.Int("code", res.Code),
				slog.String("message", res.Message),
				slog.Duration("cooldown", p.policy.Hibernate))
			p.sink.Emit(metrics.MetricEvent{Type: metrics.EventHibernateChanged, Hibernating: true})
		}
		return p.fail(method, header)

	case upstream.KindTransportFailure, upstream.KindMalformed:
		p.logger.Error("Upstream fetch failed",
			slog.String("method", method),
			slog.String("url", res.URL),
			slog.String("kind", res.Kind.String()),
			slog.Int("status", res.Status),
			slog.Any("err", res.Err))
		return p.fail(method, header)

	default:
		p.logger.Error("Upstream fetch FAILED",
			slog.String("method", method),
			slog.String("url", res.URL),
			slog.String("kind", res.Kind.String()),
			slog.Int("status", res.Status),
			slog.String("status_text", res.StatusText),
			slog.Int("code", res.Code))
		return p.fail(method, header)
	}
}

// reserve checks the method window and, when open, moves it forward by the ok
// window before the upstream call is made. Returns false inside the window.
// While hibernating no method opens before the hibernate cooldown, counted from
// the latest fatal error, has passed.
func (p *Proxy) reserve(method string) bool {
	now := p.clock.Now()
	hibernateUntil, hibernating := p.hibernateUntil()

	p.mutex.Lock()
	defer p.mutex.Unlock()

	st := p.state(method)
	if hibernating && st.NextAllowed.Before(hibernateUntil) {
		st.NextAllowed = hibernateUntil
	}
	if !now.After(st.NextAllowed) {
		return false
	}

	st.NextAllowed = p.deadlines(method, now).OK
	return true
}

func (p *Proxy) success(method, payload string, header http.Header) Envelope {
	if p.breaker.RecordSuccess() {
		p.logger.Info("Leaving hibernate mode, upstream works again")
		p.sink.Emit(metrics.MetricEvent{Type: metrics.EventHibernateChanged, Hibernating: false})
	}

	now := p.clock.Now()
	deadlines := p.deadlines(method, now)

	p.mutex.Lock()
	st := p.state(method)
	changed := st.OKResponse != payload
	if changed {
		st.OKResponse = payload
		st.OKTime = now
	}
	st.NextAllowed = deadlines.OK
	p.mutex.Unlock()

	if changed {
		p.logger.Debug("Updating the cached payload", slog.String("method", method))
	} else {
		p.logger.Debug("Skip updating cached payload, no change in data", slog.String("method", method))
	}
	p.sink.Emit(metrics.MetricEvent{Type: metrics.EventCacheUpdated, Method: method, Changed: changed})
	p.sink.Emit(metrics.MetricEvent{Type: metrics.EventResponseServed, Method: method, Tier: metrics.TierFresh, StatusCode: http.StatusOK})

	return Envelope{
		Body:       payload,
		Status:     http.StatusOK,
		StatusText: StatusTextOK,
		Header:     header,
	}
}

func (p *Proxy) fail(method string, header http.Header) Envelope {
	now := p.clock.Now()
	deadlines := p.deadlines(method, now)

	p.mutex.Lock()
	st := p.state(method)
	st.FailTime = now
	if st.OKResponse != "" {
		st.NextAllowed = deadlines.FailedWithFallback
	} else {
		st.NextAllowed = deadlines.FailedWithoutFallback
	}
	p.mutex.Unlock()

	return p.fallback(method, header)
}

func (p *Proxy) fallback(method string, header http.Header) Envelope {
	p.mutex.Lock()
	payload := p.state(method).OKResponse
	p.mutex.Unlock()

	if payload == "" {
		p.sink.Emit(metrics.MetricEvent{Type: metrics.EventResponseServed, Method: method, Tier: metrics.TierNotReady, StatusCode: http.StatusTooEarly})
		return notReady(header)
	}

	p.sink.Emit(metrics.MetricEvent{Type: metrics.EventResponseServed, Method: method, Tier: metrics.TierFallback, StatusCode: http.StatusOK})
	return Envelope{
		Body:       payload,
		Status:     http.StatusOK,
		StatusText: StatusTextCached,
		Header:     header,
	}
}

func (p *Proxy) hibernateUntil() (time.Time, bool) {
	from, hibernating := p.breaker.CooldownFrom()
	if !hibernating {
		return time.Time{}, false
	}
	return from.Add(p.policy.Hibernate), true
}

func (p *Proxy) deadlines(method string, now time.Time) Deadlines {
	d, known := p.policy.deadlines(method, now, p.breaker.Hibernating())
	if !known {
		p.logger.Error("Unknown method, no wait policy", slog.String("method", method))
	}
	return d
}

func (p *Proxy) responseHeader(origin string) http.Header {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	if origin != "" && p.allowList.Allowed(origin) {
		header.Set("Access-Control-Allow-Origin", origin)
		header.Set("Vary", "Origin")
	}

	return header
}
