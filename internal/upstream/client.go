package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	MethodUserGetInfo         = "user.getinfo"
	MethodUserGetRecentTracks = "user.getrecenttracks"
)

const (
	DefaultBaseURL   = "https://ws.audioscrobbler.com/2.0"
	DefaultUser      = "rockland"
	DefaultUserAgent = "scrobbler-proxy (+https://github.com/angeloszaimis/scrobbler-proxy)"
)

const ewmaAlpha = 0.2

// Methods lists the upstream methods the proxy forwards.
var Methods = []string{MethodUserGetInfo, MethodUserGetRecentTracks}

type Config struct {
	BaseURL     string
	APIKey      string
	User        string
	TracksLimit string
	UserAgent   string
	// Timeout bounds a single upstream call. Zero means no timeout.
	Timeout time.Duration
}

// Client calls the upstream API for the single configured user.
type Client struct {
	baseURL     *url.URL
	apiKey      string
	user        string
	tracksLimit string
	userAgent   string
	httpClient  *http.Client

	mutex            sync.Mutex
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

// New creates a Client. An empty API key is accepted so the proxy can report
// the missing key per request instead of failing at startup.
func New(cfg Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream base url %q: scheme must be http or https", base)
	}

	user := cfg.User
	if user == "" {
		user = DefaultUser
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		baseURL:     u,
		apiKey:      cfg.APIKey,
		user:        user,
		tracksLimit: cfg.TracksLimit,
		userAgent:   userAgent,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// HasAPIKey reports whether an API key is configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

// URL builds the request URL for method. Only configured values are used.
func (c *Client) URL(method string) *url.URL {
	q := url.Values{}
	q.Add("method", method)
	q.Add("user", c.user)
	q.Add("api_key", c.apiKey)
	q.Add("format", "json")

	if method == MethodUserGetRecentTracks {
		if c.tracksLimit != "" {
			q.Add("limit", c.tracksLimit)
		}
		q.Add("extended", "1")
	}

	u := *c.baseURL
	u.RawQuery = q.Encode()
	return &u
}

// Redact returns u as a string with the API key masked, for logging.
func Redact(u *url.URL) string {
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "***")
	}
	redacted := *u
	redacted.RawQuery = q.Encode()
	return redacted.String()
}

// Fetch performs one upstream call. It never retries.
func (c *Client) Fetch(ctx context.Context, method string) Result {
	u := c.URL(method)
	res := c.fetch(ctx, u)
	res.URL = Redact(u)
	return res
}

func (c *Client) fetch(ctx context.Context, u *url.URL) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{Kind: KindTransportFailure, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Kind: KindTransportFailure, Err: err, Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	c.RecordResponse(duration)

	statusText := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if err != nil {
		return Result{
			Kind:       KindTransportFailure,
			Status:     resp.StatusCode,
			StatusText: statusText,
			Err:        errors.Join(errors.New("read upstream body"), err),
			Duration:   duration,
		}
	}

	res := Classify(resp.StatusCode, statusText, body)
	res.Duration = duration
	return res
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest call duration.
func (c *Client) RecordResponse(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.hasEWMA {
		c.ewmaResponseTime = duration
		c.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	c.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(c.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the smoothed upstream response time, 0 before the first call.
func (c *Client) EWMATime() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.hasEWMA {
		return 0
	}

	return c.ewmaResponseTime
}
