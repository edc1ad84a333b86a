package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/scrobbler-proxy/internal/upstream"
)

const maxFetchSamples = 1000

type Metrics struct {
	mutex          sync.RWMutex
	requests       map[string]int64
	throttled      map[string]int64
	fetches        map[string]map[string]int64
	fetchTimes     map[string][]time.Duration
	statusCodes    map[string]map[int]int64
	tiers          map[string]map[string]int64
	cacheUpdates   map[string]int64
	cacheUnchanged map[string]int64
	hibernating    bool
	hibernateSince time.Time
	hibernateTrips int64
	visitors       int64
	fetchOK        int64
	fetchFailed    int64
	startTime      time.Time
}

type Snapshot struct {
	TotalRequests  int64                    `json:"total_requests"`
	FetchOK        int64                    `json:"fetch_ok"`
	FetchFailed    int64                    `json:"fetch_failed"`
	Visitors       int64                    `json:"visitors"`
	Hibernating    bool                     `json:"hibernating"`
	HibernateSince time.Time                `json:"hibernate_since,omitempty"`
	HibernateTrips int64                    `json:"hibernate_trips"`
	Uptime         time.Duration            `json:"uptime"`
	Methods        map[string]MethodMetrics `json:"methods"`
}

type MethodMetrics struct {
	Requests       int64            `json:"requests"`
	Throttled      int64            `json:"throttled"`
	Fetches        map[string]int64 `json:"fetches"`
	Tiers          map[string]int64 `json:"tiers"`
	CacheUpdates   int64            `json:"cache_updates"`
	CacheUnchanged int64            `json:"cache_unchanged"`
	AvgFetch       time.Duration    `json:"avg_fetch"`
	P50Fetch       time.Duration    `json:"p50_fetch"`
	P95Fetch       time.Duration    `json:"p95_fetch"`
	P99Fetch       time.Duration    `json:"p99_fetch"`
	StatusCodes    map[int]int64    `json:"status_codes"`
}

func (m *Metrics) IncrementRequests(method string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[method]++
}

func (m *Metrics) IncrementThrottled(method string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.throttled[method]++
}

func (m *Metrics) RecordFetch(method, outcome string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.fetches[method] == nil {
		m.fetches[method] = make(map[string]int64)
	}
	m.fetches[method][outcome]++

	if outcome == upstream.KindSuccess.String() {
		m.fetchOK++
	} else {
		m.fetchFailed++
	}

	if duration > 0 {
		m.fetchTimes[method] = append(m.fetchTimes[method], duration)
		if len(m.fetchTimes[method]) > maxFetchSamples {
			m.fetchTimes[method] = m.fetchTimes[method][1:]
		}
	}

	if statusCode != 0 {
		if m.statusCodes[method] == nil {
			m.statusCodes[method] = make(map[int]int64)
		}
		m.statusCodes[method][statusCode]++
	}
}

func (m *Metrics) RecordServed(method, tier string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.tiers[method] == nil {
		m.tiers[method] = make(map[string]int64)
	}
	m.tiers[method][tier]++
}

func (m *Metrics) RecordCacheWrite(method string, changed bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if changed {
		m.cacheUpdates[method]++
	} else {
		m.cacheUnchanged[method]++
	}
}

func (m *Metrics) UpdateHibernate(hibernating bool, at time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if hibernating && !m.hibernating {
		m.hibernateTrips++
	}
	m.hibernating = hibernating
	m.hibernateSince = at
}

func (m *Metrics) IncrementVisitors() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.visitors++
}

// FetchTotals returns the number of successful and failed upstream calls.
func (m *Metrics) FetchTotals() (ok, failed int64) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.fetchOK, m.fetchFailed
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		FetchOK:        m.fetchOK,
		FetchFailed:    m.fetchFailed,
		Visitors:       m.visitors,
		Hibernating:    m.hibernating,
		HibernateTrips: m.hibernateTrips,
		Uptime:         time.Since(m.startTime),
		Methods:        make(map[string]MethodMetrics),
	}
	if m.hibernating {
		snap.HibernateSince = m.hibernateSince
	}

	// Collect all methods seen by any counter
	allMethods := make(map[string]bool)
	for method := range m.requests {
		allMethods[method] = true
	}
	for method := range m.fetches {
		allMethods[method] = true
	}
	for method := range m.tiers {
		allMethods[method] = true
	}
	for method := range m.throttled {
		allMethods[method] = true
	}

	for method := range allMethods {
		snap.TotalRequests += m.requests[method]

		mm := MethodMetrics{
			Requests:       m.requests[method],
			Throttled:      m.throttled[method],
			Fetches:        copyCounts(m.fetches[method]),
			Tiers:          copyCounts(m.tiers[method]),
			CacheUpdates:   m.cacheUpdates[method],
			CacheUnchanged: m.cacheUnchanged[method],
			StatusCodes:    copyStatusCodes(m.statusCodes[method]),
		}

		durations := m.fetchTimes[method]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			mm.AvgFetch = average(sorted)
			mm.P50Fetch = percentile(sorted, 0.50)
			mm.P95Fetch = percentile(sorted, 0.95)
			mm.P99Fetch = percentile(sorted, 0.99)
		}

		snap.Methods[method] = mm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:       make(map[string]int64),
		throttled:      make(map[string]int64),
		fetches:        make(map[string]map[string]int64),
		fetchTimes:     make(map[string][]time.Duration),
		statusCodes:    make(map[string]map[int]int64),
		tiers:          make(map[string]map[string]int64),
		cacheUpdates:   make(map[string]int64),
		cacheUnchanged: make(map[string]int64),
		startTime:      time.Now(),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyStatusCodes(src map[int]int64) map[int]int64 {
	dst := make(map[int]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
