package circuitbreaker

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type State int

const (
	StateAwake       State = iota // Per-method windows apply
	StateHibernating              // Long global cooldown
)

// DefaultFatalCodes are the upstream error codes that put the proxy to sleep:
// 26 (suspended API key) and 29 (rate limit exceeded).
var DefaultFatalCodes = []int{26, 29}

// Stats is a point-in-time view of the breaker.
type Stats struct {
	State       State     `json:"-"`
	StateName   string    `json:"state"`
	Since       time.Time `json:"since"`
	LastFatal   time.Time `json:"last_fatal,omitempty"`
	Trips       int       `json:"trips"`
	LastCode    int       `json:"last_code,omitempty"`
	LastMessage string    `json:"last_message,omitempty"`
}

type CircuitBreaker struct {
	mutex       sync.Mutex
	state       State
	since       time.Time
	lastFatal   time.Time
	trips       int
	lastCode    int
	lastMessage string
	fatalCodes  map[int]struct{}
	clock       clock.Clock
}

func New(fatalCodes []int, clk clock.Clock) *CircuitBreaker {
	if clk == nil {
		clk = clock.New()
	}
	if len(fatalCodes) == 0 {
		fatalCodes = DefaultFatalCodes
	}

	codes := make(map[int]struct{}, len(fatalCodes))
	for _, code := range fatalCodes {
		codes[code] = struct{}{}
	}

	return &CircuitBreaker{
		state:      StateAwake,
		since:      clk.Now(),
		fatalCodes: codes,
		clock:      clk,
	}
}

// IsFatal reports whether an upstream error code trips the breaker.
func (cb *CircuitBreaker) IsFatal(code int) bool {
	_, ok := cb.fatalCodes[code]
	return ok
}

// RecordError records a structured upstream error. Fatal codes move the breaker
// into hibernation; the return value is true only on that transition. A fatal
// code seen while hibernating restarts the cooldown reported by CooldownFrom.
func (cb *CircuitBreaker) RecordError(code int, message string) (tripped bool) {
	if !cb.IsFatal(code) {
		return false
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastCode = code
	cb.lastMessage = message
	cb.lastFatal = cb.clock.Now()

	if cb.state == StateHibernating {
		return false
	}

	cb.state = StateHibernating
	cb.since = cb.lastFatal
	cb.trips++
	return true
}

// RecordSuccess wakes the breaker. Returns true if it was hibernating.
func (cb *CircuitBreaker) RecordSuccess() (recovered bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateAwake {
		return false
	}

	cb.state = StateAwake
	cb.since = cb.clock.Now()
	return true
}

func (cb *CircuitBreaker) Hibernating() bool {
	return cb.State() == StateHibernating
}

// CooldownFrom returns the time of the latest fatal error, if hibernating.
// The hibernate cooldown counts from there.
func (cb *CircuitBreaker) CooldownFrom() (time.Time, bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state != StateHibernating {
		return time.Time{}, false
	}
	return cb.lastFatal, true
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return Stats{
		State:       cb.state,
		StateName:   cb.state.String(),
		Since:       cb.since,
		LastFatal:   cb.lastFatal,
		Trips:       cb.trips,
		LastCode:    cb.lastCode,
		LastMessage: cb.lastMessage,
	}
}

func (s State) String() string {
	switch s {
	case StateAwake:
		return "AWAKE"
	case StateHibernating:
		return "HIBERNATING"
	default:
		return "UNKNOWN"
	}
}
