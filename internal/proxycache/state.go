package proxycache

import (
	"time"

	"github.com/angeloszaimis/scrobbler-proxy/internal/circuitbreaker"
)

// MethodState is the cached outcome and throttle window of one method.
type MethodState struct {
	OKResponse  string
	OKTime      time.Time
	FailTime    time.Time
	NextAllowed time.Time
}

// MethodStatus is the exported view of a MethodState.
type MethodStatus struct {
	HasFallback  bool      `json:"has_fallback"`
	PayloadBytes int       `json:"payload_bytes"`
	OKTime       time.Time `json:"ok_time,omitempty"`
	FailTime     time.Time `json:"fail_time,omitempty"`
	NextAllowed  time.Time `json:"next_allowed,omitempty"`
}

type Status struct {
	Hibernating bool                    `json:"hibernating"`
	Breaker     circuitbreaker.Stats    `json:"breaker"`
	Methods     map[string]MethodStatus `json:"methods"`
}

// state returns the entry for method, creating it on first use. Callers hold p.mutex.
func (p *Proxy) state(method string) *MethodState {
	st, ok := p.states[method]
	if !ok {
		st = &MethodState{}
		p.states[method] = st
	}
	return st
}

// MethodState returns a copy of the state for method.
func (p *Proxy) MethodState(method string) MethodState {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if st, ok := p.states[method]; ok {
		return *st
	}
	return MethodState{}
}

// Snapshot reports the hibernate flag and every supported method.
func (p *Proxy) Snapshot() Status {
	status := Status{
		Hibernating: p.breaker.Hibernating(),
		Breaker:     p.breaker.Stats(),
		Methods:     make(map[string]MethodStatus, len(p.methods)),
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for method := range p.methods {
		var st MethodState
		if s, ok := p.states[method]; ok {
			st = *s
		}
		status.Methods[method] = MethodStatus{
			HasFallback:  st.OKResponse != "",
			PayloadBytes: len(st.OKResponse),
			OKTime:       st.OKTime,
			FailTime:     st.FailTime,
			NextAllowed:  st.NextAllowed,
		}
	}

	return status
}
