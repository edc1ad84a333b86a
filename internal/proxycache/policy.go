package proxycache

import (
	"time"

	"github.com/angeloszaimis/scrobbler-proxy/internal/upstream"
)

// DefaultHibernateWindow is the cooldown applied to every method while
// hibernating or for a method without configured windows.
const DefaultHibernateWindow = time.Hour

// Windows are the cooldowns applied after an upstream call.
type Windows struct {
	OK                    time.Duration
	FailedWithFallback    time.Duration
	FailedWithoutFallback time.Duration
}

// Deadlines are Windows resolved against a point in time.
type Deadlines struct {
	OK                    time.Time
	FailedWithFallback    time.Time
	FailedWithoutFallback time.Time
}

// WaitPolicy maps method names to their cooldowns. It is fixed at startup.
type WaitPolicy struct {
	Methods   map[string]Windows
	Hibernate time.Duration
}

func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{
		Methods: map[string]Windows{
			upstream.MethodUserGetInfo: {
				OK:                    3600 * time.Second,
				FailedWithFallback:    1800 * time.Second,
				FailedWithoutFallback: 60 * time.Second,
			},
			upstream.MethodUserGetRecentTracks: {
				OK:                    30 * time.Second,
				FailedWithFallback:    120 * time.Second,
				FailedWithoutFallback: 60 * time.Second,
			},
		},
		Hibernate: DefaultHibernateWindow,
	}
}

func (p WaitPolicy) clone() WaitPolicy {
	methods := make(map[string]Windows, len(p.Methods))
	for method, w := range p.Methods {
		methods[method] = w
	}

	hibernate := p.Hibernate
	if hibernate <= 0 {
		hibernate = DefaultHibernateWindow
	}

	return WaitPolicy{Methods: methods, Hibernate: hibernate}
}

// deadlines resolves the windows for method at now. The second return value is
// false when the method has no configured windows.
func (p WaitPolicy) deadlines(method string, now time.Time, hibernating bool) (Deadlines, bool) {
	w, known := p.Methods[method]
	if hibernating || !known {
		until := now.Add(p.Hibernate)
		return Deadlines{
			OK:                    until,
			FailedWithFallback:    until,
			FailedWithoutFallback: until,
		}, known
	}

	return Deadlines{
		OK:                    now.Add(w.OK),
		FailedWithFallback:    now.Add(w.FailedWithFallback),
		FailedWithoutFallback: now.Add(w.FailedWithoutFallback),
	}, true
}
