// Package circuitbreaker implements the global hibernate breaker that guards
// the upstream API.
//
// The breaker has two states:
//
//   - AWAKE: Normal operation, per-method throttle windows apply
//   - HIBERNATING: A fatal upstream error was seen, every method backs off hard
//
// Only designated fatal error codes (rate limited, service unavailable) trip the
// breaker. The next successful upstream call closes it again.
//
// Usage:
//
//	cb := circuitbreaker.New([]int{26, 29}, clock.New())
//	if cb.RecordError(code, message) {
//	    // just entered hibernation
//	}
//	if cb.RecordSuccess() {
//	    // just woke up
//	}
package circuitbreaker
