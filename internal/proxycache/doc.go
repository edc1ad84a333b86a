// Package proxycache is the stale-tolerant caching front for the upstream API.
//
// Every supported method has its own throttle window. A request inside the
// window never reaches the upstream and is answered from the last successful
// payload. Outside the window the proxy reserves the next window before it
// calls the upstream, so a burst of requests results in a single call.
//
// Responses degrade through three tiers:
//
//   - fresh: the upstream answered, payload returned with 200
//   - fallback: the last good payload, 200 with a "cached" status text
//   - not ready: no payload yet, 425 with a structured error body
//
// Fatal upstream errors put the whole proxy into hibernation, where every
// window collapses to one long cooldown until the next success.
package proxycache
