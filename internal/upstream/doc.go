// Package upstream is the HTTP client for the Last.fm web API. It builds
// request URLs from fixed configuration only, issues the call and classifies
// the outcome into a single tagged Result.
package upstream
