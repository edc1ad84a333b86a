// Package handler adapts the proxy cache to HTTP. It reads the method query
// parameter and the Origin header, nothing else, and writes the envelope the
// proxy returns.
package handler
