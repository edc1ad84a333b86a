// Package healthcheck reports the state of the proxy: whether it is
// hibernating and what each method has cached.
package healthcheck
