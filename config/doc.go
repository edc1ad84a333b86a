// Package config loads the proxy configuration from config.yaml and the
// environment, including the variable names of older deployments, and
// converts it into the settings the upstream client and proxy cache take.
package config
