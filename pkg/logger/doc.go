// Package logger builds the process-wide slog logger. Production uses the
// JSON handler; every other environment gets the human readable text handler.
package logger
