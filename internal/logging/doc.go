// Package logging wraps log/slog with the console and JSON handlers used by
// the daemon and CLI, plus the standardized field names and context helpers
// shared across components.
package logging
