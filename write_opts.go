package dbpf

import "log/slog"

// writeConfig holds settings shared by Write and ProcessPackage.
type writeConfig struct {
	workers int
	logger  *slog.Logger
}

// WriteOption configures a write pass.
type WriteOption func(*writeConfig)

// WithWorkers sets the number of workers transforming entries in
// parallel. Values < 0 force serial processing. Zero uses GOMAXPROCS.
func WithWorkers(n int) WriteOption {
	return func(c *writeConfig) {
		c.workers = n
	}
}

// WithLogger sets the logger for write diagnostics.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) WriteOption {
	return func(c *writeConfig) {
		c.logger = logger
	}
}
