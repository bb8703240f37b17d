// Package logging assembles structured slog loggers and formatting helpers used
// across clipforge.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context-aware helpers so dispatcher and stage code automatically tag
// log lines with job IDs, queues, stages, and correlation IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
