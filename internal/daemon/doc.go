// Package daemon coordinates the long-running clipforge process.
//
// It wraps a pipeline.Pipeline in a single lifecycle guarded by a flock-based
// lock so only one daemon drains a data directory. On start it clears stale
// scratch files and purges old finished jobs, then starts the dispatcher and
// the operations HTTP server (metrics, health and queue listings). Finished
// jobs are purged again every hour while the daemon runs.
//
// Keep orchestration logic here: stage behavior lives in the stage packages
// while the daemon focuses on startup, shutdown and housekeeping.
package daemon
