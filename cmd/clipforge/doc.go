// Package main hosts the clipforge CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon, registers recordings and clip
// requests, and inspects the catalog and job queues. Commands that only add
// work open the shared SQLite database directly and enqueue jobs; the daemon
// polls the queues and picks them up.
package main
