// Package preflight provides readiness checks for the filesystem paths and
// external tools clipforge depends on.
//
// These checks run in two contexts:
//   - The daemon runs them once at startup and logs every failure with a
//     hint before it starts draining queues.
//   - The CLI "clipforge status" command renders the same results as a table.
package preflight
