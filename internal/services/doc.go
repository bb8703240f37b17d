// Package services defines shared utilities consumed by the dispatcher and the
// pipeline stage handlers.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, queue and stage names, payload IDs,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and the classification
//     functions the dispatcher uses to decide between retrying and abandoning.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
