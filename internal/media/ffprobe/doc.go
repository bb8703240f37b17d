// Package ffprobe inspects media files with ffprobe's JSON output.
//
// Prober runs ffprobe through a procexec.Runner so probes share the timeout
// and process-group handling of every other external tool. Duration falls
// back to the longest stream when the container omits its own duration, which
// happens with some screen-capture uploads.
package ffprobe
