// Package encoding owns the x264 argument vectors and the size-driven
// compression ladder.
//
// The ladder exists because finished videos must fit under the attachment
// store's per-object limit. The quality factor of the caption burn is chosen
// from the source size; an output that still lands above EmergencyTrigger is
// re-encoded once more aggressively, and anything above EmergencyReject after
// that pass, or above AttachCeiling at attach time, fails with a size
// constraint error rather than being uploaded.
//
// Argument builders return plain argv slices. Nothing here invokes a shell.
package encoding
