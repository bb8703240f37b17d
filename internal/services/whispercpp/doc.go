// Package whispercpp wraps the whisper.cpp command line recognizer.
//
// This package handles:
//   - Audio extraction to the mono 16kHz WAV whisper.cpp expects
//   - whisper-cli invocation with JSON and text output next to a prefix
//   - Locating the JSON output the transcript package parses
//
// Both steps run through a procexec.Runner so they share timeout and
// process-group handling with the rest of the pipeline.
package whispercpp
