// Package config loads, normalizes, and validates clipforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon, the pipeline stages, and the CLI need: storage locations, external
// binaries, encoder tuning, stage timeouts, and dispatcher limits.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, positive limits, and clear validation errors.
package config
