package preflight

import (
	"context"

	"clipforge/internal/config"
	"clipforge/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Attachments directory", cfg.Paths.AttachmentsDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if minFree := config.GiB(cfg.Workspace.MinFreeGiB); minFree > 0 {
		results = append(results, CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, minFree))
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, FromDependency(status))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// FromDependency converts a dependency status into a preflight result.
// Optional dependencies always pass.
func FromDependency(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available || status.Optional}
	switch {
	case status.Available:
		result.Detail = status.Command
	case status.Detail != "":
		result.Detail = status.Detail
	default:
		result.Detail = "unavailable"
	}
	return result
}
