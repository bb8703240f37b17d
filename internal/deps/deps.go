// Package deps reports whether the external tools and files clipforge shells
// out to are present.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines an external binary clipforge relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckFile reports whether a required regular file, such as a recognizer
// model, exists and is non-empty.
func CheckFile(name, path, description string) Status {
	path = strings.TrimSpace(path)
	status := Status{
		Name:        name,
		Command:     path,
		Description: strings.TrimSpace(description),
	}
	if path == "" {
		status.Detail = "path not configured"
		return status
	}
	info, err := os.Stat(path)
	switch {
	case err != nil && os.IsNotExist(err):
		status.Detail = fmt.Sprintf("file %q not found", path)
	case err != nil:
		status.Detail = fmt.Sprintf("stat %q: %v", path, err)
	case info.IsDir():
		status.Detail = fmt.Sprintf("%q is a directory", path)
	case info.Size() == 0:
		status.Detail = fmt.Sprintf("file %q is empty", path)
	default:
		status.Available = true
	}
	return status
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
