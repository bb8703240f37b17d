package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"clipforge/internal/config"
	"clipforge/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minBytes available to unprivileged users.
func CheckFreeSpace(name, path string, minBytes int64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	if minBytes > 0 && free < uint64(minBytes) {
		return Result{Name: name, Detail: fmt.Sprintf("%s free, want at least %s", humanize.IBytes(free), humanize.IBytes(uint64(minBytes)))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s free", humanize.IBytes(free))}
}

// CheckSystemDeps evaluates the external binaries and the recognizer model.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Transcoder.FFmpegBinary,
			Description: "Required for audio extraction, subtitle burn-in and clips",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Transcoder.FFprobeBinary,
			Description: "Required for duration probing",
		},
		{
			Name:        "whisper.cpp",
			Command:     cfg.Recognizer.Binary,
			Description: "Required for transcription",
		},
	}
	statuses := deps.CheckBinaries(requirements)
	statuses = append(statuses, deps.CheckFile("Recognizer model", cfg.Recognizer.ModelPath, "ggml model passed to whisper.cpp"))
	return statuses
}
