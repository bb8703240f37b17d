// Package procexec runs external tools (ffmpeg, ffprobe, whisper-cli) with
// wall-clock ceilings.
//
// Every child is started in its own process group. When the ceiling expires
// or the caller's context is cancelled the whole group receives SIGKILL, so
// helpers forked by the tool die with it, and WaitDelay bounds how long Run
// waits for inherited pipes to drain afterwards. Only the tail of stdout and
// stderr is kept: multi-hour encodes log far more than is useful in an error.
package procexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"clipforge/internal/logging"
	"clipforge/internal/services"
)

const (
	// TailBytes is the amount of stdout/stderr retained per stream.
	TailBytes = 64 << 10

	defaultWaitDelay = 5 * time.Second
	stderrExcerpt    = 2048
)

// Command describes one external process invocation. Args are passed as an
// argument vector; no shell is involved.
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
	Dir     string
	// Stage labels errors and log lines.
	Stage string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result captures the outcome of a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger    *slog.Logger
	WaitDelay time.Duration
}

// NewRunner returns an ExecRunner logging through logger.
func NewRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{Logger: logging.NewComponentLogger(logger, "procexec"), WaitDelay: defaultWaitDelay}
}

// Run starts cmd and waits for it. A process that outlives cmd.Timeout
// returns an error marked services.ErrTimeout; a non-zero exit returns
// services.ErrExternalTool carrying the stderr tail. Cancellation of ctx
// itself is returned as ctx.Err().
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	stage := cmd.Stage
	if stage == "" {
		stage = "procexec"
	}
	if strings.TrimSpace(cmd.Name) == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, stage, "run", "command name is empty", nil)
	}

	runCtx := ctx
	cancel := func() {}
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
	}
	defer cancel()

	stdout := newTailBuffer(TailBytes)
	stderr := newTailBuffer(TailBytes)

	c := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = stdout
	c.Stderr = stderr
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		if err := unix.Kill(-c.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return c.Process.Kill()
		}
		return nil
	}
	waitDelay := r.WaitDelay
	if waitDelay <= 0 {
		waitDelay = defaultWaitDelay
	}
	c.WaitDelay = waitDelay

	logger := logging.WithContext(ctx, r.Logger)
	logger.Debug("starting external process",
		logging.String("command", cmd.String()),
		logging.Duration("timeout", cmd.Timeout),
	)

	started := time.Now()
	runErr := c.Run()
	result := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(c.ProcessState),
		Duration: time.Since(started),
	}

	if runErr == nil {
		logger.Debug("external process finished",
			logging.String("binary", cmd.Name),
			logging.Duration("duration", result.Duration),
		)
		return result, nil
	}

	// The parent context takes precedence: shutdown is not a tool failure.
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logging.WarnWithContext(logger, "external process timed out", "process_timeout",
			logging.String("binary", cmd.Name),
			logging.Duration("timeout", cmd.Timeout),
			logging.String(logging.FieldErrorHint, "raise the matching [timeouts] value if the input is legitimately long"),
			logging.String(logging.FieldImpact, "stage attempt abandoned; dispatcher may retry"),
		)
		return result, services.Wrap(services.ErrTimeout, stage, cmd.Name,
			fmt.Sprintf("exceeded %s", cmd.Timeout), nil)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return result, services.Wrap(services.ErrExternalTool, stage, cmd.Name,
			fmt.Sprintf("exit status %d: %s", result.ExitCode, excerpt(result.Stderr)), nil)
	}
	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) {
		return result, services.Wrap(services.ErrConfiguration, stage, cmd.Name, "binary not found", runErr)
	}
	return result, services.Wrap(services.ErrExternalTool, stage, cmd.Name, "run failed", runErr)
}

// VerifyOutput checks that a tool produced path with at least minBytes. Tools
// occasionally exit 0 after writing nothing useful.
func VerifyOutput(stage, path string, minBytes int64) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, stage, "verify output", "output file missing: "+path, err)
	}
	if info.IsDir() {
		return 0, services.Wrap(services.ErrExternalTool, stage, "verify output", "output is a directory: "+path, nil)
	}
	if info.Size() < minBytes {
		return info.Size(), services.Wrap(services.ErrExternalTool, stage, "verify output",
			fmt.Sprintf("output %s is %d bytes, expected at least %d", path, info.Size(), minBytes), nil)
	}
	return info.Size(), nil
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

func excerpt(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if len(text) > stderrExcerpt {
		text = "..." + text[len(text)-stderrExcerpt:]
	}
	if text == "" {
		return "no stderr output"
	}
	return text
}
