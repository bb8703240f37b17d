// Package daemonctl controls a clipforge daemon from another process: it
// launches detached daemons, queries the operations server and signals
// shutdown.
package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/daemon"
	"clipforge/internal/daemonrun"
)

// ErrNotRunning reports that no daemon answered.
var ErrNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// Launch starts a detached clipforge daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon", "run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// Client queries a daemon's operations server.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the ops server bound at cfg.Paths.OpsBind.
func NewClient(cfg *config.Config) (*Client, error) {
	bind := strings.TrimSpace(cfg.Paths.OpsBind)
	if bind == "" {
		return nil, errors.New("paths.ops_bind is empty; the daemon exposes no status endpoint")
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return &Client{
		BaseURL: "http://" + bind,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// Status fetches the daemon status. It returns ErrNotRunning when nothing
// listens on the ops address.
func (c *Client) Status(ctx context.Context) (*daemon.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon status: unexpected HTTP %d", resp.StatusCode)
	}
	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode daemon status: %w", err)
	}
	return &status, nil
}

// WaitReady polls the ops server until the daemon reports running.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) (*daemon.Status, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := c.Status(ctx)
		if err == nil && status.Running {
			return status, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// Stop sends SIGTERM to the daemon recorded in the pid file and waits for it
// to exit.
func Stop(cfg *config.Config, timeout time.Duration) error {
	pid := daemonrun.ReadPID(cfg)
	if pid <= 0 {
		return ErrNotRunning
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return ErrNotRunning
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return ErrNotRunning
		}
		return fmt.Errorf("signal daemon %d: %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon %d did not stop within %s", pid, timeout)
}
