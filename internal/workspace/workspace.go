// Package workspace hands out scratch paths for pipeline stages and guarantees
// their removal.
//
// A Scope is opened per job execution. Every path it hands out (or is told to
// Track) is removed by Close, which stages defer immediately after Open so
// cleanup runs on success, failure, timeout and panic alike. Names embed the
// stage, the owning record id, a nanosecond timestamp, the process id and a
// sequence number, so concurrent jobs and concurrent processes never collide.
//
// CleanStale removes leftovers of crashed processes at daemon start.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"clipforge/internal/logging"
	"clipforge/internal/services"
)

var unsafeLabel = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// Manager owns the scratch directory.
type Manager struct {
	root       string
	minFree    uint64
	logger     *slog.Logger
	seq        atomic.Uint64
	statfs     func(path string, buf *unix.Statfs_t) error
	nowNanosFn func() int64
}

// NewManager returns a manager rooted at dir. minFreeBytes of zero disables
// the low-space warning.
func NewManager(dir string, minFreeBytes int64, logger *slog.Logger) (*Manager, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "open", "work directory is empty", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	if minFreeBytes < 0 {
		minFreeBytes = 0
	}
	return &Manager{
		root:       dir,
		minFree:    uint64(minFreeBytes),
		logger:     logging.NewComponentLogger(logger, "workspace"),
		statfs:     unix.Statfs,
		nowNanosFn: func() int64 { return time.Now().UnixNano() },
	}, nil
}

// Root returns the scratch directory.
func (m *Manager) Root() string {
	return m.root
}

// FreeBytes reports the space available to unprivileged users on the scratch
// filesystem.
func (m *Manager) FreeBytes() (uint64, error) {
	var st unix.Statfs_t
	if err := m.statfs(m.root, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", m.root, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// Open starts a scope for one stage execution on ownerID.
func (m *Manager) Open(stage string, ownerID int64) (*Scope, error) {
	stage = sanitizeLabel(stage)
	if stage == "" {
		return nil, services.Wrap(services.ErrValidation, "workspace", "open", "stage name is required", nil)
	}
	if m.minFree > 0 {
		if free, err := m.FreeBytes(); err == nil && free < m.minFree {
			logging.WarnWithContext(m.logger, "scratch space is low", "workspace_low_space",
				logging.String(logging.FieldStage, stage),
				logging.String("free", humanize.IBytes(free)),
				logging.String("threshold", humanize.IBytes(m.minFree)),
				logging.String(logging.FieldErrorHint, "free space in work_dir or lower workspace.min_free_gib"),
				logging.String(logging.FieldImpact, "large transcodes may fail with ENOSPC"),
			)
		}
	}
	return &Scope{manager: m, stage: stage, owner: ownerID}, nil
}

// Scope tracks the scratch paths of one stage execution.
type Scope struct {
	manager *Manager
	stage   string
	owner   int64

	mu     sync.Mutex
	paths  []string
	closed bool
}

// Path returns a fresh scratch path with the given label and extension and
// registers it for removal. The file itself is not created.
func (s *Scope) Path(label, ext string) string {
	label = sanitizeLabel(label)
	if label == "" {
		label = "tmp"
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	m := s.manager
	name := fmt.Sprintf("%s_%d_%s_%d_%d_%d%s",
		s.stage, s.owner, label, m.nowNanosFn(), os.Getpid(), m.seq.Add(1), ext)
	path := filepath.Join(m.root, name)
	s.Track(path)
	return path
}

// Track registers an externally created path (for example a sibling output a
// tool derives from a prefix) for removal on Close.
func (s *Scope) Track(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
}

// Paths returns the registered paths.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Close removes every registered path. Missing paths are ignored; other
// failures are logged and joined into the returned error. Close is idempotent.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	var errs []error
	for _, path := range paths {
		if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			logging.WarnWithContext(s.manager.logger, "failed to remove scratch file", "workspace_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed until stale cleanup"),
			)
		}
	}
	return errors.Join(errs...)
}

// CleanStaleResult contains the outcome of a stale scratch cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes scratch entries older than maxAge. Entries not named by
// a scope are left alone. It is meant to run at daemon start, before any
// scope is opened.
func (m *Manager) CleanStale(ctx context.Context, maxAge time.Duration) CleanStaleResult {
	result := CleanStaleResult{}

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: m.root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		path := filepath.Join(m.root, entry.Name())
		stage, owner, ok := OwnerOf(path)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			m.logger.Warn("failed to remove stale scratch entry",
				logging.String("path", path),
				logging.String("stage", stage),
				logging.Int64("owner_id", owner),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		m.logger.Info("removed stale scratch entry",
			logging.String("path", path),
			logging.String("stage", stage),
			logging.Int64("owner_id", owner),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}
	return result
}

// OwnerOf extracts the stage and owner id from a scratch file name.
func OwnerOf(path string) (string, int64, bool) {
	parts := strings.SplitN(filepath.Base(path), "_", 3)
	if len(parts) < 3 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[0], id, true
}

func sanitizeLabel(value string) string {
	return strings.Trim(unsafeLabel.ReplaceAllString(strings.TrimSpace(value), "-"), "-")
}
