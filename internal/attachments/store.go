// Package attachments stores video blobs outside the scratch workspace.
//
// Blobs are addressed by random keys and sharded into two-character
// subdirectories. Writes land in a .partial file that is verified by size and
// SHA-256 before being renamed into place, so a reader never observes a
// half-written blob.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"clipforge/internal/fileutil"
	"clipforge/internal/services"
)

// Blob describes one stored attachment.
type Blob struct {
	Key         string
	Filename    string
	ContentType string
	Size        int64
}

// IsZero reports whether b refers to no stored content.
func (b Blob) IsZero() bool {
	return strings.TrimSpace(b.Key) == ""
}

// Store is a filesystem-backed blob store.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir, creating it when missing.
func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "attachments", "open", "attachments directory is empty", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachments directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Put copies src into the store under a fresh key.
func (s *Store) Put(ctx context.Context, src, filename, contentType string) (Blob, error) {
	key := uuid.NewString()
	target := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Blob{}, fmt.Errorf("create shard directory: %w", err)
	}

	partial := target + ".partial"
	size, err := fileutil.CopyFileVerified(ctx, src, partial)
	if err != nil {
		_ = os.Remove(partial)
		return Blob{}, services.Wrap(services.ErrTransient, "attachments", "put", filepath.Base(src), err)
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return Blob{}, fmt.Errorf("commit attachment: %w", err)
	}

	if filename == "" {
		filename = filepath.Base(src)
	}
	return Blob{Key: key, Filename: filename, ContentType: contentType, Size: size}, nil
}

// Adopt moves src into the store under a fresh key. src no longer exists on
// success.
func (s *Store) Adopt(ctx context.Context, src, filename, contentType string) (Blob, error) {
	size, err := fileutil.Size(src)
	if err != nil {
		return Blob{}, services.Wrap(services.ErrNotFound, "attachments", "adopt", filepath.Base(src), err)
	}
	key := uuid.NewString()
	target := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Blob{}, fmt.Errorf("create shard directory: %w", err)
	}
	partial := target + ".partial"
	if err := fileutil.MoveFile(ctx, src, partial); err != nil {
		_ = os.Remove(partial)
		return Blob{}, services.Wrap(services.ErrTransient, "attachments", "adopt", filepath.Base(src), err)
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return Blob{}, fmt.Errorf("commit attachment: %w", err)
	}
	if filename == "" {
		filename = filepath.Base(src)
	}
	return Blob{Key: key, Filename: filename, ContentType: contentType, Size: size}, nil
}

// Path resolves the on-disk location of key.
func (s *Store) Path(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.root, shard, key)
}

// Fetch copies the blob for key to dst.
func (s *Store) Fetch(ctx context.Context, key, dst string) (int64, error) {
	src := s.Path(key)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, services.Wrap(services.ErrNotFound, "attachments", "fetch", "blob "+key, nil)
		}
		return 0, fmt.Errorf("stat attachment: %w", err)
	}
	size, err := fileutil.CopyFileVerified(ctx, src, dst)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "attachments", "fetch", "blob "+key, err)
	}
	return size, nil
}

// Delete removes the blob for key. Missing blobs are not an error.
func (s *Store) Delete(key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete attachment %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key has stored content.
func (s *Store) Exists(key string) bool {
	info, err := os.Stat(s.Path(key))
	return err == nil && !info.IsDir()
}
