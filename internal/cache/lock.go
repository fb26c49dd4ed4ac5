package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
)

// BuildLock serializes corpus builds across processes sharing a cache dir.
type BuildLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewBuildLock creates a lock at <dir>/.build.lock.
func NewBuildLock(dir string) *BuildLock {
	lockPath := filepath.Join(dir, ".build.lock")
	return &BuildLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock blocks until the lock is held or ctx is done.
func (l *BuildLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ok, err := l.flock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return crerrors.New(crerrors.ErrCodeBuildLocked, "failed to acquire build lock", err).
			WithDetail("path", l.path)
	}
	if !ok {
		return crerrors.New(crerrors.ErrCodeBuildLocked, "build lock is held by another process", nil).
			WithDetail("path", l.path)
	}
	l.locked = true
	return nil
}

// TryLock acquires the lock without blocking.
func (l *BuildLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to try lock: %w", err)
	}
	l.locked = ok
	return ok, nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *BuildLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file path.
func (l *BuildLock) Path() string {
	return l.path
}
