package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// FolderLock serializes daemons over one folder's state directory. Two
// processes watching the same folder would race on history.jsonl and double
// process drops, so each holds an exclusive flock for its lifetime.
type FolderLock struct {
	path string
	file *os.File
}

// NewFolderLock creates a lock over the given state directory. The lock file
// lives inside the directory itself.
func NewFolderLock(stateDir string) *FolderLock {
	return &FolderLock{path: filepath.Join(stateDir, ".lock")}
}

// Lock acquires the exclusive lock, polling until it is obtained or ctx is
// cancelled.
func (l *FolderLock) Lock(ctx context.Context) (retErr error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("opening lock file: %w", err)
	}
	l.file = f
	defer func() {
		if retErr != nil {
			_ = f.Close()
			l.file = nil
		}
	}()

	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return nil
		}
		// EWOULDBLOCK means another process holds it; anything else is
		// unrecoverable.
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return fmt.Errorf("flock: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// TryLock acquires the lock without waiting. It returns false if another
// process holds it.
func (l *FolderLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("creating lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false, fmt.Errorf("opening lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return false, nil
		}
		return false, fmt.Errorf("flock: %w", err)
	}
	l.file = f
	return true, nil
}

// Unlock releases the lock and closes the underlying file.
func (l *FolderLock) Unlock() {
	if l.file == nil {
		return
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}
