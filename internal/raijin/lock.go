package raijin

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// WorkLock marks a working directory as owned by one running pipeline.
// The flock is held for the lifetime of the run; a second invocation against
// the same directory fails fast instead of interleaving writes.
type WorkLock struct {
	file *os.File
	path string
}

// acquireWorkLock creates the working directory if needed and takes an
// exclusive non-blocking flock on its .lock marker.
func acquireWorkLock(workDir string) (*WorkLock, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create working directory %s: %w", workDir, err)
	}
	lockPath := filepath.Join(workDir, ".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock marker %s: %w", lockPath, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrWorkdirBusy, workDir)
	}
	return &WorkLock{file: f, path: lockPath}, nil
}

// Release drops the flock. The marker file stays behind; it is inert once
// unlocked and keeping it avoids an unlink/open race with a concurrent run.
func (l *WorkLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}

// resetWorkDir removes everything under the working directory except the held
// lock marker, so every run starts from a clean tree. A leftover tree from an
// interrupted run is deliberately preserved until the next run claims the
// directory.
func resetWorkDir(workDir string) error {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return fmt.Errorf("failed to read working directory %s: %w", workDir, err)
	}
	for _, entry := range entries {
		if entry.Name() == ".lock" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(workDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to clear %s: %w", filepath.Join(workDir, entry.Name()), err)
		}
	}
	return nil
}
