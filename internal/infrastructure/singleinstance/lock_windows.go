//go:build windows

package singleinstance

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/windows"
)

// FileLock is a Lock backed by LockFileEx on a lock file
type FileLock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewLock returns the platform lock at path
func NewLock(path string) Lock {
	return &FileLock{path: path}
}

// TryAcquire takes an exclusive, fail-immediately lock and writes our PID
func (l *FileLock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return true, nil
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return false, fmt.Errorf("open lock file: %w", err)
	}

	handle := windows.Handle(file.Fd())
	overlapped := &windows.Overlapped{}
	err = windows.LockFileEx(handle, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, overlapped)
	if err != nil {
		file.Close()
		if errors.Is(err, windows.ERROR_LOCK_VIOLATION) {
			return false, nil
		}
		return false, fmt.Errorf("LockFileEx: %w", err)
	}

	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	fmt.Fprintf(file, "%d\n", os.Getpid())
	_ = file.Sync()

	l.file = file
	return true, nil
}

// Release unlocks and closes the lock file. Releasing twice is a no-op.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}

	handle := windows.Handle(l.file.Fd())
	err := windows.UnlockFileEx(handle, 0, 1, 0, &windows.Overlapped{})
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(err, closeErr)
}
