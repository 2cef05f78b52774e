package filesystem

import (
	"errors"
	"os"
)

// ErrLockHeld is returned by TryLock when another process holds the lock.
var ErrLockHeld = errors.New("lock held by another process")

// LockFile is an advisory, exclusive, non-blocking lock backed by a file.
// It serializes writers across processes; in-process callers still need
// their own mutex because some platforms grant flock per open file.
type LockFile struct {
	path string
	f    *os.File
}

// OpenLockFile opens (creating if needed) the lock file at path.
func OpenLockFile(path string) (*LockFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return &LockFile{path: path, f: f}, nil
}

// Path returns the lock file location.
func (l *LockFile) Path() string {
	return l.path
}

// TryLock acquires the lock without blocking. It returns ErrLockHeld when
// the lock is contended.
func (l *LockFile) TryLock() error {
	return tryLock(l.f)
}

// Unlock releases the lock.
func (l *LockFile) Unlock() error {
	return unlock(l.f)
}

// Close releases the underlying file handle (and with it any lock held).
func (l *LockFile) Close() error {
	return l.f.Close()
}
