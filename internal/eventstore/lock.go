package eventstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrSessionLocked indicates another process is already driving the session.
var ErrSessionLocked = errors.New("session is locked by another process")

// SessionLock is an advisory file lock granting exclusive drive rights over
// one session. Every append path must run under the lock; it is what makes
// the single-driver assumption of the log and dedup engine safe.
type SessionLock struct {
	lock *flock.Flock
	path string
}

// AcquireSessionLock takes the per-session lock without blocking. It returns
// ErrSessionLocked when another driver already holds it.
func AcquireSessionLock(lockDir, sessionID string) (*SessionLock, error) {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(lockDir, sessionID+".lock")
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionLocked, sessionID)
	}
	return &SessionLock{lock: lock, path: path}, nil
}

// Path returns the lock file location.
func (l *SessionLock) Path() string {
	return l.path
}

// Release drops the lock. Safe to call more than once.
func (l *SessionLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Lock acquires the drive lock for a session in this store's lock directory.
func (s *Store) Lock(sessionID string) (*SessionLock, error) {
	return AcquireSessionLock(s.lockDir, sessionID)
}
