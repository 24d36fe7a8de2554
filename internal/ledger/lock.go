package ledger

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// WorkspaceLock is an exclusive advisory lock on a workspace's ledger,
// backed by flock(2) on `.edda/LOCK`. Grounded on the original
// implementation's edda-ledger::lock::WorkspaceLock (fs2 try_lock_exclusive
// over a sentinel file), reimplemented with golang.org/x/sys/unix since the
// corpus's file-locking dependency (bureau-foundation-bureau's go.mod
// requires golang.org/x/sys directly) is a direct syscall wrapper rather
// than fs2's higher-level crate.
type WorkspaceLock struct {
	file *os.File
}

// AcquireLock opens (creating if needed) the lock file at path and blocks,
// retrying with backoff, until it obtains an exclusive flock or ctx is
// done. Matches spec.md §5's "exclusive writer via advisory lock with
// timeout" — callers derive ctx with the desired timeout.
func AcquireLock(ctx context.Context, path string) (*WorkspaceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open lock file %s: %w", path, err)
	}

	backoff := 5 * time.Millisecond
	const maxBackoff = 100 * time.Millisecond
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &WorkspaceLock{file: f}, nil
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, fmt.Errorf("ledger: flock %s: %w", path, err)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, &StorageError{Op: "acquire lock", Err: ctx.Err(), Retryable: true}
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// Release unlocks and closes the underlying file descriptor. Safe to call
// once; a second call returns an error rather than panicking.
func (l *WorkspaceLock) Release() error {
	if l == nil || l.file == nil {
		return fmt.Errorf("ledger: lock already released")
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("ledger: unlock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("ledger: close lock file: %w", closeErr)
	}
	return nil
}
