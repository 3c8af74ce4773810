// Package fs holds the small set of filesystem primitives twpatch needs:
// advisory file locks for the patch databases, atomic file replacement for
// the generated archive and snapshot, and file birth times for cache
// freshness checks.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("twpatch.fs")

// ErrLockCanceled is returned when the context ends while waiting for a lock
// held by another process.
var ErrLockCanceled = errors.New("lock wait canceled")

// errStaleLockFile means the lock file was replaced between open and flock.
var errStaleLockFile = errors.New("lock file replaced while locking")

// errLockBusy means a non-blocking attempt found the lock held.
var errLockBusy = errors.New("lock held")

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755

	firstBackoff = time.Millisecond
	maxBackoff   = 50 * time.Millisecond
)

// Locker hands out advisory locks on the ".lock" files next to the patch
// databases: flock(2) on unix, LockFileEx on Windows. Concurrent twpatch runs
// for the same game serialize on them.
//
// The lock applies to the open file, so after locking, Locker checks that the
// descriptor still refers to the file at path. Lock files are never removed.
//
// Locker is safe for concurrent use.
type Locker struct {
	flock func(fd int, how int) error
	clock clock.Clock
}

// NewLocker returns a Locker backed by the platform lock call and the wall
// clock.
func NewLocker() *Locker {
	return &Locker{flock: platformFlock, clock: clock.WallClock}
}

// Lock is a held file lock. Close releases it.
type Lock struct {
	mu    sync.Mutex
	file  *os.File
	flock func(fd int, how int) error
}

// Close unlocks and closes the lock file. It is idempotent.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	unlockErr := retryEINTR(lk.flock, int(lk.file.Fd()), lockUnlock)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}

	return nil
}

// Lock takes an exclusive lock on path, waiting until it is free or ctx
// ends. Missing parent directories are created.
func (l *Locker) Lock(ctx context.Context, path string) (*Lock, error) {
	return l.wait(ctx, path, lockExclusive)
}

// RLock takes a shared lock on path. Shared locks coexist with each other
// and exclude exclusive ones.
func (l *Locker) RLock(ctx context.Context, path string) (*Lock, error) {
	return l.wait(ctx, path, lockShared)
}

// wait polls a non-blocking lock call with capped exponential backoff. A
// blocking call could not observe ctx.
func (l *Locker) wait(ctx context.Context, path string, how int) (*Lock, error) {
	backoff := firstBackoff
	logged := false

	for {
		lock, err := l.try(path, how)
		if err == nil {
			return lock, nil
		}

		if !errors.Is(err, errLockBusy) && !errors.Is(err, errStaleLockFile) {
			return nil, err
		}

		if !logged {
			logger.Infof("waiting for %s, another twpatch run holds it", path)

			logged = true
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockCanceled, path, ctx.Err())
		case <-l.clock.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

// try makes one non-blocking attempt. errLockBusy means the lock is held.
func (l *Locker) try(path string, how int) (*Lock, error) {
	file, err := openLockFile(path, how)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	fd := int(file.Fd())

	err = retryEINTR(l.flock, fd, how|lockNonBlock)
	if err != nil {
		_ = file.Close()

		if lockBusy(err) {
			return nil, errLockBusy
		}

		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	same, err := sameFile(path, file)
	if err != nil || !same {
		_ = retryEINTR(l.flock, fd, lockUnlock)
		_ = file.Close()

		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("verify lock file %s: %w", path, err)
		}

		return nil, errStaleLockFile
	}

	return &Lock{file: file, flock: l.flock}, nil
}

func openLockFile(path string, how int) (*os.File, error) {
	flag := os.O_RDWR
	if how == lockShared {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
	if !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	err = os.MkdirAll(filepath.Dir(path), lockDirPerm)
	if err != nil {
		return nil, err
	}

	return os.OpenFile(path, flag|os.O_CREATE, lockFilePerm)
}

// retryEINTR retries the lock call when a signal interrupts it, with a cap
// so a signal storm cannot spin forever.
func retryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	const maxRetries = 10000

	var err error
	for range maxRetries {
		err = flock(fd, how)
		if !interrupted(err) {
			return err
		}
	}

	return err
}
