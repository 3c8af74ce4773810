//go:build unix

package fs

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	lockShared    = unix.LOCK_SH
	lockExclusive = unix.LOCK_EX
	lockUnlock    = unix.LOCK_UN
	lockNonBlock  = unix.LOCK_NB
)

var platformFlock = unix.Flock

func lockBusy(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

func interrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// sameFile reports whether f is still the file at path.
func sameFile(path string, f *os.File) (bool, error) {
	opened, err := f.Stat()
	if err != nil {
		return false, err
	}

	current, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	a, okA := opened.Sys().(*syscall.Stat_t)
	b, okB := current.Sys().(*syscall.Stat_t)

	if !okA || !okB {
		return os.SameFile(opened, current), nil
	}

	return a.Dev == b.Dev && a.Ino == b.Ino, nil
}
