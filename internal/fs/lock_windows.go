//go:build windows

package fs

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

// Lock modes mirror the flock(2) bits so the shared code can combine them.
const (
	lockShared    = 1
	lockExclusive = 2
	lockNonBlock  = 4
	lockUnlock    = 8
)

// platformFlock locks the first byte of the file. fd is the file handle.
func platformFlock(fd int, how int) error {
	handle := windows.Handle(fd)
	overlapped := new(windows.Overlapped)

	if how&lockUnlock != 0 {
		return windows.UnlockFileEx(handle, 0, 1, 0, overlapped)
	}

	var flags uint32
	if how&lockExclusive != 0 {
		flags |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}

	if how&lockNonBlock != 0 {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}

	return windows.LockFileEx(handle, flags, 0, 1, 0, overlapped)
}

func lockBusy(err error) bool {
	return errors.Is(err, windows.ERROR_LOCK_VIOLATION) || errors.Is(err, windows.ERROR_IO_PENDING)
}

func interrupted(error) bool {
	return false
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

	return os.SameFile(opened, current), nil
}
