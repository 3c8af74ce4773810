//go:build linux

package fs

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// CreationTime returns the birth time of path when the filesystem records
// one, and the modification time otherwise.
func CreationTime(path string) (time.Time, error) {
	var stx unix.Statx_t

	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_STATX_SYNC_AS_STAT, unix.STATX_BTIME|unix.STATX_MTIME, &stx)
	if err != nil {
		return time.Time{}, fmt.Errorf("statx %s: %w", path, err)
	}

	if stx.Mask&unix.STATX_BTIME != 0 {
		return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), nil
	}

	return time.Unix(stx.Mtime.Sec, int64(stx.Mtime.Nsec)), nil
}
