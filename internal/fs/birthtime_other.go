//go:build !linux

package fs

import (
	"fmt"
	"os"
	"time"
)

// CreationTime returns the modification time of path. Platforms without
// statx have no portable birth time.
func CreationTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}

	return info.ModTime(), nil
}
