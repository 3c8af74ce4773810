package fs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

const dirPerm = 0o755

// WriteFileAtomic replaces path with data. Readers see either the previous
// content or the new one, never a partial file. Parent directories are
// created as needed.
func WriteFileAtomic(path string, data []byte) error {
	if path == "" {
		return errors.New("write atomic: path is empty")
	}

	err := os.MkdirAll(filepath.Dir(path), dirPerm)
	if err != nil {
		return fmt.Errorf("write atomic: create parent: %w", err)
	}

	err = atomic.WriteFile(path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("write atomic %s: %w", path, err)
	}

	return nil
}

// ReplaceFile moves source over dest atomically.
func ReplaceFile(source, dest string) error {
	err := atomic.ReplaceFile(source, dest)
	if err != nil {
		return fmt.Errorf("replace %s: %w", dest, err)
	}

	return nil
}
