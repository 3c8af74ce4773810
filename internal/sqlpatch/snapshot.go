package sqlpatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/twpatch/internal/fs"
	"github.com/calvinalkan/twpatch/internal/projection"
)

// Database file names under <patch_db_dir>/<game>/.
const (
	SnapshotFileName = "vanilla.db3"
	WorkFileName     = "work.db3"
	lockSuffix       = ".lock"
)

// Snapshot is the cached vanilla projection of one game install.
//
// Readers hold a shared lock on <path>.lock for as long as they copy from
// the snapshot; a rebuild holds the exclusive lock. Rebuilds write a fresh
// database next to the snapshot and rename it into place, so the same
// inputs always produce the same bytes.
type Snapshot struct {
	Path string
	// ExecutablePath is the game binary whose creation time decides
	// freshness.
	ExecutablePath string
	Locker         *fs.Locker
}

// BuildFunc fills an empty store with the vanilla tables.
type BuildFunc func(ctx context.Context, store *projection.Store) error

// Fresh reports whether the snapshot exists and is not older than the game
// executable. The check is coarse: a patched executable that kept its
// creation time is not noticed.
func (s *Snapshot) Fresh() (bool, error) {
	info, err := os.Stat(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("%w: stat snapshot: %w", ErrIO, err)
	}

	created, err := fs.CreationTime(s.ExecutablePath)
	if err != nil {
		logger.Warningf("cannot read executable time (%v), keeping existing snapshot", err)

		return true, nil
	}

	return !created.After(info.ModTime()), nil
}

// Acquire returns a shared lock on a fresh snapshot, rebuilding it first
// when it is stale or force is set. The caller closes the lock once done
// reading.
func (s *Snapshot) Acquire(ctx context.Context, force bool, build BuildFunc) (*fs.Lock, bool, error) {
	lockPath := s.Path + lockSuffix

	if !force {
		shared, err := s.Locker.RLock(ctx, lockPath)
		if err != nil {
			return nil, false, fmt.Errorf("%w: lock snapshot: %w", ErrIO, err)
		}

		fresh, err := s.Fresh()
		if err != nil || fresh {
			if err != nil {
				_ = shared.Close()

				return nil, false, err
			}

			return shared, false, nil
		}

		_ = shared.Close()
	}

	err := s.rebuild(ctx, lockPath, force, build)
	if err != nil {
		return nil, false, err
	}

	shared, err := s.Locker.RLock(ctx, lockPath)
	if err != nil {
		return nil, true, fmt.Errorf("%w: lock snapshot: %w", ErrIO, err)
	}

	return shared, true, nil
}

func (s *Snapshot) rebuild(ctx context.Context, lockPath string, force bool, build BuildFunc) error {
	exclusive, err := s.Locker.Lock(ctx, lockPath)
	if err != nil {
		return fmt.Errorf("%w: lock snapshot: %w", ErrIO, err)
	}

	defer func() { _ = exclusive.Close() }()

	// Another process may have rebuilt it while we waited.
	if !force {
		fresh, freshErr := s.Fresh()
		if freshErr != nil {
			return freshErr
		}

		if fresh {
			return nil
		}
	}

	start := time.Now()
	tmp := filepath.Join(filepath.Dir(s.Path), "."+uuid.NewString()+".db3.tmp")

	defer func() { _ = os.Remove(tmp) }()

	store, err := projection.Open(ctx, tmp, 1)
	if err != nil {
		return fmt.Errorf("%w: create snapshot: %w", ErrIO, err)
	}

	err = build(ctx, store)

	closeErr := store.Close()
	if err = errors.Join(err, closeErr); err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	err = fs.ReplaceFile(tmp, s.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	logger.Infof("rebuilt vanilla snapshot %s in %s", s.Path, time.Since(start).Round(time.Millisecond))

	return nil
}
