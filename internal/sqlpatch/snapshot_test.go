package sqlpatch_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calvinalkan/twpatch/internal/fs"
	"github.com/calvinalkan/twpatch/internal/projection"
	"github.com/calvinalkan/twpatch/internal/sqlpatch"
	"github.com/calvinalkan/twpatch/internal/table"
)

func newSnapshot(t *testing.T) *sqlpatch.Snapshot {
	t.Helper()

	dir := t.TempDir()
	exe := filepath.Join(dir, "game.exe")

	err := os.WriteFile(exe, []byte("MZ"), 0o600)
	if err != nil {
		t.Fatalf("write exe: %v", err)
	}

	return &sqlpatch.Snapshot{
		Path:           filepath.Join(dir, "patch_db", "warhammer_2", sqlpatch.SnapshotFileName),
		ExecutablePath: exe,
		Locker:         fs.NewLocker(),
	}
}

func buildUnits(calls *int) sqlpatch.BuildFunc {
	return func(ctx context.Context, store *projection.Store) error {
		*calls++

		_, err := store.Project(ctx, []projection.Item{{
			ArchiveName: "data.pack",
			FileName:    "data__",
			Table: &table.Table{
				Name: "units_tables",
				Definition: table.Definition{Version: 1, Columns: []table.Column{
					{Name: "key", Type: table.TypeString, Key: true},
					{Name: "num", Type: table.TypeInt},
				}},
				Rows: []table.Row{{"spearmen", int64(120)}, {"archers", int64(80)}},
			},
		}})

		return err
	}
}

func Test_Snapshot_Is_Built_Once_And_Reused_While_Fresh(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	snap := newSnapshot(t)

	var calls int

	fresh, err := snap.Fresh()
	if err != nil || fresh {
		t.Fatalf("Fresh before build = %v, %v; want false, nil", fresh, err)
	}

	lock, rebuilt, err := snap.Acquire(ctx, false, buildUnits(&calls))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_ = lock.Close()

	if !rebuilt || calls != 1 {
		t.Fatalf("first Acquire rebuilt=%v calls=%d, want true 1", rebuilt, calls)
	}

	lock, rebuilt, err = snap.Acquire(ctx, false, buildUnits(&calls))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_ = lock.Close()

	if rebuilt || calls != 1 {
		t.Fatalf("second Acquire rebuilt=%v calls=%d, want false 1", rebuilt, calls)
	}
}

func Test_Snapshot_Is_Rebuilt_When_Older_Than_Executable(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	snap := newSnapshot(t)

	var calls int

	lock, _, err := snap.Acquire(ctx, false, buildUnits(&calls))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_ = lock.Close()

	old := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)

	err = os.Chtimes(snap.Path, old, old)
	if err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	lock, rebuilt, err := snap.Acquire(ctx, false, buildUnits(&calls))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_ = lock.Close()

	if !rebuilt || calls != 2 {
		t.Fatalf("stale Acquire rebuilt=%v calls=%d, want true 2", rebuilt, calls)
	}
}

func Test_Snapshot_Forced_Rebuilds_Are_Byte_Identical(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	snap := newSnapshot(t)

	var calls int

	read := func() []byte {
		t.Helper()

		lock, _, err := snap.Acquire(ctx, true, buildUnits(&calls))
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}

		defer func() { _ = lock.Close() }()

		data, err := os.ReadFile(snap.Path)
		if err != nil {
			t.Fatalf("read snapshot: %v", err)
		}

		return data
	}

	first := read()
	second := read()

	if calls != 2 {
		t.Fatalf("calls=%d, want 2", calls)
	}

	if !bytes.Equal(first, second) {
		t.Fatalf("rebuilt snapshot differs: %d vs %d bytes", len(first), len(second))
	}
}

func Test_Snapshot_Keeps_Existing_Copy_When_Executable_Time_Is_Unreadable(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	snap := newSnapshot(t)

	var calls int

	lock, _, err := snap.Acquire(ctx, false, buildUnits(&calls))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_ = lock.Close()

	snap.ExecutablePath = filepath.Join(t.TempDir(), "missing.exe")

	fresh, err := snap.Fresh()
	if err != nil || !fresh {
		t.Fatalf("Fresh = %v, %v; want true, nil", fresh, err)
	}
}
