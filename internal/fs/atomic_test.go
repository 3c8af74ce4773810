package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func Test_WriteFileAtomic_Creates_Parents_And_Replaces_Content(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "reserved.pack")

	if err := WriteFileAtomic(path, []byte("first")); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	if err := WriteFileAtomic(path, []byte("second")); err != nil {
		t.Fatalf("WriteFileAtomic overwrite: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "second" {
		t.Fatalf("content = %q, want %q", got, "second")
	}
}

func Test_ReplaceFile_Moves_Source_Over_Destination(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "vanilla.db3.tmp")
	dst := filepath.Join(dir, "vanilla.db3")

	if err := os.WriteFile(dst, []byte("old"), 0o600); err != nil {
		t.Fatalf("seed dst: %v", err)
	}

	if err := os.WriteFile(src, []byte("new"), 0o600); err != nil {
		t.Fatalf("seed src: %v", err)
	}

	if err := ReplaceFile(src, dst); err != nil {
		t.Fatalf("ReplaceFile: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "new" {
		t.Fatalf("content = %q, want %q", got, "new")
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source still exists: err=%v", err)
	}
}

func Test_CreationTime_Is_Not_After_Now(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "game.exe")
	if err := os.WriteFile(path, []byte("exe"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	created, err := CreationTime(path)
	if err != nil {
		t.Fatalf("CreationTime: %v", err)
	}

	if created.After(time.Now().Add(time.Second)) {
		t.Fatalf("CreationTime = %v, in the future", created)
	}
}
