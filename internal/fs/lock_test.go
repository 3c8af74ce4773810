package fs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func Test_Locker_Lock_Waits_Until_Holder_Releases(t *testing.T) {
	t.Parallel()

	locker := NewLocker()
	path := filepath.Join(t.TempDir(), "work.db3.lock")

	first, err := locker.Lock(t.Context(), path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}

	acquired := make(chan error, 1)

	go func() {
		second, lockErr := locker.Lock(t.Context(), path)
		if lockErr == nil {
			lockErr = second.Close()
		}

		acquired <- lockErr
	}()

	select {
	case err := <-acquired:
		t.Fatalf("second Lock returned while first is held: err=%v", err)
	case <-time.After(30 * time.Millisecond):
	}

	err = first.Close()
	if err != nil {
		t.Fatalf("Close(): %v", err)
	}

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("second Lock after release: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second Lock did not return after release")
	}
}

func Test_Locker_Lock_Returns_ErrLockCanceled_When_Context_Ends(t *testing.T) {
	t.Parallel()

	locker := NewLocker()
	path := filepath.Join(t.TempDir(), "nested", "vanilla.db3.lock")

	reader, err := locker.RLock(t.Context(), path)
	if err != nil {
		t.Fatalf("RLock(%q): %v", path, err)
	}

	defer func() { _ = reader.Close() }()

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, path)
	if !errors.Is(err, ErrLockCanceled) {
		t.Fatalf("Lock(%q): err=%v, want %v", path, err, ErrLockCanceled)
	}

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock(%q): err=%v, want it to wrap %v", path, err, context.DeadlineExceeded)
	}
}

func Test_Locker_RLock_Allows_Multiple_Readers(t *testing.T) {
	t.Parallel()

	locker := NewLocker()
	path := filepath.Join(t.TempDir(), "vanilla.db3.lock")

	first, err := locker.RLock(t.Context(), path)
	if err != nil {
		t.Fatalf("RLock(%q): %v", path, err)
	}

	defer func() { _ = first.Close() }()

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	second, err := locker.RLock(ctx, path)
	if err != nil {
		t.Fatalf("second RLock(%q): %v", path, err)
	}

	defer func() { _ = second.Close() }()
}

func Test_Lock_Close_Is_Idempotent(t *testing.T) {
	t.Parallel()

	lock, err := NewLocker().Lock(t.Context(), filepath.Join(t.TempDir(), "lock"))
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func Test_Locker_Try_Reports_Busy_When_Exclusive_Lock_Is_Held(t *testing.T) {
	t.Parallel()

	locker := NewLocker()
	path := filepath.Join(t.TempDir(), "work.db3.lock")

	held, err := locker.Lock(t.Context(), path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}

	_, err = locker.try(path, lockShared)
	if !errors.Is(err, errLockBusy) {
		t.Fatalf("try shared: err=%v, want %v", err, errLockBusy)
	}

	err = held.Close()
	if err != nil {
		t.Fatalf("Close(): %v", err)
	}

	reader, err := locker.try(path, lockShared)
	if err != nil {
		t.Fatalf("try shared after release: %v", err)
	}

	_ = reader.Close()
}
