//go:build unix

package fs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"golang.org/x/sys/unix"
)

func Test_Locker_Backs_Off_On_Its_Clock_While_Lock_Is_Held(t *testing.T) {
	t.Parallel()

	clk := testclock.NewClock(time.Now())
	attempts := 0
	locker := &Locker{
		clock: clk,
		flock: func(fd int, how int) error {
			if how&unix.LOCK_NB == 0 {
				return unix.Flock(fd, how)
			}

			attempts++
			if attempts < 3 {
				return unix.EWOULDBLOCK
			}

			return unix.Flock(fd, how)
		},
	}

	path := filepath.Join(t.TempDir(), "lock")
	done := make(chan error, 1)

	go func() {
		lock, err := locker.Lock(t.Context(), path)
		if err == nil {
			err = lock.Close()
		}

		done <- err
	}()

	// Two failed attempts, each followed by one backoff wait.
	for range 2 {
		err := clk.WaitAdvance(maxBackoff, 5*time.Second, 1)
		if err != nil {
			t.Fatalf("WaitAdvance: %v", err)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Lock: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Lock did not return")
	}

	if attempts != 3 {
		t.Fatalf("attempts=%d, want 3", attempts)
	}
}
