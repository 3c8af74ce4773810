// Package gitsync keeps local clones of remote data repositories (the
// translation corpus, the table schemas) up to date. Refreshes are best
// effort: callers log the error and keep using whatever is on disk.
package gitsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("twpatch.gitsync")

// ErrNetwork marks refresh failures. It is never fatal to a patch run.
var ErrNetwork = errors.New("network refresh failed")

// Repo is one remote repository mirrored into a local directory.
type Repo struct {
	Remote string
	Branch string
	Dir    string
}

// Runner executes git with args in dir and returns combined output.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// Syncer refreshes repositories with retries.
type Syncer struct {
	Run      Runner
	Clock    clock.Clock
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// New returns a Syncer that shells out to git.
func New(timeout time.Duration) *Syncer {
	return &Syncer{
		Run:      execGit,
		Clock:    clock.WallClock,
		Attempts: 3,
		Delay:    2 * time.Second,
		Timeout:  timeout,
	}
}

// Refresh clones repo.Dir if it is not a checkout yet, otherwise fetches
// repo.Branch and hard-resets to it. Every failure matches ErrNetwork.
func (s *Syncer) Refresh(ctx context.Context, repo Repo) error {
	if repo.Remote == "" || repo.Dir == "" {
		return fmt.Errorf("%w: remote and dir are required", ErrNetwork)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	steps := s.steps(repo)

	for _, step := range steps {
		err := retry.Call(retry.CallArgs{
			Func: func() error {
				out, runErr := s.Run(ctx, step.dir, step.args...)
				if runErr != nil {
					return fmt.Errorf("git %s: %w: %s", step.args[0], runErr, strings.TrimSpace(string(out)))
				}

				return nil
			},
			IsFatalError: func(error) bool { return ctx.Err() != nil },
			NotifyFunc: func(err error, attempt int) {
				logger.Debugf("refresh %s attempt %d: %v", repo.Remote, attempt, err)
			},
			Attempts: max(s.Attempts, 1),
			Delay:    max(s.Delay, time.Millisecond),
			Clock:    s.Clock,
			Stop:     ctx.Done(),
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNetwork, repo.Remote, retry.LastError(err))
		}
	}

	logger.Infof("refreshed %s (%s) into %s", repo.Remote, repo.Branch, repo.Dir)

	return nil
}

type step struct {
	dir  string
	args []string
}

func (s *Syncer) steps(repo Repo) []step {
	branch := repo.Branch
	if branch == "" {
		branch = "master"
	}

	_, err := os.Stat(filepath.Join(repo.Dir, ".git"))
	if err != nil {
		parent := filepath.Dir(repo.Dir)

		return []step{{
			dir:  parent,
			args: []string{"clone", "--depth", "1", "--branch", branch, repo.Remote, repo.Dir},
		}}
	}

	return []step{
		{dir: repo.Dir, args: []string{"fetch", "--depth", "1", repo.Remote, branch}},
		{dir: repo.Dir, args: []string{"reset", "--hard", "FETCH_HEAD"}},
	}
}

func execGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var out bytes.Buffer

	cmd.Stdout = &out
	cmd.Stderr = &out

	err = cmd.Run()

	return out.Bytes(), err
}
