package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CLI runs twpatch in-process against a temp working directory. The user
// config directory is isolated under Dir/.config.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLI creates a test CLI rooted at a fresh temp directory.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	dir := t.TempDir()

	return &CLI{
		t:   t,
		Dir: dir,
		Env: map[string]string{"XDG_CONFIG_HOME": filepath.Join(dir, ".config")},
	}
}

// Run executes "twpatch --cwd Dir args..." and returns stdout, stderr and
// the exit code.
func (r *CLI) Run(args ...string) (string, string, int) {
	var stdout, stderr bytes.Buffer

	code := Run(nil, &stdout, &stderr, append([]string{"twpatch", "--cwd", r.Dir}, args...), r.Env, nil)

	return stdout.String(), stderr.String(), code
}

// MustRun fails the test unless the command exits 0. Returns trimmed stdout.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	require.Zerof(r.t, code, "twpatch %v exited %d\nstderr: %s", args, code, stderr)

	return strings.TrimSpace(stdout)
}

// MustFail fails the test unless the command exits non-zero with empty
// stdout. Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	require.NotZerof(r.t, code, "twpatch %v should have failed\nstdout: %s", args, stdout)
	require.Emptyf(r.t, stdout, "twpatch %v failed but wrote to stdout", args)

	return strings.TrimSpace(stderr)
}

// WriteFile writes content to a path relative to Dir, creating parents, and
// returns the absolute path.
func (r *CLI) WriteFile(rel, content string) string {
	r.t.Helper()

	path := filepath.Join(r.Dir, rel)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(r.t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// AssertContains reports an error if content does not contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()
	assert.Contains(t, content, substr)
}

// AssertNotContains reports an error if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()
	assert.NotContains(t, content, substr)
}
