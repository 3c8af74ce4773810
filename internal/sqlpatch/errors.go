package sqlpatch

import (
	"errors"
	"strconv"
	"strings"
)

// Failure classes. Use [errors.Is] on anything the pipeline returns.
var (
	// ErrIO means a required file could not be read or written.
	ErrIO = errors.New("io failure")

	// ErrDecode means a table record could not be decoded or projected.
	ErrDecode = errors.New("decode failure")

	// ErrScript means a script failed to execute.
	ErrScript = errors.New("script failed")

	// ErrScriptFormat means a script's metadata block is malformed.
	ErrScriptFormat = errors.New("malformed script metadata")

	// ErrPatchFailed is the terminal error of a pipeline run in which at
	// least one script failed.
	ErrPatchFailed = errors.New("sql patch failed")
)

// ScriptError carries the script a failure belongs to.
//
// The underlying error message appears first, followed by the script:
//
//	script failed: no such table: foo_v1 (script=2 path=scripts/b.sql)
type ScriptError struct {
	// Index is the script's position in the caller's list.
	Index int
	Path  string
	Err   error
}

func (e *ScriptError) Error() string {
	if e == nil {
		return ""
	}

	var parts []string

	parts = append(parts, "script="+strconv.Itoa(e.Index))

	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}

	suffix := "(" + strings.Join(parts, " ") + ")"

	if e.Err == nil {
		return suffix
	}

	return e.Err.Error() + " " + suffix
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *ScriptError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}
