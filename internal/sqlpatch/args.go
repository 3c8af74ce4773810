package sqlpatch

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// ScriptArg is one script invocation: a script file plus positional
// parameters.
type ScriptArg struct {
	Path   string
	Params []string
}

// ParseScriptArg parses "<path>;<param1>;<param2>;..." with CSV quoting, so
// a path or value containing ';' can be written in double quotes. The path
// must name an existing regular file.
func ParseScriptArg(arg string) (ScriptArg, error) {
	reader := csv.NewReader(strings.NewReader(arg))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	fields, err := reader.Read()
	if err != nil {
		return ScriptArg{}, fmt.Errorf("parse script argument %q: %w", arg, err)
	}

	path := strings.TrimSpace(fields[0])
	if path == "" {
		return ScriptArg{}, fmt.Errorf("%w: script argument %q has no path", ErrIO, arg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return ScriptArg{}, fmt.Errorf("%w: script %s: %w", ErrIO, path, err)
	}

	if !info.Mode().IsRegular() {
		return ScriptArg{}, fmt.Errorf("%w: script %s is not a file", ErrIO, path)
	}

	return ScriptArg{Path: path, Params: fields[1:]}, nil
}

// ParseScriptArgs parses every argument, failing on the first bad one.
func ParseScriptArgs(args []string) ([]ScriptArg, error) {
	out := make([]ScriptArg, 0, len(args))

	for _, arg := range args {
		parsed, err := ParseScriptArg(arg)
		if err != nil {
			return nil, err
		}

		out = append(out, parsed)
	}

	return out, nil
}
