package sqlpatch

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/calvinalkan/twpatch/internal/table"
)

// Metadata block markers. Each block sits in SQL line comments so the file
// stays valid SQL.
const (
	markerImportStart  = "-- Tables to import:"
	markerImportEnd    = "-- End of tables to import."
	markerCreateStart  = "-- Tables to create:"
	markerCreateEnd    = "-- End of tables to create."
	markerParamsStart  = "-- Params:"
	markerParamsEnd    = "-- End of params."
	markerReplaceStart = "-- Strings to replace:"
	markerReplaceEnd   = "-- End of strings to replace."

	replaceSeparator = "------"
	replaceAssign    = ":::"
)

// Param is a declared script parameter. Position i binds to $i.
type Param struct {
	Key     string
	Default string
}

// CreatedTable is a table record a script adds to the override archive.
type CreatedTable struct {
	// Table is the short table name ("land_units").
	Table string
	File  string
}

// Replacement is a literal substitution applied to the body before
// parameter binding.
type Replacement struct {
	Key   string
	Value string
}

// Metadata is everything a script declares about itself.
type Metadata struct {
	// Affected lists short table names to re-extract after the run.
	Affected     []string
	Created      []CreatedTable
	Params       []Param
	Replacements []Replacement
}

// Script is a parsed patch script.
type Script struct {
	Path     string
	Metadata Metadata
	// Body is the SQL template with well-formed metadata blocks removed.
	Body string
}

// LoadScript reads and parses a script file. A read failure matches ErrIO;
// a metadata failure matches ErrScriptFormat and still returns the script
// with whatever metadata could be parsed.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path) //nolint:gosec // script paths are user supplied on purpose
	if err != nil {
		return nil, fmt.Errorf("%w: read script: %w", ErrIO, err)
	}

	return ParseScript(path, string(data))
}

// ParseScript splits text into metadata and body. The import block is
// required; the others are optional. A malformed block is dropped and
// reported, the remaining blocks are still parsed.
func ParseScript(path, text string) (*Script, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	s := &Script{Path: path}

	var errs []error

	body := text

	lines, rest, err := cutBlock(body, markerImportStart, markerImportEnd, true)
	if err != nil {
		errs = append(errs, err)
	} else {
		body = rest

		for _, line := range lines {
			name := table.ShortName(line)
			if !slices.Contains(s.Metadata.Affected, name) {
				s.Metadata.Affected = append(s.Metadata.Affected, name)
			}
		}
	}

	lines, rest, err = cutBlock(body, markerCreateStart, markerCreateEnd, false)
	if err != nil {
		errs = append(errs, err)
	} else {
		body = rest

		for _, line := range lines {
			name, file, ok := strings.Cut(line, ":")
			name, file = strings.TrimSpace(name), strings.TrimSpace(file)

			if !ok || name == "" || file == "" {
				errs = append(errs, fmt.Errorf("%w: created table %q is not table_name:file_name", ErrScriptFormat, line))

				continue
			}

			s.Metadata.Created = append(s.Metadata.Created, CreatedTable{Table: table.ShortName(name), File: file})
		}
	}

	lines, rest, err = cutBlock(body, markerParamsStart, markerParamsEnd, false)
	if err != nil {
		errs = append(errs, err)
	} else {
		body = rest

		for _, line := range lines {
			key, def, _ := strings.Cut(line, ":")
			s.Metadata.Params = append(s.Metadata.Params, Param{Key: strings.TrimSpace(key), Default: strings.TrimSpace(def)})
		}
	}

	replacements, rest, cut, err := cutReplacements(body)
	if err != nil {
		errs = append(errs, err)
	}

	// Well-formed entries are kept even when a sibling entry is malformed.
	if cut {
		body = rest
	}

	s.Metadata.Replacements = replacements
	s.Body = body

	return s, errors.Join(errs...)
}

// cutBlock finds a marker-delimited block, returns its non-empty lines with
// the comment prefix removed, and the text with the block removed.
func cutBlock(text, start, end string, required bool) ([]string, string, error) {
	startPos := strings.Index(text, start)
	endPos := strings.Index(text, end)

	switch {
	case startPos < 0 && endPos < 0:
		if required {
			return nil, text, fmt.Errorf("%w: missing %q block", ErrScriptFormat, start)
		}

		return nil, text, nil
	case startPos < 0:
		return nil, text, fmt.Errorf("%w: %q without %q", ErrScriptFormat, end, start)
	case endPos < 0:
		return nil, text, fmt.Errorf("%w: %q without %q", ErrScriptFormat, start, end)
	case endPos < startPos:
		return nil, text, fmt.Errorf("%w: %q must come after %q", ErrScriptFormat, end, start)
	}

	inner := text[startPos+len(start) : endPos]

	var lines []string

	for line := range strings.SplitSeq(inner, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "--"))
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines, removeSpan(text, startPos, endPos+len(end)), nil
}

// removeSpan deletes text[from:to] and the rest of the line at to.
func removeSpan(text string, from, to int) string {
	if nl := strings.IndexByte(text[to:], '\n'); nl >= 0 {
		to += nl + 1
	} else {
		to = len(text)
	}

	return text[:from] + text[to:]
}

// cutReplacements parses the replacement block. cut reports whether the block
// was found and removed; rest may be empty when the block was all there was.
func cutReplacements(text string) ([]Replacement, string, bool, error) {
	startPos := strings.Index(text, markerReplaceStart)
	endPos := strings.Index(text, markerReplaceEnd)

	switch {
	case startPos < 0 && endPos < 0:
		return nil, text, false, nil
	case startPos < 0 || endPos < 0 || endPos < startPos:
		return nil, text, false, fmt.Errorf("%w: %q and %q must both exist, in that order", ErrScriptFormat, markerReplaceStart, markerReplaceEnd)
	}

	inner := text[startPos+len(markerReplaceStart) : endPos]

	var (
		out  []Replacement
		errs []error
	)

	for chunk := range strings.SplitSeq(inner, replaceSeparator) {
		chunk = strings.ReplaceAll(chunk, "--", "")
		if strings.TrimSpace(chunk) == "" {
			continue
		}

		key, value, ok := strings.Cut(chunk, replaceAssign)
		if !ok || strings.Contains(value, replaceAssign) || strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Errorf("%w: replacement %q is not key:::value", ErrScriptFormat, strings.TrimSpace(chunk)))

			continue
		}

		var parts []string

		for line := range strings.SplitSeq(value, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				parts = append(parts, line)
			}
		}

		out = append(out, Replacement{Key: strings.TrimSpace(key), Value: strings.Join(parts, " ")})
	}

	return out, removeSpan(text, startPos, endPos+len(markerReplaceEnd)), true, errors.Join(errs...)
}

// tokenPattern matches $0, $1, ... and $name tokens.
var tokenPattern = regexp.MustCompile(`\$(\d+|[A-Za-z_][A-Za-z0-9_]*)`)

// PackNameToken is replaced with the destination archive name.
const PackNameToken = "pack_name"

// Render produces the executable SQL. Replacements are applied last to
// first so an earlier replacement may contain a later one's key. Then $N
// binds to supplied[N], falling back to the declared default of parameter
// N; $<key> binds the same way by declared key; $pack_name becomes
// packName. Unknown tokens are left as written.
func (s *Script) Render(supplied []string, packName string) string {
	body := s.Body

	for _, r := range slices.Backward(s.Metadata.Replacements) {
		body = strings.ReplaceAll(body, r.Key, r.Value)
	}

	return tokenPattern.ReplaceAllStringFunc(body, func(token string) string {
		name := token[1:]

		if name == PackNameToken {
			return packName
		}

		idx, err := strconv.Atoi(name)
		if err != nil {
			idx = slices.IndexFunc(s.Metadata.Params, func(p Param) bool { return p.Key == name })
			if idx < 0 {
				return token
			}
		}

		if idx < len(supplied) {
			return supplied[idx]
		}

		if idx < len(s.Metadata.Params) {
			return s.Metadata.Params[idx].Default
		}

		return token
	})
}
