// Package loadorder turns a game's load-order file into the ordered list of
// archive paths making up the mod priority stack.
package loadorder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/loggo/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/calvinalkan/twpatch/internal/archive"
)

var logger = loggo.GetLogger("twpatch.loadorder")

const (
	workingDirPrefix = `add_working_directory "`
	modPrefix        = `mod "`
	archiveExt       = ".pack"
)

// Options describes one resolution.
type Options struct {
	// LoadOrderPath is the user script listing working directories and mods.
	LoadOrderPath string
	// UTF16 decodes the load-order file as UTF-16 (BOM-aware, little-endian
	// when no BOM is present).
	UTF16 bool
	// InstallPath anchors relative working directories.
	InstallPath string
	// DataPath is the game's data directory.
	DataPath string
	// BasePaths are the game's own archives. They are never auto-detected.
	BasePaths []string
}

// File is a parsed load-order file.
type File struct {
	WorkingDirs []string
	Mods        []string
}

// Parse reads working-directory and mod declarations. Any other line is
// ignored. A trailing ';' after the closing quote is optional.
func Parse(text string) File {
	var f File

	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)

		if rest, ok := strings.CutPrefix(line, workingDirPrefix); ok {
			if value, ok := quoted(rest); ok && value != "" {
				f.WorkingDirs = append(f.WorkingDirs, value)
			}

			continue
		}

		if rest, ok := strings.CutPrefix(line, modPrefix); ok {
			if value, ok := quoted(rest); ok && value != "" {
				f.Mods = append(f.Mods, value)
			}
		}
	}

	return f
}

// quoted returns the text up to the closing quote.
func quoted(rest string) (string, bool) {
	value, tail, ok := strings.Cut(rest, `"`)
	if !ok {
		return "", false
	}

	tail = strings.TrimSpace(tail)
	if tail != "" && tail != ";" {
		return "", false
	}

	return strings.TrimSpace(value), true
}

// Read loads and decodes a load-order file.
func Read(path string, utf16 bool) (File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // load-order path comes from config
	if err != nil {
		return File{}, fmt.Errorf("read load order: %w", err)
	}

	if utf16 {
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()

		data, _, err = transform.Bytes(unicode.BOMOverride(decoder), data)
		if err != nil {
			return File{}, fmt.Errorf("decode utf-16 load order: %w", err)
		}
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	return Parse(string(data)), nil
}

// Resolve returns absolute archive paths lowest to highest priority. The
// data directory is always the first element; explicit mods follow in
// declaration order; movie-category archives found in any working directory
// come last.
func Resolve(ctx context.Context, opts Options) ([]string, error) {
	file, err := Read(opts.LoadOrderPath, opts.UTF16)
	if err != nil {
		return nil, err
	}

	dataPath, err := filepath.Abs(opts.DataPath)
	if err != nil {
		return nil, fmt.Errorf("resolve data path: %w", err)
	}

	declared := make([]string, 0, len(file.WorkingDirs))

	for _, dir := range file.WorkingDirs {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(opts.InstallPath, dir)
		}

		declared = append(declared, filepath.Clean(dir))
	}

	// Mods resolve against declared directories first, the data directory last.
	lookup := append(slices.Clone(declared), dataPath)

	result := []string{dataPath}
	explicit := set.NewStrings()

	for _, name := range file.Mods {
		found := false

		for _, dir := range lookup {
			candidate := filepath.Join(dir, name)

			if !isFile(candidate) {
				continue
			}

			found = true

			if explicit.Contains(candidate) {
				logger.Debugf("mod %q declared more than once, keeping the first", name)

				break
			}

			result = append(result, candidate)
			explicit.Add(candidate)

			break
		}

		if !found {
			logger.Warningf("mod %q not found in any working directory, skipping", name)
		}
	}

	known := set.NewStrings()

	for _, p := range opts.BasePaths {
		abs, absErr := filepath.Abs(p)
		if absErr == nil {
			known.Add(abs)
		}
	}

	// The data directory is probed first, then declared directories.
	probeDirs := append([]string{dataPath}, declared...)
	probed := set.NewStrings()

	for _, dir := range probeDirs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		for _, candidate := range archivesIn(dir) {
			if explicit.Contains(candidate) || known.Contains(candidate) || probed.Contains(candidate) {
				continue
			}

			probed.Add(candidate)

			header, probeErr := archive.ReadHeader(candidate)
			if probeErr != nil {
				logger.Debugf("probe %s: %v", candidate, probeErr)

				continue
			}

			if header.Category == archive.CategoryMovie {
				logger.Debugf("auto-loading movie archive %s", candidate)

				result = append(result, candidate)
			}
		}
	}

	return result, nil
}

// archivesIn lists archive files directly under dir in name order. Errors
// yield an empty list.
func archivesIn(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []string

	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), archiveExt) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}

	return out
}

func isFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular()
}
