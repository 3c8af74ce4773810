package patcher

import (
	"bufio"
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/calvinalkan/twpatch/internal/archive"
)

// ManifestFileName lists the game's own archives inside the data directory.
const ManifestFileName = "manifest.txt"

const archiveExt = ".pack"

type baseArchive struct {
	path     string
	category archive.Category
}

// BaseArchives returns the paths of the installed game's own archives,
// lowest priority first (boot, release, patch; then by name).
//
// When the data directory has a manifest, its first column names them.
// Otherwise every archive whose header says boot, release or patch counts.
func BaseArchives(dataPath string) ([]string, error) {
	names, fromManifest, err := readManifest(filepath.Join(dataPath, ManifestFileName))
	if err != nil {
		return nil, err
	}

	if !fromManifest {
		entries, readErr := os.ReadDir(dataPath)
		if readErr != nil {
			return nil, fmt.Errorf("list data directory: %w", readErr)
		}

		for _, e := range entries {
			if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), archiveExt) {
				names = append(names, e.Name())
			}
		}
	}

	var found []baseArchive

	for _, name := range names {
		path := filepath.Join(dataPath, name)

		header, headerErr := archive.ReadHeader(path)
		if headerErr != nil {
			if fromManifest && !errors.Is(headerErr, os.ErrNotExist) {
				return nil, fmt.Errorf("base archive %s: %w", name, headerErr)
			}

			logger.Debugf("probe %s: %v", path, headerErr)

			continue
		}

		if !fromManifest && header.Category > archive.CategoryPatch {
			continue
		}

		found = append(found, baseArchive{path: path, category: header.Category})
	}

	slices.SortFunc(found, func(a, b baseArchive) int {
		if c := cmp.Compare(a.category, b.category); c != 0 {
			return c
		}

		return strings.Compare(a.path, b.path)
	})

	paths := make([]string, 0, len(found))
	for _, b := range found {
		paths = append(paths, b.path)
	}

	return paths, nil
}

// readManifest returns the archive names listed in the manifest, if any.
func readManifest(path string) ([]string, bool, error) {
	f, err := os.Open(path) //nolint:gosec // path is inside the game install
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("open manifest: %w", err)
	}

	defer func() { _ = f.Close() }()

	var names []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if strings.EqualFold(filepath.Ext(fields[0]), archiveExt) && !strings.ContainsAny(fields[0], `/\`) {
			names = append(names, fields[0])
		}
	}

	err = scanner.Err()
	if err != nil {
		return nil, false, fmt.Errorf("read manifest: %w", err)
	}

	return names, true, nil
}
