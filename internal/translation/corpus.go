package translation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/twpatch/internal/table"
)

// Corpus file names under <root>/<game>/.
const (
	referenceFileName = "vanilla_english.tsv"
	fixesFilePrefix   = "vanilla_fixes_"
)

// Unit is one translated string of one archive.
type Unit struct {
	Key                string `json:"key"`
	Original           string `json:"value_original"`
	Translated         string `json:"value_translated"`
	NeedsRetranslation bool   `json:"needs_retranslation"`
}

// unitFile is the on-disk layout of <root>/<game>/<archive>/<lang>.json.
type unitFile struct {
	Language     string          `json:"language"`
	PackName     string          `json:"pack_name"`
	Translations map[string]Unit `json:"translations"`
}

// UnitsPath returns where the unit set for one archive and language lives
// under root.
func UnitsPath(root, gameKey, archiveName, language string) string {
	return filepath.Join(root, gameKey, archiveName, language+".json")
}

// LoadUnits reads the unit set for archiveName from the first root that has
// one. It reports false when no root does. Units come back sorted by key.
func LoadUnits(roots []string, gameKey, archiveName, language string) ([]Unit, bool, error) {
	for _, root := range roots {
		path := UnitsPath(root, gameKey, archiveName, language)

		data, err := os.ReadFile(path) //nolint:gosec // corpus paths come from config
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrIO, err)
		}

		units, err := parseUnits(data)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
		}

		return units, true, nil
	}

	return nil, false, nil
}

func parseUnits(data []byte) ([]Unit, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, err
	}

	var file unitFile

	err = json.Unmarshal(standardized, &file)
	if err != nil {
		return nil, err
	}

	units := make([]Unit, 0, len(file.Translations))

	for key, unit := range file.Translations {
		if unit.Key == "" {
			unit.Key = key
		}

		units = append(units, unit)
	}

	slices.SortFunc(units, func(a, b Unit) int { return strings.Compare(a.Key, b.Key) })

	return units, nil
}

// loadCorpusTSV imports <root>/<game>/<name>. A missing file returns nil.
func loadCorpusTSV(root, gameKey, name string) (*table.Loc, error) {
	if root == "" {
		return nil, nil
	}

	path := filepath.Join(root, gameKey, name)

	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	loc, err := table.ImportLocTSV(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	logger.Debugf("loaded %s (%d rows)", path, len(loc.Rows))

	return loc, nil
}
