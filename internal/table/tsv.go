package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var errBadTSV = errors.New("invalid loc tsv")

var tsvUnescaper = strings.NewReplacer(`\n`, "\n", `\t`, "\t")

// ImportLocTSV reads a localization table exported as TSV.
func ImportLocTSV(path string) (*Loc, error) {
	f, err := os.Open(path) //nolint:gosec // corpus paths come from config
	if err != nil {
		return nil, fmt.Errorf("open loc tsv: %w", err)
	}

	defer func() { _ = f.Close() }()

	loc, err := ParseLocTSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return loc, nil
}

// ParseLocTSV parses the TSV layout used by the translation corpus:
//
//	key<TAB>text<TAB>tooltip
//	#Loc;1;text/db/some.loc          (optional metadata line)
//	row_key<TAB>Row text<TAB>false
//
// Escaped newlines and tabs inside text are restored.
func ParseLocTSV(r io.Reader) (*Loc, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %w", errBadTSV, err)
	}

	if len(header) < 2 || header[0] != "key" || header[1] != "text" {
		return nil, fmt.Errorf("%w: header %q", errBadTSV, strings.Join(header, "\t"))
	}

	loc := &Loc{}

	for {
		record, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return nil, fmt.Errorf("%w: %w", errBadTSV, readErr)
		}

		if len(record) == 0 || strings.HasPrefix(record[0], "#") {
			continue
		}

		if len(record) < 2 {
			line, _ := reader.FieldPos(0)

			return nil, fmt.Errorf("%w: line %d has %d fields", errBadTSV, line, len(record))
		}

		row := LocRow{
			Key:  record[0],
			Text: tsvUnescaper.Replace(record[1]),
		}

		if len(record) > 2 {
			row.Tooltip = strings.EqualFold(strings.TrimSpace(record[2]), "true")
		}

		loc.Rows = append(loc.Rows, row)
	}

	return loc, nil
}
