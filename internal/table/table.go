// Package table models the structured records stored inside archives:
// schema-typed relational tables under db/ and localization tables under
// text/. It also carries the binary record codec and the TSV import used by
// the translation corpus.
package table

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ColumnType is the storage type of one column.
type ColumnType string

// Column types. Cells hold bool, int64, float64 and string respectively.
const (
	TypeBool   ColumnType = "bool"
	TypeInt    ColumnType = "int"
	TypeFloat  ColumnType = "float"
	TypeString ColumnType = "string"
)

// Column describes one column of a definition.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	Key  bool       `json:"key,omitempty"`
}

// Definition is one versioned layout of a table.
type Definition struct {
	Version int      `json:"version"`
	Columns []Column `json:"columns"`
}

// ColumnIndex returns the position of the named column, or -1.
func (d *Definition) ColumnIndex(name string) int {
	for i, column := range d.Columns {
		if column.Name == name {
			return i
		}
	}

	return -1
}

// Row is one table row. Cell types follow the definition's column types.
type Row []any

// Table is a decoded relational table record.
type Table struct {
	// Name is the table type name, e.g. "land_units_tables".
	Name       string
	Definition Definition
	Rows       []Row
}

// Clone returns a deep copy of t. Cells are immutable values, so copying the
// row slices is enough.
func (t *Table) Clone() *Table {
	clone := &Table{
		Name: t.Name,
		Definition: Definition{
			Version: t.Definition.Version,
			Columns: append([]Column(nil), t.Definition.Columns...),
		},
		Rows: make([]Row, len(t.Rows)),
	}

	for i, row := range t.Rows {
		clone.Rows[i] = append(Row(nil), row...)
	}

	return clone
}

// Table path layout: db/<name>_tables/<file>.
const (
	dbPrefix     = "db/"
	tablesSuffix = "_tables"
)

var errNotTablePath = errors.New("not a table path")

// NameFromPath returns the table type name ("land_units_tables") and the file
// name from a record path such as "db/land_units_tables/data__".
func NameFromPath(recordPath string) (string, string, error) {
	rest, ok := strings.CutPrefix(recordPath, dbPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", errNotTablePath, recordPath)
	}

	dir, file := path.Split(rest)
	dir = strings.TrimSuffix(dir, "/")

	if dir == "" || file == "" || strings.Contains(dir, "/") {
		return "", "", fmt.Errorf("%w: %s", errNotTablePath, recordPath)
	}

	return dir, file, nil
}

// FolderPrefix returns the record path prefix for a short table name:
// "land_units" -> "db/land_units_tables/". Names that already carry the
// _tables suffix are accepted as-is.
func FolderPrefix(shortName string) string {
	name := strings.TrimSuffix(shortName, tablesSuffix)

	return dbPrefix + name + tablesSuffix + "/"
}

// RecordPath joins a short or full table name and a file name into a record
// path.
func RecordPath(tableName, fileName string) string {
	return FolderPrefix(tableName) + fileName
}

// ShortName strips the _tables suffix: "land_units_tables" -> "land_units".
func ShortName(tableName string) string {
	return strings.TrimSuffix(tableName, tablesSuffix)
}
