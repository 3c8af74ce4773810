package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/twpatch/internal/table"
)

// ErrProjection marks a single table that could not be projected. Callers
// log and skip it.
var ErrProjection = errors.New("projection failed")

// Item is one decoded table record to project.
type Item struct {
	ArchiveName string
	FileName    string
	Table       *table.Table
}

// Project inserts every item in order inside one transaction. A failing item
// is rolled back to its savepoint and reported; the others are kept. The
// returned error is non-nil only when the transaction itself fails.
func (s *Store) Project(ctx context.Context, items []Item) ([]error, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin projection txn: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	var failures []error

	for _, item := range items {
		err = projectOne(ctx, tx, item)
		if err != nil {
			failures = append(failures, fmt.Errorf("%w: %s/%s: %w", ErrProjection, item.ArchiveName, table.RecordPath(item.Table.Name, item.FileName), err))
		}
	}

	err = tx.Commit()
	if err != nil {
		return failures, fmt.Errorf("commit projection txn: %w", err)
	}

	return failures, nil
}

func projectOne(ctx context.Context, tx *sql.Tx, item Item) error {
	_, err := tx.ExecContext(ctx, "SAVEPOINT project_item")
	if err != nil {
		return err
	}

	err = insertRows(ctx, tx, item)
	if err != nil {
		_, _ = tx.ExecContext(ctx, "ROLLBACK TO project_item")
		_, _ = tx.ExecContext(ctx, "RELEASE project_item")

		return err
	}

	_, err = tx.ExecContext(ctx, "RELEASE project_item")

	return err
}

func insertRows(ctx context.Context, tx *sql.Tx, item Item) error {
	t := item.Table
	name := quoteIdent(SQLName(t.Name, t.Definition.Version))

	_, err := tx.ExecContext(ctx, createStatement(t.Name, t.Definition))
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	// Re-projecting a record replaces its previous rows.
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", name, quoteIdent(ColumnPackName), quoteIdent(ColumnFileName)),
		item.ArchiveName, item.FileName,
	)
	if err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}

	if len(t.Rows) == 0 {
		return nil
	}

	cols := make([]string, 0, len(t.Definition.Columns)+2)
	for _, c := range t.Definition.Columns {
		cols = append(cols, quoteIdent(c.Name))
	}

	cols = append(cols, quoteIdent(ColumnPackName), quoteIdent(ColumnFileName))

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", name, strings.Join(cols, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}

	defer func() { _ = stmt.Close() }()

	args := make([]any, len(cols))

	for i, row := range t.Rows {
		if len(row) != len(t.Definition.Columns) {
			return fmt.Errorf("row %d: %d cells, want %d", i, len(row), len(t.Definition.Columns))
		}

		copy(args, row)
		args[len(cols)-2] = item.ArchiveName
		args[len(cols)-1] = item.FileName

		_, err = stmt.ExecContext(ctx, args...)
		if err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	return nil
}

// Extract reads back the rows of one record, in insertion order, converted
// to the cell types of def.
func (s *Store) Extract(ctx context.Context, tableName string, def table.Definition, archiveName, fileName string) ([]table.Row, error) {
	cols := make([]string, 0, len(def.Columns))
	for _, c := range def.Columns {
		cols = append(cols, quoteIdent(c.Name))
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ? ORDER BY rowid",
		strings.Join(cols, ", "),
		quoteIdent(SQLName(tableName, def.Version)),
		quoteIdent(ColumnPackName), quoteIdent(ColumnFileName),
	)

	rows, err := s.db.QueryContext(ctx, query, archiveName, fileName)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", SQLName(tableName, def.Version), err)
	}

	defer func() { _ = rows.Close() }()

	var out []table.Row

	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))

		for i := range raw {
			ptrs[i] = &raw[i]
		}

		err = rows.Scan(ptrs...)
		if err != nil {
			return nil, fmt.Errorf("extract %s: scan: %w", SQLName(tableName, def.Version), err)
		}

		row := make(table.Row, len(cols))

		for i, c := range def.Columns {
			row[i], err = convertCell(c.Type, raw[i])
			if err != nil {
				return nil, fmt.Errorf("extract %s column %s: %w", SQLName(tableName, def.Version), c.Name, err)
			}
		}

		out = append(out, row)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", SQLName(tableName, def.Version), err)
	}

	return out, nil
}

var errCellConversion = errors.New("cannot convert cell")

// convertCell maps a value scanned from SQLite back to the column type.
// Scripts may store values with a different storage class than the column
// declares, so numeric and text forms are accepted where unambiguous. NULL
// becomes the zero value.
func convertCell(typ table.ColumnType, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch typ {
	case table.TypeBool:
		switch x := v.(type) {
		case nil:
			return false, nil
		case int64:
			return x != 0, nil
		case float64:
			return x != 0, nil
		case bool:
			return x, nil
		case string:
			return x == "1" || strings.EqualFold(x, "true"), nil
		}
	case table.TypeInt:
		switch x := v.(type) {
		case nil:
			return int64(0), nil
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case bool:
			if x {
				return int64(1), nil
			}

			return int64(0), nil
		}
	case table.TypeFloat:
		switch x := v.(type) {
		case nil:
			return float64(0), nil
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		}
	case table.TypeString:
		switch x := v.(type) {
		case nil:
			return "", nil
		case string:
			return x, nil
		case int64:
			return fmt.Sprint(x), nil
		case float64:
			return fmt.Sprint(x), nil
		}
	}

	return nil, fmt.Errorf("%w: %T to %s", errCellConversion, v, typ)
}
