// Package projection mirrors decoded tables into a scratch SQLite database
// so that patch scripts can edit them with plain SQL.
//
// Every table type/version pair becomes one SQL table named
// "<short name>_v<version>" (land_units_tables v12 -> land_units_v12). Two
// extra columns, pack_name and file_name, record which archive record each
// row came from, so rows can be pulled back out per record.
package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/calvinalkan/twpatch/internal/table"
)

// Identity columns appended to every projected table.
const (
	ColumnPackName = "pack_name"
	ColumnFileName = "file_name"
)

// sqliteBusyTimeout is the time SQLite waits when the database is locked.
const sqliteBusyTimeout = 10000 // milliseconds

// Store is an open projection database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. maxConns bounds the
// connection pool; values < 1 mean 1.
func Open(ctx context.Context, path string, maxConns int) (*Store, error) {
	if path == "" {
		return nil, errors.New("open projection: path is empty")
	}

	// journal_mode=DELETE keeps the database a single file, which the
	// snapshot cache relies on when it renames it into place.
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(sqliteBusyTimeout))
	params.Set("_journal_mode", "DELETE")
	params.Set("_synchronous", "NORMAL")

	db, err := sql.Open("sqlite3", fileURI(path)+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(max(maxConns, 1))

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	err = applyPragmas(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Store{db: db}, nil
}

// fileURI escapes each segment of path so that '?', '#' and '%' in file
// names reach SQLite literally.
func fileURI(path string) string {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return "file:" + strings.Join(segments, "/")
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	statements := []string{
		"PRAGMA cache_size = -20000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, stmt := range statements {
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}

	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("close projection: %w", err)
	}

	return nil
}

// Conn borrows one connection from the pool. Callers must Close it.
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("borrow connection: %w", err)
	}

	return conn, nil
}

// VacuumInto writes a compacted copy of the database to dest, which must
// not exist.
func (s *Store) VacuumInto(ctx context.Context, dest string) error {
	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest)
	if err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}

	return nil
}

// SQLName returns the SQL table name for a table type and version.
func SQLName(tableName string, version int) string {
	return fmt.Sprintf("%s_v%d", table.ShortName(tableName), version)
}

// EnsureTable creates the SQL table for name/def if it does not exist.
func (s *Store) EnsureTable(ctx context.Context, tableName string, def table.Definition) error {
	_, err := s.db.ExecContext(ctx, createStatement(tableName, def))
	if err != nil {
		return fmt.Errorf("create table %s: %w", SQLName(tableName, def.Version), err)
	}

	return nil
}

func createStatement(tableName string, def table.Definition) string {
	cols := make([]string, 0, len(def.Columns)+2)

	for _, c := range def.Columns {
		cols = append(cols, quoteIdent(c.Name)+" "+sqlType(c.Type))
	}

	cols = append(cols, quoteIdent(ColumnPackName)+" TEXT NOT NULL", quoteIdent(ColumnFileName)+" TEXT NOT NULL")

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(SQLName(tableName, def.Version)), strings.Join(cols, ", "))
}

func sqlType(t table.ColumnType) string {
	switch t {
	case table.TypeBool, table.TypeInt:
		return "INTEGER"
	case table.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
