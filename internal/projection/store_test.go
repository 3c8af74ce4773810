package projection_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/twpatch/internal/projection"
	"github.com/calvinalkan/twpatch/internal/table"
)

var unitsDef = table.Definition{
	Version: 3,
	Columns: []table.Column{
		{Name: "key", Type: table.TypeString, Key: true},
		{Name: "num_men", Type: table.TypeInt},
		{Name: "mass", Type: table.TypeFloat},
		{Name: "is_hero", Type: table.TypeBool},
	},
}

func openStore(t *testing.T, path string) *projection.Store {
	t.Helper()

	s, err := projection.Open(context.Background(), path, 2)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func unitsTable(rows ...table.Row) *table.Table {
	return &table.Table{Name: "land_units_tables", Definition: unitsDef, Rows: rows}
}

func Test_SQLName_Uses_Short_Name_And_Version(t *testing.T) {
	t.Parallel()

	require.Equal(t, "land_units_v3", projection.SQLName("land_units_tables", 3))
}

func Test_Project_Then_Extract_Returns_Rows_Per_Record_In_Order(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "work.db3"))

	vanilla := unitsTable(
		table.Row{"spearmen", int64(120), 75.5, false},
		table.Row{"general", int64(1), 300.0, true},
	)
	modded := unitsTable(table.Row{"ogres", int64(6), 900.25, false})

	failures, err := s.Project(ctx, []projection.Item{
		{ArchiveName: "data.pack", FileName: "~data__", Table: vanilla},
		{ArchiveName: "mod.pack", FileName: "mod_units", Table: modded},
	})
	require.NoError(t, err)
	require.Empty(t, failures)

	got, err := s.Extract(ctx, "land_units_tables", unitsDef, "data.pack", "~data__")
	require.NoError(t, err)

	if diff := cmp.Diff(vanilla.Rows, got); diff != "" {
		t.Fatalf("vanilla rows mismatch (-want +got):\n%s", diff)
	}

	got, err = s.Extract(ctx, "land_units_tables", unitsDef, "mod.pack", "mod_units")
	require.NoError(t, err)

	if diff := cmp.Diff(modded.Rows, got); diff != "" {
		t.Fatalf("mod rows mismatch (-want +got):\n%s", diff)
	}
}

func Test_Project_Replaces_Rows_When_Record_Is_Projected_Again(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "work.db3"))

	_, err := s.Project(ctx, []projection.Item{{ArchiveName: "a.pack", FileName: "f", Table: unitsTable(table.Row{"old", int64(1), 1.0, false})}})
	require.NoError(t, err)

	_, err = s.Project(ctx, []projection.Item{{ArchiveName: "a.pack", FileName: "f", Table: unitsTable(table.Row{"new", int64(2), 2.0, true})}})
	require.NoError(t, err)

	got, err := s.Extract(ctx, "land_units_tables", unitsDef, "a.pack", "f")
	require.NoError(t, err)
	require.Equal(t, []table.Row{{"new", int64(2), 2.0, true}}, got)
}

func Test_Project_Skips_Failing_Item_And_Keeps_Others(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "work.db3"))

	broken := unitsTable(table.Row{"ok", int64(1), 1.0, false}, table.Row{"short row"})

	failures, err := s.Project(ctx, []projection.Item{
		{ArchiveName: "a.pack", FileName: "broken", Table: broken},
		{ArchiveName: "a.pack", FileName: "fine", Table: unitsTable(table.Row{"x", int64(5), 5.0, true})},
	})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	require.True(t, errors.Is(failures[0], projection.ErrProjection))

	got, err := s.Extract(ctx, "land_units_tables", unitsDef, "a.pack", "broken")
	require.NoError(t, err)
	require.Empty(t, got, "rows of the failed item must be rolled back")

	got, err = s.Extract(ctx, "land_units_tables", unitsDef, "a.pack", "fine")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func Test_Extract_Converts_Values_Written_By_Scripts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "work.db3"))

	require.NoError(t, s.EnsureTable(ctx, "land_units_tables", unitsDef))

	conn, err := s.Conn(ctx)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, `
		INSERT INTO land_units_v3 (key, num_men, mass, is_hero, pack_name, file_name) VALUES ('a', 2.0, 3, 'true', 'p', 'f');
		INSERT INTO land_units_v3 (key, num_men, mass, is_hero, pack_name, file_name) VALUES (7, NULL, NULL, 0, 'p', 'f');
	`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	got, err := s.Extract(ctx, "land_units_tables", unitsDef, "p", "f")
	require.NoError(t, err)

	want := []table.Row{
		{"a", int64(2), 3.0, true},
		{"7", int64(0), 0.0, false},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("converted rows mismatch (-want +got):\n%s", diff)
	}
}

func Test_VacuumInto_Copies_Projected_Tables(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	s := openStore(t, filepath.Join(dir, "vanilla.db3"))

	_, err := s.Project(ctx, []projection.Item{{ArchiveName: "data.pack", FileName: "~data__", Table: unitsTable(table.Row{"a", int64(1), 1.0, false})}})
	require.NoError(t, err)

	copyPath := filepath.Join(dir, "work.db3")
	require.NoError(t, s.VacuumInto(ctx, copyPath))

	work := openStore(t, copyPath)

	got, err := work.Extract(ctx, "land_units_tables", unitsDef, "data.pack", "~data__")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func Test_Open_Creates_Database_At_Literal_Path_When_Name_Has_URI_Characters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "mods 100%", "#1?x")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, "work%20.db3")
	s := openStore(t, path)

	_, err := s.Project(ctx, []projection.Item{{ArchiveName: "data.pack", FileName: "~data__", Table: unitsTable(table.Row{"a", int64(1), 1.0, false})}})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, info.Size())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "work%20.db3", entries[0].Name())
}
