package sqlpatch_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/twpatch/internal/sqlpatch"
)

const fullScript = `-- Tables to import:
-- land_units_tables
-- unit_stats
-- End of tables to import.
-- Tables to create:
-- foo:data__
-- End of tables to create.
-- Params:
-- multiplier:2
-- faction:wh_main_emp
-- End of params.
-- Strings to replace:
-- FACTION_FILTER:::
--   faction = '$faction'
-- ------
-- TARGET:::land_units_v1
-- End of strings to replace.
UPDATE TARGET SET num = num * $0 WHERE FACTION_FILTER AND pack = '$pack_name' AND x = $9;
`

func Test_ParseScript_Reads_All_Blocks_And_Strips_Them_From_Body(t *testing.T) {
	t.Parallel()

	s, err := sqlpatch.ParseScript("a.sql", fullScript)
	require.NoError(t, err)

	want := sqlpatch.Metadata{
		Affected: []string{"land_units", "unit_stats"},
		Created:  []sqlpatch.CreatedTable{{Table: "foo", File: "data__"}},
		Params: []sqlpatch.Param{
			{Key: "multiplier", Default: "2"},
			{Key: "faction", Default: "wh_main_emp"},
		},
		Replacements: []sqlpatch.Replacement{
			{Key: "FACTION_FILTER", Value: "faction = '$faction'"},
			{Key: "TARGET", Value: "land_units_v1"},
		},
	}

	if diff := cmp.Diff(want, s.Metadata); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}

	require.NotContains(t, s.Body, "-- Tables to import:")
	require.NotContains(t, s.Body, "-- Params:")
	require.NotContains(t, s.Body, ":::")
	require.Contains(t, s.Body, "UPDATE TARGET")
}

func Test_Render_Binds_Supplied_Params_Defaults_And_Pack_Name(t *testing.T) {
	t.Parallel()

	s, err := sqlpatch.ParseScript("a.sql", fullScript)
	require.NoError(t, err)

	got := s.Render([]string{"3"}, "!!!!!!!!!!_override.pack")
	want := "UPDATE land_units_v1 SET num = num * 3 WHERE faction = 'wh_main_emp' AND pack = '!!!!!!!!!!_override.pack' AND x = $9;\n"

	require.Equal(t, want, got)

	got = s.Render([]string{"3", "wh_main_brt"}, "p")
	require.Contains(t, got, "faction = 'wh_main_brt'")
}

func Test_Render_Uses_Declared_Default_When_No_Params_Supplied(t *testing.T) {
	t.Parallel()

	s, err := sqlpatch.ParseScript("b.sql", `-- Tables to import:
-- foo
-- End of tables to import.
-- Params:
-- value:1.0
-- End of params.
UPDATE foo_v1 SET value = $0;
`)
	require.NoError(t, err)

	require.Equal(t, "UPDATE foo_v1 SET value = 1.0;\n", s.Render(nil, "x.pack"))
}

func Test_ParseScript_Reports_Missing_Import_Block_But_Keeps_Body(t *testing.T) {
	t.Parallel()

	s, err := sqlpatch.ParseScript("c.sql", "-- Params:\n-- a:1\n-- End of params.\nSELECT $a;\n")

	require.Error(t, err)
	require.True(t, errors.Is(err, sqlpatch.ErrScriptFormat))
	require.NotNil(t, s)
	require.Equal(t, []sqlpatch.Param{{Key: "a", Default: "1"}}, s.Metadata.Params)
	require.Equal(t, "SELECT 1;\n", s.Render(nil, "p"))
}

func Test_ParseScript_Reports_Unbalanced_Markers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{name: "end before start", text: "-- End of tables to import.\n-- Tables to import:\n-- a\n"},
		{name: "start without end", text: "-- Tables to import:\n-- a\n"},
		{name: "created without file", text: "-- Tables to import:\n-- a\n-- End of tables to import.\n-- Tables to create:\n-- foo\n-- End of tables to create.\n"},
		{name: "replacement without value", text: "-- Tables to import:\n-- a\n-- End of tables to import.\n-- Strings to replace:\n-- KEY only\n-- End of strings to replace.\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := sqlpatch.ParseScript("x.sql", tt.text)
			if !errors.Is(err, sqlpatch.ErrScriptFormat) {
				t.Fatalf("err=%v, want ErrScriptFormat", err)
			}
		})
	}
}

func Test_ParseScript_Strips_Replacement_Block_When_Nothing_Follows_It(t *testing.T) {
	t.Parallel()

	s, err := sqlpatch.ParseScript("e.sql", `-- Tables to import:
-- a
-- End of tables to import.
-- Strings to replace:
-- KEY:::value
-- End of strings to replace.
`)
	require.NoError(t, err)

	require.Equal(t, []sqlpatch.Replacement{{Key: "KEY", Value: "value"}}, s.Metadata.Replacements)
	require.Empty(t, s.Body)
	require.Empty(t, s.Render(nil, "p"))
}

func Test_Render_Leaves_Unknown_Tokens_Untouched(t *testing.T) {
	t.Parallel()

	s, err := sqlpatch.ParseScript("d.sql", "-- Tables to import:\n-- a\n-- End of tables to import.\nSELECT '$nope', $7;\n")
	require.NoError(t, err)

	require.Equal(t, "SELECT '$nope', $7;\n", s.Render([]string{"x"}, "p"))
}

func Test_ScriptError_Formats_Cause_Then_Script(t *testing.T) {
	t.Parallel()

	err := &sqlpatch.ScriptError{Index: 2, Path: "scripts/b.sql", Err: sqlpatch.ErrScript}

	require.Equal(t, "script failed (script=2 path=scripts/b.sql)", err.Error())
	require.ErrorIs(t, err, sqlpatch.ErrScript)
}
