package patcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/twpatch/internal/archive"
	"github.com/calvinalkan/twpatch/internal/table"
)

func Test_UnhideDevOnly_Flips_Flag_And_Next_Visible_Attribute(t *testing.T) {
	t.Parallel()

	in := `<a is_dev_only="true" visible="false"/><b visible="false"/>` +
		`<c is_dev_only="true"><d is_visible="false"/></c>`
	want := `<a is_dev_only="false" visible="true"/><b visible="false"/>` +
		`<c is_dev_only="false"><d is_visible="true"/></c>`

	require.Equal(t, want, unhideDevOnly(in))
}

func Test_EnableDevUI_Writes_Only_Changed_Highest_Priority_Files(t *testing.T) {
	t.Parallel()

	base := archive.New("data.pack", archive.CategoryRelease)
	base.Insert(archive.Record{Path: "ui/menu", Kind: archive.KindText, Data: []byte(`is_dev_only="true" visible="false"`)})
	base.Insert(archive.Record{Path: "ui/plain", Kind: archive.KindText, Data: []byte(`visible="false"`)})

	mod := archive.New("mod.pack", archive.CategoryMod)
	mod.Insert(archive.Record{Path: "ui/menu", Kind: archive.KindText, Data: []byte(`<x is_dev_only="true" visible="false"/>`)})

	override := archive.New("out.pack", archive.CategoryMovie)

	err := enableDevUI(context.Background(), passInput{
		Base:     archive.NewStack(base),
		Mods:     archive.NewStack(mod),
		Override: override,
	})
	require.NoError(t, err)

	require.Equal(t, []string{"ui/menu"}, override.Paths())

	rec, _ := override.Record("ui/menu")
	require.Equal(t, `<x is_dev_only="false" visible="true"/>`, string(rec.Data))
}

func Test_PassesFor_Gives_Every_Game_Dev_UI(t *testing.T) {
	t.Parallel()

	require.NotNil(t, PassesFor("warhammer_2").SkipIntroVideos)
	require.NotNil(t, PassesFor("three_kingdoms").DevUI)
	require.Nil(t, PassesFor("three_kingdoms").SkipIntroVideos)
	require.Nil(t, PassesFor("attila").ScriptLogging)
	require.NotEmpty(t, emptyCAVP8)
	require.NotEmpty(t, emptyBIK)
}

const unitsSchema = `{
	"tables": {
		"main_units_tables": [
			{"version": 2, "columns": [
				{"name": "unit", "type": "string", "key": true},
				{"name": "land_unit", "type": "string"},
				{"name": "num_men", "type": "int"},
			]},
		],
		"land_units_tables": [
			{"version": 4, "columns": [
				{"name": "key", "type": "string", "key": true},
				{"name": "bonus_hit_points", "type": "int"},
			]},
		],
	},
}`

func encodeTable(t *testing.T, schema *table.Schema, name string, rows ...table.Row) []byte {
	t.Helper()

	def, err := schema.Latest(name)
	require.NoError(t, err)

	data, err := table.Encode(&table.Table{Name: name, Definition: def, Rows: rows})
	require.NoError(t, err)

	return data
}

func decodeRecord(t *testing.T, schema *table.Schema, a *archive.Archive, path string) []table.Row {
	t.Helper()

	rec, ok := a.Record(path)
	require.True(t, ok, "missing %s", path)

	name, _, err := table.NameFromPath(path)
	require.NoError(t, err)

	decoded, err := table.Decode(name, rec.Data, schema)
	require.NoError(t, err)

	return decoded.Rows
}

func Test_MultiplyUnits_Scales_Men_And_Single_Entity_Hit_Points(t *testing.T) {
	t.Parallel()

	schema, err := table.ParseSchema([]byte(unitsSchema))
	require.NoError(t, err)

	base := archive.New("data.pack", archive.CategoryRelease)
	base.Insert(archive.Record{
		Path: "db/main_units_tables/data__",
		Kind: archive.KindTable,
		Data: encodeTable(t, schema, "main_units_tables",
			table.Row{"spearmen", "land_spearmen", int64(120)},
			table.Row{"dragon", "land_dragon", int64(1)},
		),
	})
	base.Insert(archive.Record{
		Path: "db/land_units_tables/data__",
		Kind: archive.KindTable,
		Data: encodeTable(t, schema, "land_units_tables",
			table.Row{"land_spearmen", int64(10)},
			table.Row{"land_dragon", int64(4000)},
		),
	})

	mod := archive.New("mod.pack", archive.CategoryMod)
	mod.Insert(archive.Record{
		Path: "db/main_units_tables/mod_units",
		Kind: archive.KindTable,
		Data: encodeTable(t, schema, "main_units_tables", table.Row{"scouts", "land_scouts", int64(5)}),
	})

	override := archive.New("out.pack", archive.CategoryMovie)

	pass := PassesFor("warhammer_3").UnitMultiplier(1.5)
	err = pass(context.Background(), passInput{
		Base:     archive.NewStack(base),
		Mods:     archive.NewStack(mod),
		Override: override,
		Schema:   func(context.Context) (*table.Schema, error) { return schema, nil },
	})
	require.NoError(t, err)

	require.Equal(t, []table.Row{
		{"spearmen", "land_spearmen", int64(180)},
		{"dragon", "land_dragon", int64(1)},
	}, decodeRecord(t, schema, override, "db/main_units_tables/~data__"))

	require.Equal(t, []table.Row{{"scouts", "land_scouts", int64(8)}},
		decodeRecord(t, schema, override, "db/main_units_tables/mod_units"))

	require.Equal(t, []table.Row{
		{"land_spearmen", int64(10)},
		{"land_dragon", int64(6000)},
	}, decodeRecord(t, schema, override, "db/land_units_tables/~data__"))
}

func Test_PassesFor_Offers_Unit_Multiplier_Only_Where_Supported(t *testing.T) {
	t.Parallel()

	require.NotNil(t, PassesFor("warhammer_3").UnitMultiplier)
	require.NotNil(t, PassesFor("three_kingdoms").UnitMultiplier)
	require.Nil(t, PassesFor("warhammer_2").UnitMultiplier)
}
