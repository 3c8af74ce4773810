package patcher

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"github.com/calvinalkan/twpatch/internal/archive"
	"github.com/calvinalkan/twpatch/internal/table"
)

var (
	//go:embed stubs/empty.ca_vp8
	emptyCAVP8 []byte

	//go:embed stubs/empty.bik
	emptyBIK []byte
)

// ScriptLoggingPath is the record whose presence turns on the game's script
// console log.
const ScriptLoggingPath = "script/enable_console_logging"

const scriptLoggingContent = "why not working?!!"

// dummyVideo replaces intro keys the game must not find.
const dummyVideo = "dummy"

var introMovieKeys = []string{"startup_movie_01", "startup_movie_02", "startup_movie_03"}

// passInput is what a pass may read. Mutations go to Override only.
type passInput struct {
	Base     *archive.Stack
	Mods     *archive.Stack
	Override *archive.Archive
	Schema   func(ctx context.Context) (*table.Schema, error)
}

// Pass edits the override archive.
type Pass func(ctx context.Context, in passInput) error

// Passes holds the optional passes of one game. A nil field means the game
// does not support that option.
type Passes struct {
	SkipIntroVideos Pass
	ScriptLogging   Pass
	DevUI           Pass
	UnitMultiplier  func(multiplier float64) Pass
}

var passTable = map[string]Passes{
	"pharaoh_dynasties": {SkipIntroVideos: renameVideoNames, ScriptLogging: enableScriptLogging},
	"pharaoh":           {SkipIntroVideos: renameVideoNames, ScriptLogging: enableScriptLogging},
	"warhammer_3":       {ScriptLogging: enableScriptLogging, UnitMultiplier: multiplyUnits},
	"three_kingdoms":    {UnitMultiplier: multiplyUnits},
	"troy":              {SkipIntroVideos: replaceVideoKeys, ScriptLogging: enableScriptLogging},
	"warhammer_2": {
		SkipIntroVideos: stubVideos(emptyCAVP8,
			"movies/startup_movie_01.ca_vp8",
			"movies/startup_movie_02.ca_vp8",
			"movies/startup_movie_03.ca_vp8",
		),
		ScriptLogging: enableScriptLogging,
	},
	"attila": {
		SkipIntroVideos: stubVideos(emptyCAVP8, "movies/intro.ca_vp8", "movies/sega_logo_sting_hd.ca_vp8"),
	},
	"napoleon": {
		SkipIntroVideos: stubVideos(emptyBIK,
			"movies/corei7_intro.bik",
			"movies/ntw_intro.bik",
			"movies/sega_logo_sting_hd.bik",
		),
	},
}

// PassesFor returns the passes of a game. Every game gets the dev UI pass.
func PassesFor(gameKey string) Passes {
	p := passTable[gameKey]
	p.DevUI = enableDevUI

	return p
}

func enableScriptLogging(_ context.Context, in passInput) error {
	in.Override.Insert(archive.Record{
		Path: ScriptLoggingPath,
		Kind: archive.KindText,
		Data: []byte(scriptLoggingContent),
	})

	return nil
}

// stubVideos overwrites intro movies with empty ones.
func stubVideos(stub []byte, paths ...string) Pass {
	return func(_ context.Context, in passInput) error {
		for _, path := range paths {
			in.Override.Insert(archive.Record{Path: path, Kind: archive.KindOpaque, Data: stub})
		}

		return nil
	}
}

// replaceVideoKeys points intro rows of the videos table at a missing
// video. Replacing the movie files crashes the game.
func replaceVideoKeys(ctx context.Context, in passInput) error {
	return editTables(ctx, in, []string{"db/videos_tables/"}, func(t *table.Table) {
		for _, row := range t.Rows {
			if len(row) == 0 {
				continue
			}

			if key, ok := row[0].(string); ok && slices.Contains(introMovieKeys, key) {
				row[0] = dummyVideo
			}
		}
	})
}

// renameVideoNames suffixes the video_name of intro rows so the game cannot
// find the files. The campaign videos table feeds the main menu player.
func renameVideoNames(ctx context.Context, in passInput) error {
	prefixes := []string{"db/videos_tables/", "db/campaign_videos_tables/"}

	return editTables(ctx, in, prefixes, func(t *table.Table) {
		col := t.Definition.ColumnIndex("video_name")
		if col < 0 {
			return
		}

		for _, row := range t.Rows {
			if name, ok := row[col].(string); ok && slices.Contains(introMovieKeys, name) {
				row[col] = name + dummyVideo
			}
		}
	})
}

// editTables applies edit to every table under prefixes from all three
// layers and writes the results into the override archive. Base tables are
// written under their low-priority name so they never shadow a mod's copy.
func editTables(ctx context.Context, in passInput, prefixes []string, edit func(*table.Table)) error {
	schema, err := in.Schema(ctx)
	if err != nil {
		return err
	}

	for _, prefix := range prefixes {
		for _, entry := range tableSources(in, prefix) {
			name, _, err := table.NameFromPath(entry.Record.Path)
			if err != nil {
				continue
			}

			t, err := table.Decode(name, entry.Record.Data, schema)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", entry.Archive, entry.Record.Path, err)
			}

			edit(t)

			data, err := table.Encode(t)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", entry.Archive, entry.Record.Path, err)
			}

			in.Override.Insert(archive.Record{Path: entry.Record.Path, Kind: archive.KindTable, Data: data})
		}
	}

	return nil
}

func tableSources(in passInput, prefix string) []archive.Entry {
	var out []archive.Entry

	if in.Base != nil {
		for _, e := range in.Base.Resolved(prefix) {
			e.Record.Path = lowPriorityPath(e.Record.Path)
			out = append(out, e)
		}
	}

	if in.Mods != nil {
		out = append(out, in.Mods.Resolved(prefix)...)
	}

	for _, rec := range in.Override.RecordsWithPrefix(prefix) {
		out = append(out, archive.Entry{Archive: in.Override.Name, Record: rec})
	}

	return slices.DeleteFunc(out, func(e archive.Entry) bool { return e.Record.Kind != archive.KindTable })
}

func lowPriorityPath(recordPath string) string {
	cut := strings.LastIndexByte(recordPath, '/') + 1

	return recordPath[:cut] + "~" + recordPath[cut:]
}

const (
	devOnlyAttr  = "is_dev_only"
	devOnlyTrue  = `is_dev_only="true"`
	devOnlyFalse = `is_dev_only="false"`
)

// enableDevUI unhides developer-only UI components. Components use both
// visible and is_visible, so the first matching attribute after each
// is_dev_only is flipped.
func enableDevUI(_ context.Context, in passInput) error {
	stack := archive.NewStack(append(stackArchives(in.Base, in.Mods), in.Override)...)

	for _, entry := range stack.Resolved("ui/") {
		if entry.Record.Kind != archive.KindText {
			continue
		}

		text := string(entry.Record.Data)
		if !strings.Contains(text, devOnlyTrue) {
			continue
		}

		in.Override.Insert(archive.Record{
			Path: entry.Record.Path,
			Kind: archive.KindText,
			Data: []byte(unhideDevOnly(text)),
		})
	}

	return nil
}

func unhideDevOnly(text string) string {
	text = strings.ReplaceAll(text, devOnlyTrue, devOnlyFalse)

	var b strings.Builder

	rest := text

	for {
		idx := strings.Index(rest, devOnlyAttr)
		if idx < 0 {
			break
		}

		b.WriteString(rest[:idx])
		rest = strings.Replace(rest[idx:], `visible="false"`, `visible="true"`, 1)
		b.WriteString(rest[:1])
		rest = rest[1:]
	}

	b.WriteString(rest)

	return b.String()
}

func stackArchives(stacks ...*archive.Stack) []*archive.Archive {
	var out []*archive.Archive

	for _, s := range stacks {
		if s != nil {
			out = append(out, s.Archives()...)
		}
	}

	return out
}
