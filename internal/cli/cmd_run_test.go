package cli_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/twpatch/internal/archive"
	"github.com/calvinalkan/twpatch/internal/cli"
	"github.com/calvinalkan/twpatch/internal/game"
	"github.com/calvinalkan/twpatch/internal/patcher"
)

// The run tests are not parallel: run points the process-wide logger at the
// test's stderr buffer.

func newInstall(t *testing.T, c *cli.CLI) string {
	t.Helper()

	data := filepath.Join(c.Dir, "install", "data")
	require.NoError(t, archive.Save(archive.New("data.pack", archive.CategoryRelease), filepath.Join(data, "data.pack")))
	require.NoError(t, archive.Save(archive.New("mod.pack", archive.CategoryMod), filepath.Join(data, "mod.pack")))
	c.WriteFile(filepath.Join("install", "used_mods.txt"), "mod \"mod.pack\";\n")

	return data
}

func Test_Run_Writes_Reserved_Archive_When_Invoked(t *testing.T) {
	c := cli.NewCLI(t)
	data := newInstall(t, c)

	stdout, stderr, exitCode := c.Run("run",
		"--game", "warhammer_2",
		"--game-path", "install",
		"--load-order", "used_mods.txt",
		"--enable-logging",
		"--offline",
	)

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
	}

	g, err := game.Lookup("warhammer_2")
	require.NoError(t, err)

	outputPath := filepath.Join(data, g.ReservedArchive())

	cli.AssertContains(t, stdout, "Total War: Warhammer II: 1 load-order archives, 1 records")
	cli.AssertContains(t, stdout, outputPath)
	cli.AssertContains(t, stderr, "load order: "+filepath.Join(data, "mod.pack"))
	cli.AssertNotContains(t, stderr, "warning:")

	out, err := archive.Open(outputPath)
	require.NoError(t, err)
	require.Equal(t, []string{patcher.ScriptLoggingPath}, out.Paths())
	require.Equal(t, []archive.Dependency{{Name: "mod.pack", Hard: true}}, out.Dependencies)
}

func Test_Run_Warns_When_Output_Is_Outside_Data_Dir(t *testing.T) {
	c := cli.NewCLI(t)
	newInstall(t, c)

	c.WriteFile("twpatch.json", `{
		"game": "warhammer_2",
		"game_path": "install",
		"load_order": "used_mods.txt",
		"offline": true,
	}`)

	stdout, stderr, exitCode := c.Run("-c", "twpatch.json", "run", "-o", "out/override.pack")

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
	}

	cli.AssertContains(t, stdout, filepath.Join(c.Dir, "out", "override.pack"))
	cli.AssertContains(t, stderr, "warning: archive written outside the data directory")
	require.FileExists(t, filepath.Join(c.Dir, "out", "override.pack"))
}

func Test_Run_Reports_Missing_Settings_When_Invoked(t *testing.T) {
	c := cli.NewCLI(t)
	stderr := c.MustFail("run")

	cli.AssertContains(t, stderr, "missing required setting: game")
	cli.AssertContains(t, stderr, "missing required setting: game_path")
	cli.AssertContains(t, stderr, "missing required setting: load_order")
}

func Test_Run_Fails_For_Unknown_Game_When_Invoked(t *testing.T) {
	c := cli.NewCLI(t)
	newInstall(t, c)

	stderr := c.MustFail("run", "-g", "medieval_3", "-p", "install", "-l", "used_mods.txt", "--offline")

	cli.AssertContains(t, stderr, "medieval_3")
}

func Test_Run_Rejects_Positional_Arguments_When_Invoked(t *testing.T) {
	c := cli.NewCLI(t)
	stderr := c.MustFail("run", "warhammer_2")

	cli.AssertContains(t, stderr, "unexpected arguments: warhammer_2")
}
