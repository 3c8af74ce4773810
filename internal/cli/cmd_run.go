package cli

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/twpatch/internal/config"
	"github.com/calvinalkan/twpatch/internal/fs"
	"github.com/calvinalkan/twpatch/internal/gitsync"
	"github.com/calvinalkan/twpatch/internal/logging"
	"github.com/calvinalkan/twpatch/internal/patcher"
)

// RunCmd returns the run command.
func RunCmd(workDir string, cfg config.Config) *Command {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	config.RegisterFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "run [flags]",
		Short: "Build the override archive",
		Long: `Build the override archive for one game session.

Reads the installed game archives and the load-order file, applies the
enabled passes (intro videos, script logging, translations, unit multiplier,
SQL scripts, developer UI) and saves the reserved archive into the data directory.
Prints the path of the written archive.`,
		NoArgs: true,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execRun(ctx, o, workDir, cfg, flags)
		},
	}
}

func execRun(ctx context.Context, o *IO, workDir string, cfg config.Config, flags *flag.FlagSet) error {
	err := config.ApplyFlags(&cfg, flags)
	if err != nil {
		return err
	}

	cfg = resolvePaths(workDir, cfg)

	err = cfg.Validate()
	if err != nil {
		return err
	}

	err = logging.Configure(o.errOut, cfg.Verbose)
	if err != nil {
		return err
	}

	syncer := gitsync.New(time.Duration(cfg.RefreshTimeoutSeconds) * time.Second)

	res, err := patcher.New(cfg, fs.NewLocker(), syncer).Run(ctx)
	if err != nil {
		return err
	}

	dataPath := res.Game.DataPath(cfg.GamePath)
	if filepath.Dir(res.OutputPath) != dataPath {
		o.Warn("archive written outside the data directory", "copy it to "+dataPath+" before starting the game")
	}

	o.Printf("%s: %d load-order archives, %d records\n", res.Game.Name, len(res.Mods), res.Records)

	if res.SQL != nil && len(res.SQL.Extracted) > 0 {
		o.Printf("sql: %d tables patched\n", len(res.SQL.Extracted))
	}

	o.Println(res.OutputPath)

	return nil
}

// resolvePaths anchors relative paths at workDir. The load-order path is
// left alone: it is relative to the game install.
func resolvePaths(workDir string, cfg config.Config) config.Config {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}

		return filepath.Join(workDir, p)
	}

	cfg.GamePath = abs(cfg.GamePath)
	cfg.Output = abs(cfg.Output)
	cfg.PatchDBDir = abs(cfg.PatchDBDir)
	cfg.SchemaDir = abs(cfg.SchemaDir)
	cfg.TranslationsLocalDir = abs(cfg.TranslationsLocalDir)
	cfg.TranslationsRemoteDir = abs(cfg.TranslationsRemoteDir)

	scripts := make([]string, 0, len(cfg.SQLScripts))

	for _, arg := range cfg.SQLScripts {
		path, params, found := strings.Cut(arg, ";")
		if found {
			scripts = append(scripts, abs(path)+";"+params)
		} else {
			scripts = append(scripts, abs(path))
		}
	}

	cfg.SQLScripts = scripts

	return cfg
}
