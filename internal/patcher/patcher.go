// Package patcher assembles the override archive for one game session.
//
// It loads the installed game and the active mods, runs the passes the
// configuration asks for, and saves the result where the game picks it up.
package patcher

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/juju/loggo/v2"

	"github.com/calvinalkan/twpatch/internal/archive"
	"github.com/calvinalkan/twpatch/internal/config"
	"github.com/calvinalkan/twpatch/internal/fs"
	"github.com/calvinalkan/twpatch/internal/game"
	"github.com/calvinalkan/twpatch/internal/gitsync"
	"github.com/calvinalkan/twpatch/internal/loadorder"
	"github.com/calvinalkan/twpatch/internal/sqlpatch"
	"github.com/calvinalkan/twpatch/internal/table"
	"github.com/calvinalkan/twpatch/internal/translation"
)

var logger = loggo.GetLogger("twpatch.patcher")

const schemaBranch = "master"

// Patcher runs one assembly.
type Patcher struct {
	cfg       config.Config
	locker    *fs.Locker
	refresher translation.Refresher

	schema *table.Schema
}

// New returns a Patcher for cfg. refresher may be nil, in which case no
// remote repository is refreshed.
func New(cfg config.Config, locker *fs.Locker, refresher translation.Refresher) *Patcher {
	if cfg.Offline {
		refresher = nil
	}

	return &Patcher{cfg: cfg, locker: locker, refresher: refresher}
}

// Result describes a finished assembly.
type Result struct {
	Game       *game.Game
	OutputPath string
	// Mods are the load-order archives, lowest priority first.
	Mods    []string
	Records int
	SQL     *sqlpatch.Result
}

// Run assembles and saves the override archive.
func (p *Patcher) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	g, err := game.Lookup(p.cfg.Game)
	if err != nil {
		return nil, err
	}

	scripts, err := sqlpatch.ParseScriptArgs(p.cfg.SQLScripts)
	if err != nil {
		return nil, err
	}

	installPath := p.cfg.GamePath
	dataPath := g.DataPath(installPath)
	outputPath := p.outputPath(g, dataPath)

	logger.Infof("patching %s at %s", g.Name, installPath)

	basePaths, err := BaseArchives(dataPath)
	if err != nil {
		return nil, err
	}

	baseArchives, err := archive.OpenAll(basePaths)
	if err != nil {
		return nil, err
	}

	base := archive.NewStack(baseArchives...)
	logger.Infof("loaded %d base archives", base.Len())

	loadOrderPath := p.cfg.LoadOrder
	if !filepath.IsAbs(loadOrderPath) {
		loadOrderPath = filepath.Join(installPath, loadOrderPath)
	}

	resolved, err := loadorder.Resolve(ctx, loadorder.Options{
		LoadOrderPath: loadOrderPath,
		UTF16:         g.UTF16LoadOrder,
		InstallPath:   installPath,
		DataPath:      dataPath,
		// A previous run's output must not be picked up as a movie archive.
		BasePaths: slices.Concat(basePaths, []string{outputPath, filepath.Join(dataPath, g.ReservedArchive())}),
	})
	if err != nil {
		return nil, err
	}

	modPaths := resolved[1:]
	for _, path := range modPaths {
		logger.Infof("load order: %s", path)
	}

	modArchives, err := archive.OpenAll(modPaths)
	if err != nil {
		return nil, err
	}

	mods := archive.NewStack(modArchives...)
	override := archive.New(g.ReservedArchive(), archive.CategoryMovie)

	res := &Result{Game: g, OutputPath: outputPath, Mods: modPaths}

	in := passInput{Base: base, Mods: mods, Override: override, Schema: p.loadSchema(g)}

	err = p.runPasses(ctx, g, in, modArchives, scripts, res)
	if err != nil {
		return res, err
	}

	hard := g.HardDependencies
	for _, path := range modPaths {
		override.Dependencies = append(override.Dependencies, archive.Dependency{Name: filepath.Base(path), Hard: hard})
	}

	err = archive.Save(override, outputPath)
	if err != nil {
		return res, err
	}

	res.Records = override.Len()
	logger.Infof("saved %s (%d records) in %s", outputPath, res.Records, time.Since(start).Round(time.Millisecond))

	return res, nil
}

func (p *Patcher) outputPath(g *game.Game, dataPath string) string {
	if p.cfg.Output != "" {
		return p.cfg.Output
	}

	return filepath.Join(dataPath, g.ReservedArchive())
}

// runPasses applies the enabled passes in their fixed order.
func (p *Patcher) runPasses(
	ctx context.Context, g *game.Game, in passInput, modArchives []*archive.Archive, scripts []sqlpatch.ScriptArg, res *Result,
) error {
	passes := PassesFor(g.Key)

	optional := []struct {
		name    string
		enabled bool
		pass    Pass
	}{
		{name: "skip intro videos", enabled: p.cfg.SkipIntroVideos, pass: passes.SkipIntroVideos},
		{name: "script logging", enabled: p.cfg.EnableLogging, pass: passes.ScriptLogging},
	}

	for _, o := range optional {
		err := runOptional(ctx, g, o.name, o.enabled, o.pass, in)
		if err != nil {
			return err
		}
	}

	if p.cfg.TranslationLanguage != "" {
		engine := &translation.Engine{
			LocalDir:  p.cfg.TranslationsLocalDir,
			RemoteDir: p.cfg.TranslationsRemoteDir,
			Remote:    p.cfg.TranslationsRemote,
			Branch:    p.cfg.TranslationsBranch,
			Refresher: p.refresher,
			Workers:   p.cfg.Workers,
		}

		err := engine.Run(ctx, translation.Request{
			Game:     g,
			Language: p.cfg.TranslationLanguage,
			Mods:     modArchives,
			Base:     in.Base,
			Override: in.Override,
		})
		if err != nil {
			return fmt.Errorf("translations: %w", err)
		}
	}

	if p.cfg.UnitMultiplier > 0 {
		var pass Pass
		if passes.UnitMultiplier != nil {
			pass = passes.UnitMultiplier(p.cfg.UnitMultiplier)
		}

		err := runOptional(ctx, g, "unit multiplier", true, pass, in)
		if err != nil {
			return err
		}
	}

	if len(scripts) > 0 {
		schema, err := in.Schema(ctx)
		if err != nil {
			return err
		}

		pipeline := sqlpatch.New(p.locker)

		res.SQL, err = pipeline.Run(ctx, sqlpatch.Request{
			Game:           g.Key,
			ExecutablePath: g.ExecutablePath(p.cfg.GamePath),
			PatchDBDir:     p.cfg.PatchDBDir,
			Base:           in.Base,
			Mods:           in.Mods,
			Override:       in.Override,
			Schema:         schema,
			Scripts:        scripts,
			ForceRebuild:   p.cfg.RebuildSnapshot,
			SkipMalformed:  p.cfg.SkipMalformedScripts,
			Workers:        p.cfg.Workers,
		})
		if err != nil {
			return err
		}
	}

	return runOptional(ctx, g, "dev ui", p.cfg.EnableDevUI, passes.DevUI, in)
}

func runOptional(ctx context.Context, g *game.Game, name string, enabled bool, pass Pass, in passInput) error {
	if !enabled {
		return nil
	}

	if pass == nil {
		logger.Warningf("%s is not supported for %s, skipping", name, g.Name)

		return nil
	}

	logger.Infof("applying %s", name)

	err := pass(ctx, in)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

// loadSchema returns a loader that refreshes the schema repository and
// reads the game's schema on first use.
func (p *Patcher) loadSchema(g *game.Game) func(ctx context.Context) (*table.Schema, error) {
	return func(ctx context.Context) (*table.Schema, error) {
		if p.schema != nil {
			return p.schema, nil
		}

		if p.refresher != nil && p.cfg.SchemaRemote != "" {
			err := p.refresher.Refresh(ctx, gitsync.Repo{Remote: p.cfg.SchemaRemote, Branch: schemaBranch, Dir: p.cfg.SchemaDir})
			if err != nil {
				logger.Warningf("schema refresh failed, using local copy: %v", err)
			}
		}

		schema, err := table.LoadSchema(SchemaPath(p.cfg.SchemaDir, g.Key))
		if err != nil {
			return nil, err
		}

		p.schema = schema

		return schema, nil
	}
}

// SchemaPath returns where the schema of a game is read from.
func SchemaPath(schemaDir, gameKey string) string {
	return filepath.Join(schemaDir, gameKey+".json")
}
