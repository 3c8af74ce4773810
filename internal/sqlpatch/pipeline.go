// Package sqlpatch applies user SQL scripts to the game's tables.
//
// Tables from the base game, the active mods and the override archive are
// projected into a scratch SQLite store, scripts run against it one after
// another, and the tables the scripts declare as affected are pulled back
// out and written into the override archive. The base-game part of the
// store is cached per game as a snapshot so it is only rebuilt when the
// game itself changes.
package sqlpatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/loggo/v2"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/twpatch/internal/archive"
	"github.com/calvinalkan/twpatch/internal/fs"
	"github.com/calvinalkan/twpatch/internal/projection"
	"github.com/calvinalkan/twpatch/internal/table"
)

var logger = loggo.GetLogger("twpatch.sqlpatch")

// lowPriorityMarker is prefixed to base-game file names so that, sorted by
// path, base tables are built before mod tables of the same type.
const lowPriorityMarker = "~"

// Request is one pipeline run.
type Request struct {
	// Game keys the snapshot directory.
	Game           string
	ExecutablePath string
	PatchDBDir     string

	Base     *archive.Stack
	Mods     *archive.Stack
	Override *archive.Archive
	Schema   *table.Schema

	Scripts []ScriptArg

	ForceRebuild bool
	// SkipMalformed skips the body of a script whose metadata is malformed
	// instead of running it without the dropped metadata.
	SkipMalformed bool
	// Workers bounds parallel decoding and the connection pool.
	Workers int
}

// Result reports what a run did.
type Result struct {
	SnapshotRebuilt bool
	// Extracted lists the record paths written into the override archive.
	Extracted []string
	// Failures holds every recorded failure, fatal or not.
	Failures []error
}

// Pipeline runs SQL patch requests.
type Pipeline struct {
	locker *fs.Locker
}

// New returns a Pipeline.
func New(locker *fs.Locker) *Pipeline {
	return &Pipeline{locker: locker}
}

type layer int

const (
	layerBase layer = iota
	layerMod
	layerOverride
)

// source is one table record taking part in a run.
type source struct {
	layer     layer
	archive   string
	path      string
	tableName string
	fileName  string
	data      []byte
	decoded   *table.Table
}

// Run executes req. Scripts run strictly in order; a failing script does not
// stop the ones after it. The returned error matches ErrPatchFailed if any
// script failed, after every script has been attempted and the affected
// tables have been re-extracted.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}

	if len(req.Scripts) == 0 {
		return res, nil
	}

	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	sources := collect(req)
	logger.Infof("collected %d table records", len(sources))

	err := decodeAll(ctx, sources, req.Schema, workers, res)
	if err != nil {
		return res, err
	}

	dir := filepath.Join(req.PatchDBDir, req.Game)

	work, unlock, err := p.openWorkingCopy(ctx, dir, req, sources, workers, res)
	if err != nil {
		return res, err
	}

	defer func() {
		_ = work.Close()
		_ = unlock.Close()
	}()

	affected, created, scriptFailed := runScripts(ctx, work, req, sources, res)

	sources = registerCreated(sources, created, req, res)

	extract(ctx, work, sources, affected, createdPaths(created), req.Override, res)

	if scriptFailed {
		return res, errors.Join(append([]error{ErrPatchFailed}, res.Failures...)...)
	}

	return res, nil
}

// collect gathers table records from the base stack, the mod stack and the
// override archive, in that order, then sorts them by path. The sort is
// stable so equal paths keep their layer order.
func collect(req Request) []source {
	var out []source

	add := func(l layer, archiveName, recordPath string, rec archive.Record) {
		if rec.Kind != archive.KindTable {
			return
		}

		tableName, fileName, err := table.NameFromPath(recordPath)
		if err != nil {
			logger.Debugf("skipping %s: %v", recordPath, err)

			return
		}

		out = append(out, source{
			layer: l, archive: archiveName, path: recordPath,
			tableName: tableName, fileName: fileName, data: rec.Data,
		})
	}

	if req.Base != nil {
		for _, e := range req.Base.Resolved("db/") {
			cut := strings.LastIndexByte(e.Record.Path, '/') + 1
			add(layerBase, e.Archive, e.Record.Path[:cut]+lowPriorityMarker+e.Record.Path[cut:], e.Record)
		}
	}

	if req.Mods != nil {
		for _, e := range req.Mods.Resolved("db/") {
			add(layerMod, e.Archive, e.Record.Path, e.Record)
		}
	}

	for _, rec := range req.Override.RecordsWithPrefix("db/") {
		add(layerOverride, req.Override.Name, rec.Path, rec)
	}

	slices.SortStableFunc(out, func(a, b source) int { return cmp.Compare(a.path, b.path) })

	return out
}

// decodeAll decodes every source in parallel. Decode failures are logged,
// recorded, and leave the source undecoded; only cancellation is fatal.
func decodeAll(ctx context.Context, sources []source, schema *table.Schema, workers int, res *Result) error {
	errs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			t, err := table.Decode(sources[i].tableName, sources[i].data, schema)
			if err != nil {
				errs[i] = fmt.Errorf("%w: %s/%s: %w", ErrDecode, sources[i].archive, sources[i].path, err)

				return nil
			}

			sources[i].decoded = t

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return fmt.Errorf("decode tables: %w", err)
	}

	for _, err := range errs {
		if err != nil {
			logger.Warningf("%v", err)
			res.Failures = append(res.Failures, err)
		}
	}

	return nil
}

func items(sources []source, want func(layer) bool) []projection.Item {
	var out []projection.Item

	for _, s := range sources {
		if s.decoded != nil && want(s.layer) {
			out = append(out, projection.Item{ArchiveName: s.archive, FileName: s.fileName, Table: s.decoded})
		}
	}

	return out
}

func (res *Result) recordProjection(failures []error) {
	for _, f := range failures {
		logger.Warningf("%v", f)
		res.Failures = append(res.Failures, fmt.Errorf("%w: %w", ErrDecode, f))
	}
}

// openWorkingCopy makes sure the snapshot is fresh, copies it to the
// working store and projects the mod and override tables into the copy.
// The returned lock keeps the working store exclusive to this run.
func (p *Pipeline) openWorkingCopy(
	ctx context.Context, dir string, req Request, sources []source, workers int, res *Result,
) (*projection.Store, *fs.Lock, error) {
	snap := &Snapshot{
		Path:           filepath.Join(dir, SnapshotFileName),
		ExecutablePath: req.ExecutablePath,
		Locker:         p.locker,
	}

	workPath := filepath.Join(dir, WorkFileName)

	workLock, err := p.locker.Lock(ctx, workPath+lockSuffix)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: lock working store: %w", ErrIO, err)
	}

	shared, rebuilt, err := snap.Acquire(ctx, req.ForceRebuild, func(ctx context.Context, store *projection.Store) error {
		failures, projErr := store.Project(ctx, items(sources, func(l layer) bool { return l == layerBase }))
		res.recordProjection(failures)

		return projErr
	})
	if err != nil {
		_ = workLock.Close()

		return nil, nil, err
	}

	res.SnapshotRebuilt = rebuilt

	err = copySnapshot(ctx, snap.Path, workPath)

	_ = shared.Close()

	if err != nil {
		_ = workLock.Close()

		return nil, nil, err
	}

	work, err := projection.Open(ctx, workPath, workers)
	if err != nil {
		_ = workLock.Close()

		return nil, nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	failures, err := work.Project(ctx, items(sources, func(l layer) bool { return l != layerBase }))
	res.recordProjection(failures)

	if err != nil {
		_ = work.Close()
		_ = workLock.Close()

		return nil, nil, fmt.Errorf("%w: project mod tables: %w", ErrIO, err)
	}

	return work, workLock, nil
}

func copySnapshot(ctx context.Context, snapshotPath, workPath string) error {
	for _, stale := range []string{workPath, workPath + "-journal"} {
		err := os.Remove(stale)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: remove old working store: %w", ErrIO, err)
		}
	}

	snapshot, err := projection.Open(ctx, snapshotPath, 1)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	err = snapshot.VacuumInto(ctx, workPath)

	closeErr := snapshot.Close()
	if err = errors.Join(err, closeErr); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return nil
}

// runScripts executes every script in order. It returns the table prefixes
// the scripts import, in first-declared order, every created table, and
// whether any script failed.
func runScripts(
	ctx context.Context, work *projection.Store, req Request, sources []source, res *Result,
) ([]string, []CreatedTable, bool) {
	var (
		affected []string
		created  []CreatedTable
		failed   bool
	)

	seen := set.NewStrings()

	addAffected := func(short string) {
		prefix := table.FolderPrefix(short)
		if !seen.Contains(prefix) {
			seen.Add(prefix)
			affected = append(affected, prefix)
		}
	}

	fail := func(i int, path string, err error) {
		scriptErr := &ScriptError{Index: i, Path: path, Err: err}
		logger.Errorf("%v", scriptErr)
		res.Failures = append(res.Failures, scriptErr)
		failed = true
	}

	for i, arg := range req.Scripts {
		logger.Infof("executing script %d: %s (params: %s)", i, arg.Path, strings.Join(arg.Params, ","))

		script, err := LoadScript(arg.Path)
		if script == nil {
			fail(i, arg.Path, err)

			continue
		}

		if err != nil {
			fail(i, arg.Path, err)

			if req.SkipMalformed {
				continue
			}
		}

		for _, short := range script.Metadata.Affected {
			addAffected(short)
		}

		for _, c := range script.Metadata.Created {
			def, defErr := templateDefinition(c.Table, sources, req.Schema)
			if defErr == nil {
				defErr = work.EnsureTable(ctx, c.Table+"_tables", def)
			}

			if defErr != nil {
				fail(i, arg.Path, fmt.Errorf("%w: created table %s: %w", ErrScript, c.Table, defErr))

				continue
			}

			if !slices.Contains(created, c) {
				created = append(created, c)
			}
		}

		err = execScript(ctx, work, script.Render(arg.Params, req.Override.Name))
		if err != nil {
			fail(i, arg.Path, fmt.Errorf("%w: %w", ErrScript, err))
		}
	}

	return affected, created, failed
}

// execScript runs one batch on a single borrowed connection.
func execScript(ctx context.Context, work *projection.Store, sqlText string) error {
	conn, err := work.Conn(ctx)
	if err != nil {
		return err
	}

	defer func() { _ = conn.Close() }()

	_, err = conn.ExecContext(ctx, sqlText)

	return err
}

// templateDefinition picks the layout for a created table: the layout of an
// already decoded table of the same type, else the newest schema layout.
func templateDefinition(short string, sources []source, schema *table.Schema) (table.Definition, error) {
	if t := templateTable(short, sources); t != nil {
		return t.Definition, nil
	}

	return schema.Latest(short + "_tables")
}

func templateTable(short string, sources []source) *table.Table {
	for _, s := range sources {
		if s.decoded != nil && table.ShortName(s.tableName) == short {
			return s.decoded
		}
	}

	return nil
}

// registerCreated adds a zero-row source for every created table whose path
// is not collected yet, so re-extraction picks it up.
func registerCreated(sources []source, created []CreatedTable, req Request, res *Result) []source {
	if len(created) == 0 {
		return sources
	}

	present := set.NewStrings()
	for _, s := range sources {
		present.Add(s.path)
	}

	for _, c := range created {
		path := table.RecordPath(c.Table, c.File)
		if present.Contains(path) {
			continue
		}

		var t *table.Table

		if tmpl := templateTable(c.Table, sources); tmpl != nil {
			t = tmpl.Clone()
			t.Rows = nil
		} else {
			def, err := req.Schema.Latest(c.Table + "_tables")
			if err != nil {
				res.Failures = append(res.Failures, fmt.Errorf("%w: created table %s: %w", ErrDecode, path, err))

				continue
			}

			t = &table.Table{Name: c.Table + "_tables", Definition: def}
		}

		present.Add(path)
		sources = append(sources, source{
			layer: layerOverride, archive: req.Override.Name, path: path,
			tableName: t.Name, fileName: c.File, decoded: t,
		})
	}

	slices.SortStableFunc(sources, func(a, b source) int { return cmp.Compare(a.path, b.path) })

	return sources
}

func createdPaths(created []CreatedTable) set.Strings {
	paths := set.NewStrings()
	for _, c := range created {
		paths.Add(table.RecordPath(c.Table, c.File))
	}

	return paths
}

// extract pulls every affected table back out of the store and writes it
// into the override archive. A table is affected when its path falls under
// an imported prefix or when a script created it. Other tables of a created
// type are left alone. Each source is extracted at most once.
func extract(
	ctx context.Context, work *projection.Store, sources []source, affected []string, created set.Strings,
	override *archive.Archive, res *Result,
) {
	for _, s := range sources {
		if s.decoded == nil {
			continue
		}

		if !created.Contains(s.path) && !slices.ContainsFunc(affected, func(prefix string) bool {
			return strings.HasPrefix(s.path, prefix)
		}) {
			continue
		}

		err := extractOne(ctx, work, s, override)
		if err != nil {
			logger.Errorf("%v", err)
			res.Failures = append(res.Failures, err)

			continue
		}

		res.Extracted = append(res.Extracted, s.path)
	}
}

func extractOne(ctx context.Context, work *projection.Store, s source, override *archive.Archive) error {
	rows, err := work.Extract(ctx, s.tableName, s.decoded.Definition, s.archive, s.fileName)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, s.path, err)
	}

	t := &table.Table{Name: s.tableName, Definition: s.decoded.Definition, Rows: rows}

	data, err := table.Encode(t)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, s.path, err)
	}

	override.Insert(archive.Record{Path: s.path, Kind: archive.KindTable, Data: data})

	return nil
}
