// Package translation builds the localization record of the override
// archive.
//
// Rows are gathered from the community translation corpus and from the loc
// tables of the active mods, highest priority first. The list is then
// optimized against the English reference, the optimized-away keys are
// restored from the installed game, and the result is flattened so the
// first occurrence of each key wins.
package translation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/juju/loggo/v2"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/twpatch/internal/archive"
	"github.com/calvinalkan/twpatch/internal/game"
	"github.com/calvinalkan/twpatch/internal/gitsync"
	"github.com/calvinalkan/twpatch/internal/table"
)

var logger = loggo.GetLogger("twpatch.translation")

// Output record paths.
const (
	ModernPath = "text/!!!!!!!!!!_translated_texts.loc"
	LegacyPath = "text/localisation.loc"

	textPrefix = "text/"
)

var (
	// ErrIO means a corpus or archive file could not be read.
	ErrIO = errors.New("io failure")

	// ErrDecode means a corpus file or loc record could not be decoded.
	ErrDecode = errors.New("decode failure")
)

// Refresher updates a local corpus checkout.
type Refresher interface {
	Refresh(ctx context.Context, repo gitsync.Repo) error
}

// Engine merges translations. The zero value works offline against
// whatever corpus is on disk.
type Engine struct {
	// LocalDir holds user-maintained unit sets. It wins over RemoteDir.
	LocalDir string
	// RemoteDir is the checkout of the community corpus. The fixes table
	// and the English reference are only read from here.
	RemoteDir string
	Remote    string
	Branch    string

	Refresher Refresher
	Workers   int
}

// Request is one merge for one language.
type Request struct {
	Game     *game.Game
	Language string
	// Mods are the load-order archives, lowest priority first.
	Mods []*archive.Archive
	// Base is the installed game.
	Base     *archive.Stack
	Override *archive.Archive
}

// Run builds the localization record for req.Language and inserts it into
// req.Override. Nothing is written when no rows remain. A failed corpus
// refresh is logged and ignored; every other failure aborts.
func (e *Engine) Run(ctx context.Context, req Request) error {
	logger.Infof("merging translations for language %q", req.Language)

	e.refresh(ctx)

	roots := e.roots()
	legacy := req.Game.LegacyLocalisation

	rows, err := e.collect(ctx, roots, req, legacy)
	if err != nil {
		return err
	}

	fixes, err := loadCorpusTSV(e.RemoteDir, req.Game.Key, fixesFilePrefix+req.Language+".tsv")
	if err != nil {
		return err
	}

	if fixes != nil {
		rows = append(rows, fixes.Rows...)
	}

	reference, err := loadCorpusTSV(e.RemoteDir, req.Game.Key, referenceFileName)
	if err != nil {
		return err
	}

	if legacy {
		rows, err = e.backfillLegacy(req.Base, rows)
	} else {
		rows, err = e.optimizeAndBackfill(ctx, req.Base, reference, rows)
	}

	if err != nil {
		return err
	}

	rows = table.Flatten(rows)
	if len(rows) == 0 {
		logger.Infof("no translation rows for %q, nothing written", req.Language)

		return nil
	}

	path := ModernPath
	if legacy {
		path = LegacyPath
	}

	req.Override.Insert(archive.Record{
		Path: path,
		Kind: archive.KindLoc,
		Data: table.EncodeLoc(&table.Loc{Rows: rows}),
	})

	logger.Infof("wrote %d translation rows to %s", len(rows), path)

	return nil
}

func (e *Engine) refresh(ctx context.Context) {
	if e.Refresher == nil || e.Remote == "" || e.RemoteDir == "" {
		return
	}

	err := e.Refresher.Refresh(ctx, gitsync.Repo{Remote: e.Remote, Branch: e.Branch, Dir: e.RemoteDir})
	if err != nil {
		logger.Warningf("translation corpus refresh failed, using local copy: %v", err)
	}
}

func (e *Engine) roots() []string {
	var roots []string

	for _, dir := range []string{e.LocalDir, e.RemoteDir} {
		if dir != "" {
			roots = append(roots, dir)
		}
	}

	return roots
}

// collect walks the mods highest priority first. An archive with a unit set
// contributes its usable translations, any other archive its own loc rows.
func (e *Engine) collect(ctx context.Context, roots []string, req Request, legacy bool) ([]table.LocRow, error) {
	var rows []table.LocRow

	for _, mod := range slices.Backward(req.Mods) {
		units, found, err := LoadUnits(roots, req.Game.Key, mod.Name, req.Language)
		if err != nil {
			return nil, err
		}

		if found {
			logger.Debugf("translation found for %s (%d units)", mod.Name, len(units))

			rows = append(rows, unitRows(units, legacy)...)

			continue
		}

		locs, err := decodeLocs(ctx, mod.Name, mod.RecordsWithPrefix(textPrefix), e.Workers)
		if err != nil {
			return nil, err
		}

		rows = append(rows, table.MergeLocs(locs...).Rows...)
	}

	return rows, nil
}

func unitRows(units []Unit, legacy bool) []table.LocRow {
	rows := make([]table.LocRow, 0, len(units))

	for _, u := range units {
		switch {
		case u.Translated != "" && !u.NeedsRetranslation:
			rows = append(rows, table.LocRow{Key: u.Key, Text: u.Translated})
		case legacy && u.Original != "":
			rows = append(rows, table.LocRow{Key: u.Key, Text: u.Original})
		}
	}

	return rows
}

// decodeLocs decodes the loc records among records in parallel and returns
// them in input order.
func decodeLocs(ctx context.Context, archiveName string, records []archive.Record, workers int) ([]*table.Loc, error) {
	records = slices.DeleteFunc(records, func(r archive.Record) bool { return r.Kind != archive.KindLoc })
	locs := make([]*table.Loc, len(records))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, rec := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			loc, err := table.DecodeLoc(rec.Data)
			if err != nil {
				return fmt.Errorf("%w: %s/%s: %w", ErrDecode, archiveName, rec.Path, err)
			}

			locs[i] = loc

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return locs, nil
}

// Optimize flattens rows and drops every row whose text matches the
// reference text for its key.
func Optimize(rows, reference []table.LocRow) []table.LocRow {
	vanilla := table.Lookup(reference)

	return slices.DeleteFunc(table.Flatten(rows), func(row table.LocRow) bool {
		text, ok := vanilla[row.Key]

		return ok && text == row.Text
	})
}

func (e *Engine) backfillLegacy(base *archive.Stack, rows []table.LocRow) ([]table.LocRow, error) {
	if base == nil {
		return rows, nil
	}

	entry, ok := base.Resolve(LegacyPath)
	if !ok {
		logger.Warningf("installed game has no %s", LegacyPath)

		return rows, nil
	}

	loc, err := table.DecodeLoc(entry.Record.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", ErrDecode, entry.Archive, LegacyPath, err)
	}

	return append(rows, loc.Rows...), nil
}

// optimizeAndBackfill drops rows that only repeat English vanilla text, then
// restores every dropped key: from the installed game's loc tables when it
// has a value there, else from the English reference. Reference rows go to
// the front so anything that follows can still override them.
func (e *Engine) optimizeAndBackfill(
	ctx context.Context, base *archive.Stack, reference *table.Loc, rows []table.LocRow,
) ([]table.LocRow, error) {
	if reference == nil || len(rows) == 0 {
		return rows, nil
	}

	before := table.Keys(rows)
	rows = Optimize(rows, reference.Rows)
	lost := before.Difference(table.Keys(rows))

	if lost.IsEmpty() {
		return rows, nil
	}

	installed, err := e.installedTexts(ctx, base)
	if err != nil {
		return nil, err
	}

	english := table.Lookup(reference.Rows)

	var front, back []table.LocRow

	for _, key := range lost.SortedValues() {
		if text := installed[key]; text != "" {
			back = append(back, table.LocRow{Key: key, Text: text})

			continue
		}

		front = append(front, table.LocRow{Key: key, Text: english[key]})
	}

	logger.Debugf("restored %d optimized keys (%d from installed game, %d from reference)", lost.Size(), len(back), len(front))

	return slices.Concat(front, rows, back), nil
}

// installedTexts maps every key in the installed game's loc tables to the
// last non-empty text seen for it.
func (e *Engine) installedTexts(ctx context.Context, base *archive.Stack) (map[string]string, error) {
	texts := map[string]string{}
	if base == nil {
		return texts, nil
	}

	entries := base.Resolved(textPrefix)
	records := make([]archive.Record, 0, len(entries))

	for _, entry := range entries {
		records = append(records, entry.Record)
	}

	locs, err := decodeLocs(ctx, "base", records, e.Workers)
	if err != nil {
		return nil, err
	}

	for _, loc := range locs {
		for _, row := range loc.Rows {
			if row.Text != "" {
				texts[row.Key] = row.Text
			}
		}
	}

	return texts, nil
}
