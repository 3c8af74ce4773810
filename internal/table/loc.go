package table

import "github.com/juju/collections/set"

// LocRow is one localization entry.
type LocRow struct {
	Key     string
	Text    string
	Tooltip bool
}

// Loc is a decoded localization table. Rows may carry duplicate keys until
// the table is flattened.
type Loc struct {
	Rows []LocRow
}

// MergeLocs concatenates the rows of locs in order.
func MergeLocs(locs ...*Loc) *Loc {
	size := 0
	for _, loc := range locs {
		size += len(loc.Rows)
	}

	merged := &Loc{Rows: make([]LocRow, 0, size)}
	for _, loc := range locs {
		merged.Rows = append(merged.Rows, loc.Rows...)
	}

	return merged
}

// Flatten drops every row whose key already appeared earlier. The first
// occurrence of a key wins, so callers order rows highest priority first.
func Flatten(rows []LocRow) []LocRow {
	seen := set.NewStrings()
	out := make([]LocRow, 0, len(rows))

	for _, row := range rows {
		if seen.Contains(row.Key) {
			continue
		}

		seen.Add(row.Key)
		out = append(out, row)
	}

	return out
}

// Keys returns the set of keys present in rows.
func Keys(rows []LocRow) set.Strings {
	keys := set.NewStrings()
	for _, row := range rows {
		keys.Add(row.Key)
	}

	return keys
}

// Lookup builds a key -> text map in which later rows overwrite earlier ones.
func Lookup(rows []LocRow) map[string]string {
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Text
	}

	return values
}
