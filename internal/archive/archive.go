// Package archive models data archives: named containers of path-addressed
// records, ordered into priority stacks.
//
// Every Archive owns its record map. Insert stores a copy and lookups return
// copies, so no record is ever shared between two archives and source
// archives stay untouched while the override archive is assembled.
package archive

import (
	"slices"
	"strings"
)

// Category classifies an archive by how the game loads it.
type Category uint8

// Archive categories. Movie archives are loaded automatically by the game
// even when the load order does not name them.
const (
	CategoryBoot Category = iota
	CategoryRelease
	CategoryPatch
	CategoryMod
	CategoryMovie
)

var categoryNames = [...]string{"boot", "release", "patch", "mod", "movie"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}

	return "unknown"
}

// Kind tells how a record's bytes are interpreted.
type Kind uint8

// Record kinds.
const (
	KindOpaque Kind = iota
	KindTable
	KindLoc
	KindText
)

// Record is one addressable content unit.
type Record struct {
	Path string
	Kind Kind
	Data []byte
}

// Clone returns a copy of r that shares no memory with it.
func (r Record) Clone() Record {
	r.Data = slices.Clone(r.Data)

	return r
}

// Dependency is an archive the game must load before this one.
type Dependency struct {
	Name string
	// Hard dependencies stop the game from loading the archive when missing.
	Hard bool
}

// Archive is a named container of records.
type Archive struct {
	// Name is the archive file name, e.g. "data.pack".
	Name string
	// DiskPath is where the archive was read from. Empty for new archives.
	DiskPath     string
	Category     Category
	Dependencies []Dependency

	records map[string]Record
}

// New returns an empty archive.
func New(name string, category Category) *Archive {
	return &Archive{
		Name:     name,
		Category: category,
		records:  make(map[string]Record),
	}
}

// Insert stores a copy of rec, replacing any record at the same path.
func (a *Archive) Insert(rec Record) {
	a.records[rec.Path] = rec.Clone()
}

// Remove deletes the record at path, if any.
func (a *Archive) Remove(path string) {
	delete(a.records, path)
}

// Record returns a copy of the record at path.
func (a *Archive) Record(path string) (Record, bool) {
	rec, ok := a.records[path]
	if !ok {
		return Record{}, false
	}

	return rec.Clone(), true
}

// Len returns the number of records.
func (a *Archive) Len() int {
	return len(a.records)
}

// Paths returns every record path in ascending order.
func (a *Archive) Paths() []string {
	paths := make([]string, 0, len(a.records))
	for p := range a.records {
		paths = append(paths, p)
	}

	slices.Sort(paths)

	return paths
}

// RecordsWithPrefix returns copies of the records whose path starts with
// prefix, sorted by path.
func (a *Archive) RecordsWithPrefix(prefix string) []Record {
	var out []Record

	for _, p := range a.Paths() {
		if strings.HasPrefix(p, prefix) {
			out = append(out, a.records[p].Clone())
		}
	}

	return out
}

// Stack is an ordered list of archives. Later archives have higher priority:
// a path present in several archives resolves to the last one holding it.
type Stack struct {
	archives []*Archive
}

// NewStack returns a stack ordered lowest to highest priority.
func NewStack(archives ...*Archive) *Stack {
	return &Stack{archives: slices.Clone(archives)}
}

// Archives returns the archives lowest priority first.
func (s *Stack) Archives() []*Archive {
	return slices.Clone(s.archives)
}

// Len returns the number of archives.
func (s *Stack) Len() int {
	return len(s.archives)
}

// Entry is a resolved record together with the archive it came from.
type Entry struct {
	Archive string
	Record  Record
}

// Resolve returns the highest-priority record at path.
func (s *Stack) Resolve(path string) (Entry, bool) {
	for i := len(s.archives) - 1; i >= 0; i-- {
		if rec, ok := s.archives[i].Record(path); ok {
			return Entry{Archive: s.archives[i].Name, Record: rec}, true
		}
	}

	return Entry{}, false
}

// Resolved returns the stack's effective view of every path starting with
// prefix: one entry per path, taken from the highest-priority archive, in
// ascending path order.
func (s *Stack) Resolved(prefix string) []Entry {
	winners := make(map[string]Entry)

	for _, a := range s.archives {
		for p, rec := range a.records {
			if strings.HasPrefix(p, prefix) {
				winners[p] = Entry{Archive: a.Name, Record: rec}
			}
		}
	}

	paths := make([]string, 0, len(winners))
	for p := range winners {
		paths = append(paths, p)
	}

	slices.Sort(paths)

	out := make([]Entry, 0, len(paths))
	for _, p := range paths {
		entry := winners[p]
		entry.Record = entry.Record.Clone()
		out = append(out, entry)
	}

	return out
}
