// Package game holds the static table of supported titles. Everything that
// differs between titles is a field here, looked up once by key at startup.
package game

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Reserved archive names. Some older titles order movie archives in a way
// that only loads the override last when its name sorts first.
const (
	ReservedArchiveName            = "zzzzzzzzzzzzzzzzzzzzrun_you_fool_thron.pack"
	ReservedArchiveNameAlternative = "!!!!!!!!!!!!!!!!!!!!!run_you_fool_thron.pack"
)

// ErrUnknownGame is returned for keys not in the table.
var ErrUnknownGame = errors.New("unknown game")

// Game describes one supported title.
type Game struct {
	Key        string
	Name       string
	Executable string

	// LegacyLocalisation titles merge one monolithic localisation file at
	// engine level instead of per-string overrides.
	LegacyLocalisation bool

	// UTF16LoadOrder titles write their load-order file as UTF-16.
	UTF16LoadOrder bool

	// AlternativeReservedName selects ReservedArchiveNameAlternative.
	AlternativeReservedName bool

	// HardDependencies marks the override archive's dependency list as hard.
	// Older titles crash on hard dependencies.
	HardDependencies bool
}

// ReservedArchive returns the override archive's file name.
func (g *Game) ReservedArchive() string {
	if g.AlternativeReservedName {
		return ReservedArchiveNameAlternative
	}

	return ReservedArchiveName
}

// DataPath returns the data directory of an install.
func (g *Game) DataPath(installPath string) string {
	return filepath.Join(installPath, "data")
}

// ExecutablePath returns the game executable of an install.
func (g *Game) ExecutablePath(installPath string) string {
	return filepath.Join(installPath, g.Executable)
}

var games = []*Game{
	{Key: "pharaoh_dynasties", Name: "Total War: Pharaoh Dynasties", Executable: "Pharaoh.exe", HardDependencies: true},
	{Key: "pharaoh", Name: "Total War: Pharaoh", Executable: "Pharaoh.exe", HardDependencies: true},
	{Key: "warhammer_3", Name: "Total War: Warhammer III", Executable: "Warhammer3.exe", HardDependencies: true},
	{Key: "troy", Name: "A Total War Saga: Troy", Executable: "Troy.exe", HardDependencies: true},
	{Key: "three_kingdoms", Name: "Total War: Three Kingdoms", Executable: "Three_Kingdoms.exe", HardDependencies: true},
	{Key: "warhammer_2", Name: "Total War: Warhammer II", Executable: "Warhammer2.exe", HardDependencies: true},
	{Key: "warhammer", Name: "Total War: Warhammer", Executable: "Warhammer.exe", HardDependencies: true},
	{
		Key: "thrones_of_britannia", Name: "A Total War Saga: Thrones of Britannia", Executable: "thrones.exe",
		LegacyLocalisation: true, AlternativeReservedName: true,
	},
	{
		Key: "attila", Name: "Total War: Attila", Executable: "Attila.exe",
		LegacyLocalisation: true, AlternativeReservedName: true,
	},
	{
		Key: "rome_2", Name: "Total War: Rome II", Executable: "Rome2.exe",
		LegacyLocalisation: true, AlternativeReservedName: true,
	},
	{
		Key: "shogun_2", Name: "Total War: Shogun 2", Executable: "Shogun2.exe",
		LegacyLocalisation: true, AlternativeReservedName: true,
	},
	{
		Key: "napoleon", Name: "Napoleon: Total War", Executable: "Napoleon.exe",
		LegacyLocalisation: true, UTF16LoadOrder: true,
	},
	{
		Key: "empire", Name: "Empire: Total War", Executable: "Empire.exe",
		LegacyLocalisation: true, UTF16LoadOrder: true,
	},
}

// Lookup returns the game registered under key. Keys are case-insensitive.
func Lookup(key string) (*Game, error) {
	key = strings.ToLower(strings.TrimSpace(key))

	for _, g := range games {
		if g.Key == key {
			return g, nil
		}
	}

	return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownGame, key, strings.Join(Keys(), ", "))
}

// Keys returns every registered key in ascending order.
func Keys() []string {
	keys := make([]string, 0, len(games))
	for _, g := range games {
		keys = append(keys, g.Key)
	}

	slices.Sort(keys)

	return keys
}

// All returns every registered game ordered by key.
func All() []*Game {
	out := slices.Clone(games)
	slices.SortFunc(out, func(a, b *Game) int { return strings.Compare(a.Key, b.Key) })

	return out
}
