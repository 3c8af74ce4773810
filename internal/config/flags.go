package config

import (
	"fmt"

	flag "github.com/spf13/pflag"
)

// Flag names shared by the commands that accept run settings.
const (
	FlagGame                = "game"
	FlagGamePath            = "game-path"
	FlagLoadOrder           = "load-order"
	FlagTranslationLanguage = "translation-language"
	FlagSQLScript           = "sql-script"
	FlagSkipIntroVideos     = "skip-intro-videos"
	FlagEnableLogging       = "enable-logging"
	FlagEnableDevUI         = "enable-dev-ui"
	FlagUnitMultiplier      = "unit-multiplier"
	FlagOutput              = "output"
	FlagRebuildSnapshot     = "rebuild-snapshot"
	FlagOffline             = "offline"
	FlagVerbose             = "verbose"
)

// RegisterFlags defines the run settings on fs. Defaults are zero values so
// that only flags the user actually passed override other layers.
func RegisterFlags(fs *flag.FlagSet) {
	fs.StringP(FlagGame, "g", "", "Game key (see 'twpatch games')")
	fs.StringP(FlagGamePath, "p", "", "Game install directory")
	fs.StringP(FlagLoadOrder, "l", "", "Load-order file (user script)")
	fs.StringP(FlagTranslationLanguage, "t", "", "Apply translations for language code (e.g. es, de)")
	fs.StringArrayP(FlagSQLScript, "s", nil, "SQL script as <path>;<param>;... (repeatable, runs in order)")
	fs.Bool(FlagSkipIntroVideos, false, "Replace intro videos")
	fs.Bool(FlagEnableLogging, false, "Enable script console logging")
	fs.Bool(FlagEnableDevUI, false, "Show developer-only UI elements")
	fs.Float64P(FlagUnitMultiplier, "m", 0, "Scale unit sizes; single entities get more hit points instead")
	fs.StringP(FlagOutput, "o", "", "Write the override archive here instead of the data directory")
	fs.Bool(FlagRebuildSnapshot, false, "Rebuild the vanilla SQL snapshot even if it looks fresh")
	fs.Bool(FlagOffline, false, "Skip translation and schema refreshes")
	fs.BoolP(FlagVerbose, "v", false, "Debug logging")
}

// ApplyFlags overlays every flag that was set on the command line.
func ApplyFlags(cfg *Config, fs *flag.FlagSet) error {
	var err error

	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}

		err = applyFlag(cfg, fs, f.Name)
	})

	return err
}

func applyFlag(cfg *Config, fs *flag.FlagSet, name string) error {
	var err error

	switch name {
	case FlagGame:
		cfg.Game, err = fs.GetString(name)
	case FlagGamePath:
		cfg.GamePath, err = fs.GetString(name)
	case FlagLoadOrder:
		cfg.LoadOrder, err = fs.GetString(name)
	case FlagTranslationLanguage:
		cfg.TranslationLanguage, err = fs.GetString(name)
	case FlagSQLScript:
		cfg.SQLScripts, err = fs.GetStringArray(name)
	case FlagSkipIntroVideos:
		cfg.SkipIntroVideos, err = fs.GetBool(name)
	case FlagEnableLogging:
		cfg.EnableLogging, err = fs.GetBool(name)
	case FlagEnableDevUI:
		cfg.EnableDevUI, err = fs.GetBool(name)
	case FlagUnitMultiplier:
		cfg.UnitMultiplier, err = fs.GetFloat64(name)
	case FlagOutput:
		cfg.Output, err = fs.GetString(name)
	case FlagRebuildSnapshot:
		cfg.RebuildSnapshot, err = fs.GetBool(name)
	case FlagOffline:
		cfg.Offline, err = fs.GetBool(name)
	case FlagVerbose:
		cfg.Verbose, err = fs.GetBool(name)
	}

	if err != nil {
		return fmt.Errorf("flag --%s: %w", name, err)
	}

	return nil
}
