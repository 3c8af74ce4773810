// Package config resolves twpatch's configuration. Later layers win:
//
//  1. Defaults
//  2. Global config ($XDG_CONFIG_HOME/twpatch/config.json or ~/.config/twpatch/config.json)
//  3. Explicit config file (--config)
//  4. Environment (TWPATCH_*)
//  5. Command-line flags
//
// Config files are JSONC. The resolved Config is passed explicitly to every
// component that needs it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
//
//nolint:tagliatelle // snake_case for config file
type Config struct {
	Game                string `json:"game,omitempty"                 env:"GAME"`
	GamePath            string `json:"game_path,omitempty"            env:"GAME_PATH"`
	LoadOrder           string `json:"load_order,omitempty"           env:"LOAD_ORDER"`
	TranslationLanguage string `json:"translation_language,omitempty" env:"TRANSLATION_LANGUAGE"`

	// SQLScripts are "<path>;<param>;..." script arguments, run in order.
	SQLScripts []string `json:"sql_scripts,omitempty" env:"SQL_SCRIPTS" envSeparator:"|"`

	SkipIntroVideos bool   `json:"skip_intro_videos,omitempty" env:"SKIP_INTRO_VIDEOS"`
	EnableLogging   bool   `json:"enable_logging,omitempty"    env:"ENABLE_LOGGING"`
	EnableDevUI     bool   `json:"enable_dev_ui,omitempty"     env:"ENABLE_DEV_UI"`
	Output          string `json:"output,omitempty"            env:"OUTPUT"`

	// UnitMultiplier scales unit sizes. 0 leaves units alone.
	UnitMultiplier float64 `json:"unit_multiplier,omitempty" env:"UNIT_MULTIPLIER"`

	RebuildSnapshot      bool `json:"rebuild_snapshot,omitempty"       env:"REBUILD_SNAPSHOT"`
	SkipMalformedScripts bool `json:"skip_malformed_scripts,omitempty" env:"SKIP_MALFORMED_SCRIPTS"`

	PatchDBDir string `json:"patch_db_dir,omitempty" env:"PATCH_DB_DIR"`
	SchemaDir  string `json:"schema_dir,omitempty"   env:"SCHEMA_DIR"`

	// SchemaRemote is a git URL refreshed into SchemaDir before each run.
	// Empty disables the refresh.
	SchemaRemote string `json:"schema_remote,omitempty" env:"SCHEMA_REMOTE"`

	TranslationsLocalDir  string `json:"translations_local_dir,omitempty"  env:"TRANSLATIONS_LOCAL_DIR"`
	TranslationsRemoteDir string `json:"translations_remote_dir,omitempty" env:"TRANSLATIONS_REMOTE_DIR"`
	TranslationsRemote    string `json:"translations_remote,omitempty"     env:"TRANSLATIONS_REMOTE"`
	TranslationsBranch    string `json:"translations_branch,omitempty"     env:"TRANSLATIONS_BRANCH"`

	// Offline skips every network refresh.
	Offline               bool `json:"offline,omitempty"                 env:"OFFLINE"`
	RefreshTimeoutSeconds int  `json:"refresh_timeout_seconds,omitempty" env:"REFRESH_TIMEOUT_SECONDS"`

	// Workers bounds parallel table decoding. 0 means GOMAXPROCS.
	Workers int  `json:"workers,omitempty" env:"WORKERS"`
	Verbose bool `json:"verbose,omitempty" env:"VERBOSE"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global   string // Path to global config if loaded, empty otherwise
	Explicit string // Path to --config file if given
}

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TWPATCH_"

// Default remote for the community translation corpus.
const (
	DefaultTranslationsRemote = "https://github.com/Frodo45127/total_war_translation_hub"
	DefaultTranslationsBranch = "master"
)

const defaultRefreshTimeoutSeconds = 30

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigInvalid      = errors.New("invalid config")
	errMissingField       = errors.New("missing required setting")
	errInvalidValue       = errors.New("invalid setting")
)

// Dir returns twpatch's per-user config directory.
// Uses $XDG_CONFIG_HOME/twpatch if set, otherwise ~/.config/twpatch.
// Returns empty string if the home directory cannot be determined.
func Dir(environ map[string]string) string {
	if xdg := environ["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "twpatch")
	}

	home := environ["HOME"]
	if home == "" {
		var err error

		home, err = os.UserHomeDir()
		if err != nil {
			return ""
		}
	}

	return filepath.Join(home, ".config", "twpatch")
}

// Default returns the default configuration rooted at the user config dir.
func Default(environ map[string]string) Config {
	dir := Dir(environ)

	return Config{
		PatchDBDir:            filepath.Join(dir, "patch_db"),
		SchemaDir:             filepath.Join(dir, "schemas"),
		TranslationsLocalDir:  filepath.Join(dir, "translations_local"),
		TranslationsRemoteDir: filepath.Join(dir, "translations_remote"),
		TranslationsRemote:    DefaultTranslationsRemote,
		TranslationsBranch:    DefaultTranslationsBranch,
		RefreshTimeoutSeconds: defaultRefreshTimeoutSeconds,
	}
}

// Load resolves the configuration. workDir anchors a relative configPath;
// environ supplies both the XDG lookup and the TWPATCH_* layer. Flag values
// are applied separately with ApplyFlags.
func Load(workDir, configPath string, environ map[string]string) (Config, Sources, error) {
	cfg := Default(environ)

	var sources Sources

	if dir := Dir(environ); dir != "" {
		globalPath := filepath.Join(dir, "config.json")

		globalCfg, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, Sources{}, err
		}

		if loaded {
			sources.Global = globalPath
			cfg = merge(cfg, globalCfg)
		}
	}

	if configPath != "" {
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(workDir, configPath)
		}

		explicitCfg, _, err := loadFile(configPath, true)
		if err != nil {
			return Config{}, Sources{}, err
		}

		sources.Explicit = configPath
		cfg = merge(cfg, explicitCfg)
	}

	var envCfg Config

	err := env.ParseWithOptions(&envCfg, env.Options{Prefix: EnvPrefix, Environment: environ})
	if err != nil {
		return Config{}, Sources{}, fmt.Errorf("%w: environment: %w", errConfigInvalid, err)
	}

	cfg = merge(cfg, envCfg)

	return cfg, sources, nil
}

// loadFile loads a JSONC config file. Missing optional files are not an
// error and report loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

// Parse decodes a JSONC config document.
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

// merge overlays every non-zero field of overlay onto base. Booleans can
// only be switched on by a later layer.
func merge(base, overlay Config) Config {
	setString(&base.Game, overlay.Game)
	setString(&base.GamePath, overlay.GamePath)
	setString(&base.LoadOrder, overlay.LoadOrder)
	setString(&base.TranslationLanguage, overlay.TranslationLanguage)
	setString(&base.Output, overlay.Output)
	setString(&base.PatchDBDir, overlay.PatchDBDir)
	setString(&base.SchemaDir, overlay.SchemaDir)
	setString(&base.SchemaRemote, overlay.SchemaRemote)
	setString(&base.TranslationsLocalDir, overlay.TranslationsLocalDir)
	setString(&base.TranslationsRemoteDir, overlay.TranslationsRemoteDir)
	setString(&base.TranslationsRemote, overlay.TranslationsRemote)
	setString(&base.TranslationsBranch, overlay.TranslationsBranch)

	if len(overlay.SQLScripts) > 0 {
		base.SQLScripts = append([]string(nil), overlay.SQLScripts...)
	}

	base.SkipIntroVideos = base.SkipIntroVideos || overlay.SkipIntroVideos
	base.EnableLogging = base.EnableLogging || overlay.EnableLogging
	base.EnableDevUI = base.EnableDevUI || overlay.EnableDevUI
	base.RebuildSnapshot = base.RebuildSnapshot || overlay.RebuildSnapshot
	base.SkipMalformedScripts = base.SkipMalformedScripts || overlay.SkipMalformedScripts
	base.Offline = base.Offline || overlay.Offline
	base.Verbose = base.Verbose || overlay.Verbose

	if overlay.RefreshTimeoutSeconds != 0 {
		base.RefreshTimeoutSeconds = overlay.RefreshTimeoutSeconds
	}

	if overlay.UnitMultiplier != 0 {
		base.UnitMultiplier = overlay.UnitMultiplier
	}

	if overlay.Workers != 0 {
		base.Workers = overlay.Workers
	}

	return base
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the settings a patch run cannot do without.
func (c Config) Validate() error {
	var errs []error

	if c.Game == "" {
		errs = append(errs, fmt.Errorf("%w: game", errMissingField))
	}

	if c.GamePath == "" {
		errs = append(errs, fmt.Errorf("%w: game_path", errMissingField))
	}

	if c.LoadOrder == "" {
		errs = append(errs, fmt.Errorf("%w: load_order", errMissingField))
	}

	if c.PatchDBDir == "" {
		errs = append(errs, fmt.Errorf("%w: patch_db_dir", errMissingField))
	}

	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be >= 0, got %d", errInvalidValue, c.Workers))
	}

	if c.UnitMultiplier < 0 {
		errs = append(errs, fmt.Errorf("%w: unit_multiplier must be >= 0, got %v", errInvalidValue, c.UnitMultiplier))
	}

	if c.RefreshTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("%w: refresh_timeout_seconds must be >= 0", errInvalidValue))
	}

	return errors.Join(errs...)
}

// Format returns the config as indented JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}

// EnvironMap converts os.Environ-style KEY=VALUE pairs into a map.
func EnvironMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			out[k] = v
		}
	}

	return out
}
