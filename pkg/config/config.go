// Package config loads the agent configuration: YAML file first, then
// environment overrides. Every field has a usable default so a missing
// config file is not an error.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aura-comms/aura/pkg/fault"
)

// Environment variables honored by Load.
const (
	EnvConfigDir = "AURA_CONFIG_DIR"
	EnvLogLevel  = "AURA_LOG_LEVEL"
	EnvSimSeed   = "AURA_SIM_SEED"
)

// ConfigFileName is the file Load looks for inside the config directory.
const ConfigFileName = "config.yaml"

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Threshold ThresholdConfig `yaml:"threshold"`
	Sim       SimConfig       `yaml:"sim"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// StorageConfig selects and tunes the durable store.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`
	// Path is the SQLite database file. Relative paths resolve against
	// the config directory.
	Path string `yaml:"path"`
}

// ThresholdConfig tunes the signing coordinator.
type ThresholdConfig struct {
	// RoundTimeout bounds each signing round, e.g. "10s".
	RoundTimeout time.Duration `yaml:"round_timeout"`
	// PrewarmOnRotation runs round 1 eagerly after each epoch transition.
	PrewarmOnRotation bool `yaml:"prewarm_on_rotation"`
}

// SimConfig seeds deterministic runs.
type SimConfig struct {
	Seed    int64  `yaml:"seed"`
	StartMs uint64 `yaml:"start_ms"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{Backend: "sqlite", Path: "aura.db"},
		Threshold: ThresholdConfig{
			RoundTimeout:      10 * time.Second,
			PrewarmOnRotation: true,
		},
		Sim: SimConfig{Seed: 1},
	}
}

// Dir resolves the config directory: AURA_CONFIG_DIR if set, otherwise
// ~/.aura.
func Dir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aura"
	}
	return filepath.Join(home, ".aura")
}

// Load reads <dir>/config.yaml, falling back to defaults when the file
// is absent, then applies environment overrides. A file that exists but
// does not parse is an error; silently ignoring it would mask typos.
func Load(dir string) (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
			return Config{}, fault.Newf(fault.Invalid, "BAD_CONFIG", "cannot parse %s", path).WithCause(uerr)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return Config{}, fault.Newf(fault.Storage, "CONFIG_READ", "cannot read %s", path).WithCause(err)
	}

	applyEnv(&cfg)

	if cfg.Storage.Backend != "sqlite" && cfg.Storage.Backend != "memory" {
		return Config{}, fault.Newf(fault.Invalid, "BAD_CONFIG",
			"unknown storage backend %q", cfg.Storage.Backend)
	}
	if !filepath.IsAbs(cfg.Storage.Path) {
		cfg.Storage.Path = filepath.Join(dir, cfg.Storage.Path)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.Log.Level = lvl
	}
	if seed := os.Getenv(EnvSimSeed); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Sim.Seed = v
		}
	}
}

// SlogLevel maps the configured level name to a slog level. Unknown
// names map to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
