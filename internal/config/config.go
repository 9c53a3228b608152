// Package config provides configuration management for promptvault.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultHTTPAddr is the listen address of the API server.
	DefaultHTTPAddr = "127.0.0.1:37800"
	// DefaultDBDriver selects the embedded database.
	DefaultDBDriver = "sqlite"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PROMPTVAULT_"
	// SettingsEnv points Load at an alternative settings file.
	SettingsEnv = EnvPrefix + "SETTINGS"

	dataDirName      = ".promptvault"
	dbFileName       = "promptvault.db"
	settingsFileName = "settings.json"
)

// Config holds runtime settings. Every field can be set in the settings file
// under its json/yaml key or through PROMPTVAULT_<KEY in upper case>.
type Config struct {
	HTTPAddr            string `json:"http_addr" yaml:"http_addr"`
	DBDriver            string `json:"db_driver" yaml:"db_driver"`
	DBPath              string `json:"db_path" yaml:"db_path"`
	DBDSN               string `json:"db_dsn,omitempty" yaml:"db_dsn,omitempty"`
	LogLevel            string `json:"log_level" yaml:"log_level"`
	LogFormat           string `json:"log_format" yaml:"log_format"`
	JWTSecret           string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
	MaxConns            int    `json:"max_conns" yaml:"max_conns"`
	TokenTTLMinutes     int    `json:"token_ttl_minutes" yaml:"token_ttl_minutes"`
	HistoryDefaultLimit int    `json:"history_default_limit" yaml:"history_default_limit"`
	HistoryMaxLimit     int    `json:"history_max_limit" yaml:"history_max_limit"`
	ListDefaultLimit    int    `json:"list_default_limit" yaml:"list_default_limit"`
	TagListLimit        int    `json:"tag_list_limit" yaml:"tag_list_limit"`
	PopularTagLimit     int    `json:"popular_tag_limit" yaml:"popular_tag_limit"`
}

var (
	global     *Config
	globalOnce sync.Once
)

// DataDir returns the directory holding the database and settings.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), dbFileName)
}

// SettingsPath returns the settings file in use: $PROMPTVAULT_SETTINGS when
// set, the default settings.json otherwise.
func SettingsPath() string {
	if p := os.Getenv(SettingsEnv); p != "" {
		return p
	}
	return filepath.Join(DataDir(), settingsFileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPAddr:            DefaultHTTPAddr,
		DBDriver:            DefaultDBDriver,
		DBPath:              DBPath(),
		LogLevel:            "info",
		LogFormat:           "console",
		MaxConns:            4,
		TokenTTLMinutes:     7 * 24 * 60,
		HistoryDefaultLimit: 20,
		HistoryMaxLimit:     100,
		ListDefaultLimit:    20,
		TagListLimit:        50,
		PopularTagLimit:     20,
	}
}

// Load reads the settings file and applies environment overrides. A missing
// or unparsable settings file yields the defaults.
func Load() (*Config, error) {
	cfg := Default()
	path := SettingsPath()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if perr := decode(path, data, cfg); perr != nil {
			log.Warn().Err(perr).Str("path", path).Msg("Invalid settings file, using defaults")
			cfg = Default()
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config) {
	strs := map[string]*string{
		"HTTP_ADDR":  &cfg.HTTPAddr,
		"DB_DRIVER":  &cfg.DBDriver,
		"DB_PATH":    &cfg.DBPath,
		"DB_DSN":     &cfg.DBDSN,
		"LOG_LEVEL":  &cfg.LogLevel,
		"LOG_FORMAT": &cfg.LogFormat,
		"JWT_SECRET": &cfg.JWTSecret,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_CONNS":             &cfg.MaxConns,
		"TOKEN_TTL_MINUTES":     &cfg.TokenTTLMinutes,
		"HISTORY_DEFAULT_LIMIT": &cfg.HistoryDefaultLimit,
		"HISTORY_MAX_LIMIT":     &cfg.HistoryMaxLimit,
		"LIST_DEFAULT_LIMIT":    &cfg.ListDefaultLimit,
		"TAG_LIST_LIMIT":        &cfg.TagListLimit,
		"POPULAR_TAG_LIMIT":     &cfg.PopularTagLimit,
	}
	for key, dst := range ints {
		v := os.Getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		global = cfg
	})
	return global
}

// ZerologLevel parses LogLevel, falling back to info.
func (c *Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// EnsureDataDir creates the data directory.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file, with a freshly generated
// token secret, unless one already exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	cfg := Default()
	cfg.JWTSecret = uuid.NewString() + uuid.NewString()

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and the default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}
