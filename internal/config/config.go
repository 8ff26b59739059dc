package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/liliang-cn/channelfinder/pkg/catalog"
	"github.com/liliang-cn/channelfinder/pkg/core"
)

// Environment variables that override the configuration file
const (
	EnvDB        = "CHANNELFINDER_DB"
	EnvQuerySize = "CHANNELFINDER_QUERY_SIZE"
	EnvLogLevel  = "CHANNELFINDER_LOG_LEVEL"
	EnvLogFormat = "CHANNELFINDER_LOG_FORMAT"
)

// StoreConfig locates the SQLite index store.
type StoreConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

// IndexConfig names the indexes of the three resources.
type IndexConfig struct {
	Channel  string `yaml:"channel"`
	Tag      string `yaml:"tag"`
	Property string `yaml:"property"`
}

// QueryConfig holds query defaults.
type QueryConfig struct {
	DefaultSize int `yaml:"default_size"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration structure.
type Config struct {
	Store StoreConfig `yaml:"store"`
	Index IndexConfig `yaml:"index"`
	Query QueryConfig `yaml:"query"`
	Log   LogConfig   `yaml:"log"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Path: "channelfinder.db", BusyTimeoutMS: 5000},
		Index: IndexConfig{Channel: "channelfinder", Tag: "cf_tags", Property: "cf_properties"},
		Query: QueryConfig{DefaultSize: 10000},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a config from path. If the file does not exist, returns defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./channelfinder.yaml first, then
// ~/.config/channelfinder/config.yaml, and falls back to defaults. It
// returns the path it read, or "" when defaults were used.
func LoadDefault() (*Config, string, error) {
	cwdPath := "channelfinder.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return Default(), "", nil
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	return Default(), "", nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadEnv loads .env files into the process environment. Missing files are
// ignored; variables already set are kept.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with the CHANNELFINDER_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDB); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvQuerySize); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s must be an integer, got %q", EnvQuerySize, v)
		}
		c.Query.DefaultSize = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = v
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return errors.New("config: store.path is required")
	}
	if c.Store.BusyTimeoutMS < 0 {
		return errors.New("config: store.busy_timeout_ms must be non-negative")
	}
	if c.Index.Channel == "" || c.Index.Tag == "" || c.Index.Property == "" {
		return errors.New("config: index names cannot be empty")
	}
	if c.Index.Channel == c.Index.Tag || c.Index.Channel == c.Index.Property || c.Index.Tag == c.Index.Property {
		return errors.New("config: index names must be distinct")
	}
	if c.Query.DefaultSize <= 0 {
		return fmt.Errorf("config: query.default_size must be positive, got %d", c.Query.DefaultSize)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
	return nil
}

// Catalog returns the catalog configuration.
func (c *Config) Catalog() catalog.Config {
	return catalog.Config{
		ChannelIndex:  c.Index.Channel,
		TagIndex:      c.Index.Tag,
		PropertyIndex: c.Index.Property,
		DefaultSize:   c.Query.DefaultSize,
	}
}

// StoreConfig returns the index store configuration using logger.
func (c *Config) StoreConfig(logger core.Logger) core.Config {
	sc := core.DefaultConfig()
	sc.Path = c.Store.Path
	if c.Store.BusyTimeoutMS > 0 {
		sc.BusyTimeout = time.Duration(c.Store.BusyTimeoutMS) * time.Millisecond
	}
	sc.Logger = logger
	return sc
}

// Logger builds the logger selected by the log section, writing to w.
func (c *Config) Logger(w io.Writer) (core.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(c.Log.Format, "json") {
		return core.NewJSONLogger(w, level), nil
	}
	return core.NewTextLogger(w, level), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log.level %q", s)
	}
}

func applyDefaults(cfg *Config) {
	d := Default()
	if cfg.Index.Channel == "" {
		cfg.Index.Channel = d.Index.Channel
	}
	if cfg.Index.Tag == "" {
		cfg.Index.Tag = d.Index.Tag
	}
	if cfg.Index.Property == "" {
		cfg.Index.Property = d.Index.Property
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "channelfinder", "config.yaml"), nil
}
