package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/padsync/internal/utils"
	"gopkg.in/yaml.v3"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigDir  = filepath.Join(home, ".padsync")
	DefaultConfigPath = filepath.Join(DefaultConfigDir, "config.yaml")
	DefaultLogFile    = filepath.Join(DefaultConfigDir, "logs", "padsync.log")
	DefaultDataDir    = filepath.Join(home, "PadSync")
)

const (
	DefaultAddr             = "127.0.0.1:3000"
	DefaultLogLevel         = "info"
	DefaultWatcherDebounce  = 500 * time.Millisecond
	DefaultSuppressWindow   = 2 * time.Second
	DefaultOwnWriteTTL      = 5 * time.Second
	DefaultAutosaveDebounce = time.Second
	DefaultVersionInterval  = 60 * time.Second
)

var (
	ErrNoDataDir       = errors.New("config: data_dir is required")
	ErrInvalidDuration = errors.New("config: duration must be positive")
	ErrInvalidLogLevel = errors.New("config: invalid log level")
	ErrInvalidAddr     = errors.New("config: http.addr is required")
)

type Config struct {
	DataDir    string           `mapstructure:"data_dir" yaml:"data_dir"`
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level"`
	LogFile    string           `mapstructure:"log_file" yaml:"log_file"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	Watcher    WatcherConfig    `mapstructure:"watcher" yaml:"watcher"`
	Autosave   AutosaveConfig   `mapstructure:"autosave" yaml:"autosave"`
	Versioning VersioningConfig `mapstructure:"versioning" yaml:"versioning"`

	// file the config was loaded from, if any
	Path string `mapstructure:"-" yaml:"-"`
}

type HTTPConfig struct {
	Addr  string `mapstructure:"addr" yaml:"addr"`
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

type WatcherConfig struct {
	Debounce       time.Duration `mapstructure:"debounce" yaml:"debounce"`
	SuppressWindow time.Duration `mapstructure:"suppress_window" yaml:"suppress_window"`
	OwnWriteTTL    time.Duration `mapstructure:"own_write_ttl" yaml:"own_write_ttl"`
	Extensions     []string      `mapstructure:"extensions" yaml:"extensions"`
}

type AutosaveConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type VersioningConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
	AuthorName  string        `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string        `mapstructure:"author_email" yaml:"author_email"`
}

// Default returns a config with every field set to its default.
func Default() *Config {
	return &Config{
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
		LogFile:  DefaultLogFile,
		HTTP: HTTPConfig{
			Addr: DefaultAddr,
		},
		Watcher: WatcherConfig{
			Debounce:       DefaultWatcherDebounce,
			SuppressWindow: DefaultSuppressWindow,
			OwnWriteTTL:    DefaultOwnWriteTTL,
			Extensions:     []string{".md"},
		},
		Autosave: AutosaveConfig{
			Debounce: DefaultAutosaveDebounce,
		},
		Versioning: VersioningConfig{
			Enabled:     true,
			Interval:    DefaultVersionInterval,
			AuthorName:  "PadSync",
			AuthorEmail: "padsync@local",
		},
	}
}

// Validate normalizes paths and extensions and rejects unusable values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return ErrNoDataDir
	}
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("config: data_dir: %w", err)
	}
	c.DataDir = dataDir

	if c.LogFile != "" {
		logFile, err := utils.ResolvePath(c.LogFile)
		if err != nil {
			return fmt.Errorf("config: log_file: %w", err)
		}
		c.LogFile = logFile
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return ErrInvalidAddr
	}

	durations := map[string]time.Duration{
		"watcher.debounce":        c.Watcher.Debounce,
		"watcher.suppress_window": c.Watcher.SuppressWindow,
		"watcher.own_write_ttl":   c.Watcher.OwnWriteTTL,
		"autosave.debounce":       c.Autosave.Debounce,
		"versioning.interval":     c.Versioning.Interval,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s=%s", ErrInvalidDuration, key, d)
		}
	}
	if c.Watcher.OwnWriteTTL < c.Watcher.SuppressWindow {
		return fmt.Errorf("config: watcher.own_write_ttl (%s) must be >= watcher.suppress_window (%s)",
			c.Watcher.OwnWriteTTL, c.Watcher.SuppressWindow)
	}

	exts := make([]string, 0, len(c.Watcher.Extensions))
	for _, ext := range c.Watcher.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = []string{".md"}
	}
	c.Watcher.Extensions = exts

	return nil
}

// YAML renders the effective config. The HTTP token is masked.
func (c *Config) YAML() (string, error) {
	out := *c
	if out.HTTP.Token != "" {
		out.HTTP.Token = utils.MaskSecret(out.HTTP.Token)
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Save writes the config as YAML to path.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLogLevel(c.LogLevel)
	return level
}

func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}
