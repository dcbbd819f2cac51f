package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/punchd/punchd/internal/logger"
	"github.com/punchd/punchd/internal/tracker"
)

// Defaults for the local API listener.
const (
	DefaultListen   = "127.0.0.1:8412"
	DefaultBasePath = "/api"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	DataDir string         `toml:"data_dir" mapstructure:"data_dir"`
	Log     *LogConfig     `toml:"log" mapstructure:"log"`
	Tracker *TrackerConfig `toml:"tracker" mapstructure:"tracker"`
	Input   *InputConfig   `toml:"input" mapstructure:"input"`
	Server  *ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics *MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Journal *JournalConfig `toml:"journal" mapstructure:"journal"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Dir        string `toml:"dir" mapstructure:"dir"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
	NoColor    bool   `toml:"no_color" mapstructure:"no_color"`
}

type TrackerConfig struct {
	IdleThreshold   time.Duration `toml:"idle_threshold" mapstructure:"idle_threshold"`
	TamperThreshold time.Duration `toml:"tamper_threshold" mapstructure:"tamper_threshold"`
	HeartbeatEvery  time.Duration `toml:"heartbeat_every" mapstructure:"heartbeat_every"`
}

type InputConfig struct {
	Enabled   *bool         `toml:"enabled" mapstructure:"enabled"`
	Interval  time.Duration `toml:"interval" mapstructure:"interval"`
	Threshold time.Duration `toml:"threshold" mapstructure:"threshold"`
}

type ServerConfig struct {
	Listen      string   `toml:"listen" mapstructure:"listen"`
	BasePath    string   `toml:"base_path" mapstructure:"base_path"`
	CORSOrigins []string `toml:"cors_origins" mapstructure:"cors_origins"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type JournalConfig struct {
	DSNs []string `toml:"dsns" mapstructure:"dsns"`
}

// Load parses the TOML file at path and applies defaults.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.normalize(); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Default returns the configuration used when no file is given.
func Default() (*FileConfig, error) {
	fc := &FileConfig{}
	if err := fc.normalize(); err != nil {
		return nil, err
	}
	return fc, nil
}

func (fc *FileConfig) normalize() error {
	if fc.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		fc.DataDir = filepath.Join(base, "punchd")
	}
	if fc.Log == nil {
		fc.Log = &LogConfig{}
	}
	if fc.Tracker == nil {
		fc.Tracker = &TrackerConfig{}
	}
	if fc.Input == nil {
		fc.Input = &InputConfig{}
	}
	if fc.Server == nil {
		fc.Server = &ServerConfig{}
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = DefaultListen
	}
	if fc.Server.BasePath == "" {
		fc.Server.BasePath = DefaultBasePath
	}
	if !strings.HasPrefix(fc.Server.BasePath, "/") {
		return fmt.Errorf("server base_path must start with /: %q", fc.Server.BasePath)
	}
	if fc.Metrics == nil {
		fc.Metrics = &MetricsConfig{}
	}
	if fc.Journal == nil {
		fc.Journal = &JournalConfig{}
	}
	for _, dsn := range fc.Journal.DSNs {
		if strings.TrimSpace(dsn) == "" {
			return fmt.Errorf("journal dsns must not contain empty entries")
		}
	}
	return nil
}

// InputEnabled reports whether the input idle watcher should run. It is on
// unless the config turns it off.
func (fc *FileConfig) InputEnabled() bool {
	if fc.Input == nil || fc.Input.Enabled == nil {
		return true
	}
	return *fc.Input.Enabled
}

// LoggerConfig maps the log section onto the logger package.
func (fc *FileConfig) LoggerConfig() logger.Config {
	if fc.Log == nil {
		return logger.Config{}
	}
	return logger.Config{
		Level:      fc.Log.Level,
		Dir:        fc.Log.Dir,
		FilePath:   fc.Log.File,
		MaxSizeMB:  fc.Log.MaxSizeMB,
		MaxBackups: fc.Log.MaxBackups,
		MaxAgeDays: fc.Log.MaxAgeDays,
		Compress:   fc.Log.Compress,
		NoColor:    fc.Log.NoColor,
	}
}

// TrackerSettings maps the tracker section onto tracker.Config. Zero values
// fall back to the tracker defaults.
func (fc *FileConfig) TrackerSettings() tracker.Config {
	if fc.Tracker == nil {
		return tracker.Config{}
	}
	return tracker.Config{
		IdleThreshold:   fc.Tracker.IdleThreshold,
		TamperThreshold: fc.Tracker.TamperThreshold,
		HeartbeatEvery:  fc.Tracker.HeartbeatEvery,
	}
}
