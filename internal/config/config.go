// Package config loads pt settings from defaults, an optional YAML file,
// a .env file and PT_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PT_REMOTE_URL.
const EnvPrefix = "PT"

// Remote modes.
const (
	RemoteNone     = "none"
	RemoteHTTP     = "http"
	RemotePostgres = "postgres"
)

// Config holds all settings.
type Config struct {
	DataDir string        `mapstructure:"data_dir"`
	UserID  string        `mapstructure:"user_id"`
	Storage StorageConfig `mapstructure:"storage"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Log     LogConfig     `mapstructure:"log"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	Server  ServerConfig  `mapstructure:"server"`
}

type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

type RemoteConfig struct {
	Mode    string        `mapstructure:"mode"`
	URL     string        `mapstructure:"url"`
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type DaemonConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	Debounce      time.Duration `mapstructure:"debounce"`
	StatusAddr    string        `mapstructure:"status_addr"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	DSN            string   `mapstructure:"dsn"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultDataDir returns $XDG_DATA_HOME/pixeltennis, falling back to
// ~/.local/share/pixeltennis.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "pixeltennis")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pixeltennis"
	}
	return filepath.Join(home, ".local", "share", "pixeltennis")
}

// DefaultConfigFile returns $XDG_CONFIG_HOME/pixeltennis/config.yaml.
func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pixeltennis", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("user_id", "")
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("remote.mode", RemoteNone)
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("daemon.probe_interval", 30*time.Second)
	v.SetDefault("daemon.debounce", 250*time.Millisecond)
	v.SetDefault("daemon.status_addr", "127.0.0.1:7788")
	v.SetDefault("server.addr", ":8787")
	v.SetDefault("server.dsn", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
}

// Load reads the configuration. An explicit path must exist; the default
// file is optional. A .env in the working directory is loaded first
// without overriding variables already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
			if explicit || !missing {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown enum values and missing remote settings.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if !slices.Contains([]string{"sqlite", "file"}, c.Storage.Backend) {
		return fmt.Errorf("storage.backend %q must be sqlite or file", c.Storage.Backend)
	}
	switch c.Remote.Mode {
	case RemoteNone:
	case RemoteHTTP:
		if c.Remote.URL == "" {
			return errors.New("remote.url is required when remote.mode is http")
		}
	case RemotePostgres:
		if c.Remote.DSN == "" {
			return errors.New("remote.dsn is required when remote.mode is postgres")
		}
	default:
		return fmt.Errorf("remote.mode %q must be none, http or postgres", c.Remote.Mode)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	if c.Remote.Timeout <= 0 {
		return errors.New("remote.timeout must be positive")
	}
	return nil
}
