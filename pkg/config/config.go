package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sameehj/gatekeeper/pkg/acl"
	"github.com/sameehj/gatekeeper/pkg/command"
	"github.com/sameehj/gatekeeper/pkg/store"
	"gopkg.in/yaml.v3"
)

const (
	PlatformDiscord = "discord"
	PlatformRelay   = "relay"
)

// Config defines runtime settings for the gatekeeper.
type Config struct {
	LogLevel      string        `yaml:"log_level" env:"GATEKEEPER_LOG_LEVEL"`
	LogFormat     string        `yaml:"log_format" env:"GATEKEEPER_LOG_FORMAT"`
	MasterID      string        `yaml:"master_id" env:"GATEKEEPER_MASTER_ID"`
	CommandPrefix string        `yaml:"command_prefix" env:"GATEKEEPER_COMMAND_PREFIX"`
	Platform      string        `yaml:"platform" env:"GATEKEEPER_PLATFORM"`
	WatchState    bool          `yaml:"watch_state" env:"GATEKEEPER_WATCH_STATE"`
	Storage       StorageConfig `yaml:"storage" envPrefix:"GATEKEEPER_STORAGE_"`
	Relay         RelayConfig   `yaml:"relay" envPrefix:"GATEKEEPER_RELAY_"`

	// Token is only ever read from the environment.
	Token string `yaml:"-" env:"BOT_TOKEN"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	Path   string `yaml:"path" env:"PATH"`
}

type RelayConfig struct {
	URL string `yaml:"url" env:"URL"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		LogFormat:     "json",
		MasterID:      acl.DefaultMaster,
		CommandPrefix: command.DefaultPrefix,
		Platform:      PlatformDiscord,
		Storage: StorageConfig{
			Driver: store.DriverJSON,
			Path:   "./data",
		},
	}
}

// LoadConfig loads configuration from a YAML file and environment overrides.
// An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Platform {
	case PlatformDiscord:
	case PlatformRelay:
		if strings.TrimSpace(c.Relay.URL) == "" {
			return errors.New("relay.url is required for the relay platform")
		}
	default:
		return fmt.Errorf("unknown platform %q", c.Platform)
	}
	switch c.Storage.Driver {
	case store.DriverJSON, store.DriverBolt, store.DriverSQLite, store.DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver != store.DriverMemory && strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if strings.TrimSpace(c.MasterID) == "" {
		return errors.New("master_id must not be empty")
	}
	if strings.ContainsAny(c.CommandPrefix, " \t\r\n") {
		return fmt.Errorf("command_prefix %q must not contain whitespace", c.CommandPrefix)
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from dir/.env without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the default location for the config file.
func DefaultConfigPath() string {
	if path := os.Getenv("GATEKEEPER_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gatekeeper", "config.yaml")
}

// ResolvePath returns path when set, otherwise the default path if a file
// exists there, otherwise "".
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	def := DefaultConfigPath()
	if _, err := os.Stat(def); err == nil {
		return def
	}
	return ""
}
