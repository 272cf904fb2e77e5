package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".toolgate"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("TOOLGATE_CONFIG")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// Load loads the configuration from file and environment variables.
// Priority: environment > file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("TOOLGATE_PATHS", &cfg.Paths)
	envconfig.Process("TOOLGATE_PIPELINE", &cfg.Pipeline)
	envconfig.Process("TOOLGATE_MODELS", &cfg.Models)
	envconfig.Process("TOOLGATE_OPENAI", &cfg.Providers.OpenAI)
	envconfig.Process("TOOLGATE_ANTHROPIC", &cfg.Providers.Anthropic)
	envconfig.Process("TOOLGATE_CUSTOM", &cfg.Providers.Custom)
	envconfig.Process("TOOLGATE_APPROVAL", &cfg.Approval)
	envconfig.Process("TOOLGATE_AUDIT", &cfg.Audit)
	envconfig.Process("TOOLGATE_TOOLS", &cfg.Tools)
	envconfig.Process("TOOLGATE_STREAM", &cfg.Stream)
	envconfig.Process("TOOLGATE_NOTIFY_SLACK", &cfg.Notify.Slack)

	return cfg, nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// DataDir resolves and creates the data directory.
func DataDir(cfg *Config) (string, error) {
	dir, err := expandHome(cfg.Paths.DataDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// DBPath resolves the sqlite database path from the config.
func DBPath(cfg *Config) (string, error) {
	dir, err := DataDir(cfg)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cfg.Paths.DBFile), nil
}
