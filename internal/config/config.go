// Package config provides application settings management for vmplex.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration structure
type Config struct {
	BatchFile    string        `mapstructure:"batch-file"`    // Batch file to run unattended
	ConfigFile   string        `mapstructure:"config-file"`   // Topology file loaded at startup
	Inventory    string        `mapstructure:"inventory"`     // YAML inventory imported at startup
	Webservice   bool          `mapstructure:"webservice"`    // Networked (remote) control-plane style
	Opts         string        `mapstructure:"opts"`          // key=value,... startup host overrides
	BatchLog     string        `mapstructure:"batch-log"`     // Batch error log path
	SSHPort      int           `mapstructure:"ssh-port"`      // SSH port used to reach remote hosts
	VBoxManage   string        `mapstructure:"vboxmanage"`    // VBoxManage binary name or path
	PollInterval time.Duration `mapstructure:"poll-interval"` // Progress polling interval
	LogLevel     string        `mapstructure:"log-level"`     // Log level (info, error)
	LogFormat    string        `mapstructure:"log-format"`    // Log format (json, text)
	Quiet        bool          `mapstructure:"quiet"`         // Suppress non-error output
}

// Manager defines the interface for configuration management
type Manager interface {
	// Load reads configuration from all sources (files, env vars)
	Load() (*Config, error)

	// SetDefaults establishes default configuration values
	SetDefaults()

	// Validate ensures configuration values are valid and consistent
	Validate(config *Config) error
}

// ViperManager implements the Manager interface using Viper
type ViperManager struct {
	v     *viper.Viper
	paths []string
}

// NewManager creates a new configuration manager searching the standard
// locations: the working directory, ~/.config/vmplex and /etc/vmplex.
func NewManager() Manager {
	paths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "vmplex"))
	}
	paths = append(paths, "/etc/vmplex/")
	return NewManagerWithPaths(paths...)
}

// NewManagerWithPaths creates a manager searching only the given directories.
func NewManagerWithPaths(paths ...string) Manager {
	return &ViperManager{
		v:     viper.New(),
		paths: paths,
	}
}

// SetDefaults establishes default configuration values
func (m *ViperManager) SetDefaults() {
	m.v.SetDefault("batch-file", "")
	m.v.SetDefault("config-file", "")
	m.v.SetDefault("inventory", "")
	m.v.SetDefault("webservice", false)
	m.v.SetDefault("opts", "")
	m.v.SetDefault("batch-log", "vmplex_batch.log")
	m.v.SetDefault("ssh-port", 22)
	m.v.SetDefault("vboxmanage", "VBoxManage")
	m.v.SetDefault("poll-interval", time.Second)
	m.v.SetDefault("log-level", "error")
	m.v.SetDefault("log-format", "text")
	m.v.SetDefault("quiet", false)
}

// Load reads configuration from all sources with proper precedence
func (m *ViperManager) Load() (*Config, error) {
	m.SetDefaults()

	m.v.SetConfigName("vmplex")
	for _, p := range m.paths {
		m.v.AddConfigPath(p)
	}

	m.v.SetEnvPrefix("VMPLEX")
	m.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	m.v.AutomaticEnv()

	formats := []string{"yaml", "yml", "json", "toml"}

	for _, format := range formats {
		m.v.SetConfigType(format)
		if err := m.v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading %s config file: %w", format, err)
			}
		} else {
			break
		}
	}

	var config Config
	if err := m.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := m.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// Validate ensures configuration values are valid and consistent
func (m *ViperManager) Validate(config *Config) error {
	if config.SSHPort < 1 || config.SSHPort > 65535 {
		return fmt.Errorf("ssh-port must be in range 1-65535, got %d", config.SSHPort)
	}

	if config.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive, got %v", config.PollInterval)
	}

	if strings.TrimSpace(config.VBoxManage) == "" {
		return fmt.Errorf("vboxmanage must not be empty")
	}

	if strings.TrimSpace(config.BatchLog) == "" {
		return fmt.Errorf("batch-log must not be empty")
	}

	validLogLevels := map[string]bool{
		"info":  true,
		"error": true,
	}
	if !validLogLevels[config.LogLevel] {
		return fmt.Errorf("invalid log level '%s': must be one of 'info' or 'error'", config.LogLevel)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[config.LogFormat] {
		return fmt.Errorf("invalid log format '%s': must be one of 'json' or 'text'", config.LogFormat)
	}

	return nil
}

// GetEnvVarNames returns a list of all supported environment variable names
func GetEnvVarNames() []string {
	return []string{
		"VMPLEX_BATCH_FILE",
		"VMPLEX_CONFIG_FILE",
		"VMPLEX_INVENTORY",
		"VMPLEX_WEBSERVICE",
		"VMPLEX_OPTS",
		"VMPLEX_BATCH_LOG",
		"VMPLEX_SSH_PORT",
		"VMPLEX_VBOXMANAGE",
		"VMPLEX_POLL_INTERVAL",
		"VMPLEX_LOG_LEVEL",
		"VMPLEX_LOG_FORMAT",
		"VMPLEX_QUIET",
	}
}
