// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads and persists the application configuration from
// config.toml, with environment variable overrides and live reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	appName   = "dilag"
	envPrefix = "DILAG__"
)

// Config holds all user-facing settings.
type Config struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`
	DataDir       string `mapstructure:"dataDir"`

	Licensing LicensingConfig `mapstructure:"licensing"`
}

// LicensingConfig configures the remote license authority.
type LicensingConfig struct {
	OrganizationID string `mapstructure:"organizationId"`
	Environment    string `mapstructure:"environment"`
	PurchaseURL    string `mapstructure:"purchaseUrl"`
}

// AppConfig wraps Config with the viper instance backing it and the log
// manager driven by it.
type AppConfig struct {
	Config *Config

	viper      *viper.Viper
	configMu   sync.Mutex
	logManager *LogManager
}

// GetDefaultConfigDir returns the platform config directory for the app.
// XDG_CONFIG_HOME wins when set; the bare "/config" value is used as-is to
// keep docker volume mounts simple.
func GetDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if xdg == "/config" {
			return xdg
		}
		return filepath.Join(xdg, appName)
	}

	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return appName
	}
	return filepath.Join(home, ".config", appName)
}

// GetDefaultDataDir returns the directory holding license state, sessions
// and generated designs.
func GetDefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

// New loads configuration from the given directory (or the default one when
// empty), creating a commented config.toml on first run.
func New(configDir, version string) (*AppConfig, error) {
	if configDir == "" {
		configDir = GetDefaultConfigDir()
	}

	c := &AppConfig{
		viper:      viper.New(),
		logManager: NewLogManager(version),
	}

	c.setDefaults()

	c.viper.SetConfigName("config")
	c.viper.SetConfigType("toml")
	c.viper.AddConfigPath(configDir)

	c.viper.SetEnvPrefix(strings.TrimSuffix(envPrefix, "_"))
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.viper.AutomaticEnv()

	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := writeDefaultConfig(configDir); err != nil {
			return nil, err
		}
		if err := c.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read generated config file: %w", err)
		}
	}

	if err := c.unmarshal(); err != nil {
		return nil, err
	}

	c.logManager.Initialize()
	if err := c.ApplyLogConfig(); err != nil {
		return nil, err
	}

	c.watchConfig()

	return c, nil
}

func (c *AppConfig) setDefaults() {
	c.viper.SetDefault("host", "127.0.0.1")
	c.viper.SetDefault("port", 7575)
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("dataDir", GetDefaultDataDir())
	c.viper.SetDefault("licensing.organizationId", "")
	c.viper.SetDefault("licensing.environment", "production")
	c.viper.SetDefault("licensing.purchaseUrl", "")
}

func (c *AppConfig) unmarshal() error {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	config := &Config{}
	if err := c.viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	config.LogLevel = canonicalizeLogLevel(config.LogLevel)
	c.Config = config
	return nil
}

// watchConfig reloads settings when config.toml changes on disk.
func (c *AppConfig) watchConfig() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Debug().Str("file", e.Name).Msg("Config file changed, reloading")

		if err := c.unmarshal(); err != nil {
			log.Error().Err(err).Msg("Failed to reload config")
			return
		}
		if err := c.ApplyLogConfig(); err != nil {
			log.Error().Err(err).Msg("Failed to apply reloaded log settings")
		}
	})
	c.viper.WatchConfig()
}

// ApplyLogConfig pushes the current log settings into the log manager.
func (c *AppConfig) ApplyLogConfig() error {
	return c.logManager.Apply(
		c.Config.LogLevel,
		c.ResolveLogPath(c.Config.LogPath),
		c.Config.LogMaxSize,
		c.Config.LogMaxBackups,
	)
}

// ResolveLogPath resolves a relative log path against the config directory.
func (c *AppConfig) ResolveLogPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	configFile := c.viper.ConfigFileUsed()
	if configFile == "" {
		return path
	}
	return filepath.Join(filepath.Dir(configFile), path)
}

// ConfigPath returns the path of the loaded config file.
func (c *AppConfig) ConfigPath() string {
	return c.viper.ConfigFileUsed()
}

func setLogLevel(level string) {
	switch canonicalizeLogLevel(level) {
	case "TRACE":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func baseLogWriter(version string) *zerolog.ConsoleWriter {
	return &zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

const configTemplate = `# config.toml - Auto-generated

# Hostname / IP the local API binds to
#
host = "127.0.0.1"

# Port the local API listens on
#
port = 7575

# Log level
#
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
#
logLevel = "INFO"

# Log path
#
# Optional; logs to stderr when unset
#
#logPath = "log/dilag.log"

# Data directory
#
# Holds license state, sessions and generated designs. Defaults to ~/.dilag
#
#dataDir = ""

[licensing]
# Organization ID for license activation
#
organizationId = ""

# License authority environment
#
# Options: "production", "sandbox"
#
environment = "production"
`

// writeDefaultConfig creates the config directory and a commented
// config.toml when none exists yet.
func writeDefaultConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	if err := os.WriteFile(configPath, []byte(configTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Str("path", configPath).Msg("Generated default config file")
	return nil
}

// GenerateConfig writes a default config.toml without loading it, for the
// generate-config command.
func GenerateConfig(configDir string) (string, error) {
	if configDir == "" {
		configDir = GetDefaultConfigDir()
	}
	if err := writeDefaultConfig(configDir); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
