// Package config provides configuration management for agenthost.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/kandev/agenthost/internal/common/logger"
)

// Config holds all configuration sections.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Detection DetectionConfig `mapstructure:"detection"`
	Session   SessionConfig   `mapstructure:"session"`
	Launch    LaunchConfig    `mapstructure:"launch"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	DataDir   string          `mapstructure:"dataDir"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig selects the session store backend.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres
	Path     string `mapstructure:"path"`   // sqlite file
	DSN      string `mapstructure:"dsn"`    // postgres connection string
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the in-memory bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// DetectionConfig bounds the external probes used by the capability detectors.
type DetectionConfig struct {
	NativeProbeTimeout  time.Duration `mapstructure:"nativeProbeTimeout"`
	WSLProbeTimeout     time.Duration `mapstructure:"wslProbeTimeout"`
	WSLStatusTimeout    time.Duration `mapstructure:"wslStatusTimeout"`
	LookupTimeout       time.Duration `mapstructure:"lookupTimeout"`
	MaxConcurrentProbes int           `mapstructure:"maxConcurrentProbes"`
	CustomAgentsFile    string        `mapstructure:"customAgentsFile"`
}

// SessionConfig tunes the interactive session runtime.
type SessionConfig struct {
	MinRuntimeForAutoClose time.Duration `mapstructure:"minRuntimeForAutoClose"`
	TailBufferBytes        int           `mapstructure:"tailBufferBytes"`
	TailKeepBytes          int           `mapstructure:"tailKeepBytes"`
	ResizeDebounce         time.Duration `mapstructure:"resizeDebounce"`
	StopGracePeriod        time.Duration `mapstructure:"stopGracePeriod"`
	DefaultCols            int           `mapstructure:"defaultCols"`
	DefaultRows            int           `mapstructure:"defaultRows"`
	NotFoundSignature      string        `mapstructure:"notFoundSignature"`
	Shell                  string        `mapstructure:"shell"` // empty: /bin/zsh on macOS, $SHELL or /bin/bash on Linux
	// ScrollbackBytes bounds the output replayed to a terminal that attaches late.
	ScrollbackBytes        int           `mapstructure:"scrollbackBytes"`
	// SubscriberTimeout is how long output waits on a stalled terminal before it is disconnected.
	SubscriberTimeout      time.Duration `mapstructure:"subscriberTimeout"`
}

// LaunchConfig tunes the launch dispatcher.
type LaunchConfig struct {
	EditorFocusDelay time.Duration `mapstructure:"editorFocusDelay"`
}

// MCPConfig controls the embedded MCP server.
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// ToLoggerConfig converts the logging section into the logger package's shape.
func (l LoggingConfig) ToLoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{Level: l.Level, Format: l.Format, OutputPath: l.OutputPath}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataDir", "~/.agenthost")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 38421)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "") // empty: <dataDir>/agenthost.db
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxConns", 10)
	v.SetDefault("database.minConns", 1)

	// Empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agenthost")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", logger.DetectFormat())
	v.SetDefault("logging.outputPath", "stderr")

	v.SetDefault("detection.nativeProbeTimeout", 5*time.Second)
	v.SetDefault("detection.wslProbeTimeout", 8*time.Second)
	v.SetDefault("detection.wslStatusTimeout", 3*time.Second)
	v.SetDefault("detection.lookupTimeout", 3*time.Second)
	v.SetDefault("detection.maxConcurrentProbes", 16)
	v.SetDefault("detection.customAgentsFile", "") // empty: <dataDir>/agents.toml

	v.SetDefault("session.minRuntimeForAutoClose", 10*time.Second)
	v.SetDefault("session.tailBufferBytes", 1000)
	v.SetDefault("session.tailKeepBytes", 500)
	v.SetDefault("session.resizeDebounce", 50*time.Millisecond)
	v.SetDefault("session.stopGracePeriod", 2*time.Second)
	v.SetDefault("session.defaultCols", 120)
	v.SetDefault("session.defaultRows", 40)
	v.SetDefault("session.notFoundSignature", "No conversation found with session ID")
	v.SetDefault("session.shell", "")
	v.SetDefault("session.scrollbackBytes", 2*1024*1024)
	v.SetDefault("session.subscriberTimeout", 5*time.Second)

	v.SetDefault("launch.editorFocusDelay", 1500*time.Millisecond)

	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.port", 38422)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTHOST_.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
// A path ending in .yaml or .yml is read as that exact file.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase keys to SNAKE_CASE.
	_ = v.BindEnv("dataDir", "AGENTHOST_DATA_DIR")
	_ = v.BindEnv("database.path", "AGENTHOST_DATABASE_PATH")
	_ = v.BindEnv("detection.customAgentsFile", "AGENTHOST_CUSTOM_AGENTS_FILE")
	_ = v.BindEnv("session.minRuntimeForAutoClose", "AGENTHOST_SESSION_MIN_RUNTIME")
	_ = v.BindEnv("session.tailBufferBytes", "AGENTHOST_SESSION_TAIL_BYTES")

	ext := strings.ToLower(filepath.Ext(configPath))
	if ext == ".yaml" || ext == ".yml" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if configPath != "" {
			v.AddConfigPath(configPath)
		}
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".agenthost"))
		}
		v.AddConfigPath("/etc/agenthost/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// resolvePaths expands ~ and fills path defaults derived from DataDir.
func (c *Config) resolvePaths() error {
	dataDir, err := homedir.Expand(c.DataDir)
	if err != nil {
		return fmt.Errorf("expand dataDir: %w", err)
	}
	c.DataDir = dataDir

	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(dataDir, "agenthost.db")
	} else if c.Database.Path, err = homedir.Expand(c.Database.Path); err != nil {
		return fmt.Errorf("expand database.path: %w", err)
	}

	if c.Detection.CustomAgentsFile == "" {
		c.Detection.CustomAgentsFile = filepath.Join(dataDir, "agents.toml")
	} else if c.Detection.CustomAgentsFile, err = homedir.Expand(c.Detection.CustomAgentsFile); err != nil {
		return fmt.Errorf("expand detection.customAgentsFile: %w", err)
	}
	return nil
}

// validate checks that all configuration values are usable.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Database.DSN == "" {
			errs = append(errs, "database.dsn is required when database.driver is postgres")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	d := cfg.Detection
	if d.NativeProbeTimeout <= 0 || d.WSLProbeTimeout <= 0 || d.WSLStatusTimeout <= 0 || d.LookupTimeout <= 0 {
		errs = append(errs, "detection timeouts must be positive")
	}
	if d.MaxConcurrentProbes <= 0 {
		errs = append(errs, "detection.maxConcurrentProbes must be positive")
	}

	s := cfg.Session
	if s.MinRuntimeForAutoClose < 0 {
		errs = append(errs, "session.minRuntimeForAutoClose must not be negative")
	}
	if s.TailBufferBytes <= 0 {
		errs = append(errs, "session.tailBufferBytes must be positive")
	}
	if s.TailKeepBytes <= 0 || s.TailKeepBytes > s.TailBufferBytes {
		errs = append(errs, "session.tailKeepBytes must be positive and not exceed session.tailBufferBytes")
	}
	if s.ScrollbackBytes < 0 {
		errs = append(errs, "session.scrollbackBytes must not be negative")
	}
	if s.SubscriberTimeout < 0 {
		errs = append(errs, "session.subscriberTimeout must not be negative")
	}
	if s.DefaultCols <= 0 || s.DefaultRows <= 0 {
		errs = append(errs, "session.defaultCols and session.defaultRows must be positive")
	}

	if cfg.Launch.EditorFocusDelay < 0 {
		errs = append(errs, "launch.editorFocusDelay must not be negative")
	}

	if cfg.MCP.Enabled && (cfg.MCP.Port <= 0 || cfg.MCP.Port > 65535) {
		errs = append(errs, "mcp.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
