package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Stores   StoresConfig   `yaml:"stores"`
	Printers PrintersConfig `yaml:"printers"`
	Resolve  ResolveConfig  `yaml:"resolve"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig points at the lookup database the profiles' SQL runs
// against.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StoresConfig locates the flat JSON configuration files and the
// template/schema directories.
type StoresConfig struct {
	ProfilesPath string `yaml:"profiles_path"`
	PrintersPath string `yaml:"printers_path"`
	TemplateDir  string `yaml:"template_dir"`
	SchemaDir    string `yaml:"schema_dir"`
}

type PrintersConfig struct {
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

type ResolveConfig struct {
	WaitTimeout   time.Duration `yaml:"wait_timeout"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type NotifyConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	Secret      string        `yaml:"secret"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	WorkerCount int           `yaml:"worker_count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/lookup.db",
		},
		Stores: StoresConfig{
			ProfilesPath: "./config/profiles.json",
			PrintersPath: "./config/printers.json",
			TemplateDir:  "./config/templates",
			SchemaDir:    "./config/schemas",
		},
		Printers: PrintersConfig{
			ConnectionTimeout: 10 * time.Second,
		},
		Resolve: ResolveConfig{
			WaitTimeout:   5 * time.Second,
			SessionTTL:    30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Notify: NotifyConfig{
			Timeout:     10 * time.Second,
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			WorkerCount: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()

	if v := os.Getenv("LABELFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("LABELFLOW_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("LABELFLOW_PROFILES_PATH"); v != "" {
		cfg.Stores.ProfilesPath = v
	}

	if v := os.Getenv("LABELFLOW_PRINTERS_PATH"); v != "" {
		cfg.Stores.PrintersPath = v
	}

	if v := os.Getenv("LABELFLOW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Stores.ProfilesPath == "" {
		return fmt.Errorf("profiles path is required")
	}

	if c.Stores.PrintersPath == "" {
		return fmt.Errorf("printers path is required")
	}

	if c.Printers.ConnectionTimeout < 0 {
		return fmt.Errorf("connection timeout must be non-negative")
	}

	if c.Resolve.WaitTimeout < 0 {
		return fmt.Errorf("resolve wait timeout must be non-negative")
	}

	if c.Resolve.SessionTTL < 0 {
		return fmt.Errorf("session ttl must be non-negative")
	}

	if c.Notify.RetryCount < 0 {
		return fmt.Errorf("notify retry count must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
