package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds the engine configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	// PostgreSQL configuration for the persistence store
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
}

// PostgreSQLConfig contains the persistence store connection settings.
type PostgreSQLConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// DefaultConfig returns a default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		PostgreSQL: PostgreSQLConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "ott_lab",
			User:         "postgres",
			Password:     "",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
	}
}

// Load loads the engine configuration from file, falling back to defaults
// when the path is empty or the file does not exist.
func Load(path string, log logrus.FieldLogger) (*Config, error) {
	log = log.WithField("component", "config")

	if path == "" {
		log.Info("No config path provided, using defaults")
		return applyEnvOverrides(DefaultConfig()), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.WithField("path", path).Info("Config file not found, using defaults")
		return applyEnvOverrides(DefaultConfig()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for missing fields
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PostgreSQL.Host == "" {
		cfg.PostgreSQL.Host = "localhost"
	}
	if cfg.PostgreSQL.Port == 0 {
		cfg.PostgreSQL.Port = 5432
	}
	if cfg.PostgreSQL.Database == "" {
		cfg.PostgreSQL.Database = "ott_lab"
	}
	if cfg.PostgreSQL.User == "" {
		cfg.PostgreSQL.User = "postgres"
	}
	if cfg.PostgreSQL.SSLMode == "" {
		cfg.PostgreSQL.SSLMode = "disable"
	}
	if cfg.PostgreSQL.MaxOpenConns == 0 {
		cfg.PostgreSQL.MaxOpenConns = 10
	}
	if cfg.PostgreSQL.MaxIdleConns == 0 {
		cfg.PostgreSQL.MaxIdleConns = 5
	}

	applyEnvOverrides(&cfg)

	log.WithFields(logrus.Fields{
		"listen_addr": cfg.ListenAddr,
		"pg_host":     cfg.PostgreSQL.Host,
		"pg_port":     cfg.PostgreSQL.Port,
		"pg_database": cfg.PostgreSQL.Database,
	}).Info("Loaded engine configuration")

	return &cfg, nil
}

// applyEnvOverrides lets deployment environments override store credentials
// without touching the config file.
func applyEnvOverrides(cfg *Config) *Config {
	if v := os.Getenv("OTT_LAB_PG_HOST"); v != "" {
		cfg.PostgreSQL.Host = v
	}
	if v := os.Getenv("OTT_LAB_PG_PASSWORD"); v != "" {
		cfg.PostgreSQL.Password = v
	}
	if v := os.Getenv("OTT_LAB_PG_DATABASE"); v != "" {
		cfg.PostgreSQL.Database = v
	}
	if v := os.Getenv("OTT_LAB_PG_USER"); v != "" {
		cfg.PostgreSQL.User = v
	}
	return cfg
}

// Validate validates the engine configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	return c.PostgreSQL.Validate()
}

// Validate validates the PostgreSQL configuration.
func (c *PostgreSQLConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be greater than 0")
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("max_idle_conns must be greater than 0")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgreSQLConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
