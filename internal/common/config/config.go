// Package config provides configuration management for crewmesh.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for crewmesh.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Locks        LockConfig         `mapstructure:"locks"`
	Messaging    MessagingConfig    `mapstructure:"messaging"`
	Testing      TestingConfig      `mapstructure:"testing"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds the SQLite database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// NATSConfig holds NATS side-channel configuration.
// An empty URL means the in-memory event bus is used instead.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LockConfig holds resource lock manager configuration.
type LockConfig struct {
	DefaultTTLMinutes    int `mapstructure:"defaultTtlMinutes"`
	SweepIntervalSeconds int `mapstructure:"sweepIntervalSeconds"`
}

// MessagingConfig holds messaging bus configuration.
type MessagingConfig struct {
	PollIntervalSeconds int `mapstructure:"pollIntervalSeconds"`
	RetentionDays       int `mapstructure:"retentionDays"`
	BroadcastTTLHours   int `mapstructure:"broadcastTtlHours"`
}

// TestingConfig holds testing coordinator configuration.
type TestingConfig struct {
	WorkDir              string `mapstructure:"workDir"`
	ReportsDir           string `mapstructure:"reportsDir"`
	QueueSize            int    `mapstructure:"queueSize"`
	ReservationTTLHours  int    `mapstructure:"reservationTtlHours"`
	DrainIntervalSeconds int    `mapstructure:"drainIntervalSeconds"`
}

// KnowledgeConfig holds knowledge store configuration.
type KnowledgeConfig struct {
	DecayAfterDays     int `mapstructure:"decayAfterDays"`
	DecaySweepHours    int `mapstructure:"decaySweepHours"`
	LearningEventLimit int `mapstructure:"learningEventLimit"`
}

// OrchestratorConfig holds troubleshooting orchestrator configuration.
type OrchestratorConfig struct {
	StaleAssignmentMinutes int `mapstructure:"staleAssignmentMinutes"`
	LivenessWindowMinutes  int `mapstructure:"livenessWindowMinutes"`
	SweepIntervalSeconds   int `mapstructure:"sweepIntervalSeconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// DefaultTTL returns the default lock TTL as a time.Duration.
func (l *LockConfig) DefaultTTL() time.Duration {
	return time.Duration(l.DefaultTTLMinutes) * time.Minute
}

// SweepInterval returns the lock sweep interval as a time.Duration.
func (l *LockConfig) SweepInterval() time.Duration {
	return time.Duration(l.SweepIntervalSeconds) * time.Second
}

// PollInterval returns the inbox poll interval as a time.Duration.
func (m *MessagingConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSeconds) * time.Second
}

// detectDefaultLogFormat returns "json" in production-like environments
// and "text" for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("CREWMESH_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.path", "crewmesh.db")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "crewmesh-coordinator")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("locks.defaultTtlMinutes", 30)
	v.SetDefault("locks.sweepIntervalSeconds", 30)

	v.SetDefault("messaging.pollIntervalSeconds", 2)
	v.SetDefault("messaging.retentionDays", 7)
	v.SetDefault("messaging.broadcastTtlHours", 24)

	v.SetDefault("testing.workDir", os.TempDir())
	v.SetDefault("testing.reportsDir", "reports")
	v.SetDefault("testing.queueSize", 100)
	v.SetDefault("testing.reservationTtlHours", 2)
	v.SetDefault("testing.drainIntervalSeconds", 5)

	v.SetDefault("knowledge.decayAfterDays", 30)
	v.SetDefault("knowledge.decaySweepHours", 24)
	v.SetDefault("knowledge.learningEventLimit", 1000)

	v.SetDefault("orchestrator.staleAssignmentMinutes", 30)
	v.SetDefault("orchestrator.livenessWindowMinutes", 10)
	v.SetDefault("orchestrator.sweepIntervalSeconds", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix CREWMESH_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/crewmesh/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CREWMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/crewmesh/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if cfg.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if cfg.Locks.DefaultTTLMinutes <= 0 {
		errs = append(errs, "locks.defaultTtlMinutes must be positive")
	}
	if cfg.Locks.SweepIntervalSeconds <= 0 {
		errs = append(errs, "locks.sweepIntervalSeconds must be positive")
	}
	if cfg.Messaging.PollIntervalSeconds <= 0 {
		errs = append(errs, "messaging.pollIntervalSeconds must be positive")
	}
	if cfg.Messaging.RetentionDays <= 0 {
		errs = append(errs, "messaging.retentionDays must be positive")
	}
	if cfg.Testing.QueueSize <= 0 {
		errs = append(errs, "testing.queueSize must be positive")
	}
	if cfg.Knowledge.LearningEventLimit <= 0 {
		errs = append(errs, "knowledge.learningEventLimit must be positive")
	}
	if cfg.Orchestrator.StaleAssignmentMinutes <= 0 {
		errs = append(errs, "orchestrator.staleAssignmentMinutes must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
