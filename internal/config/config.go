package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	// WebSocket limits
	MaxMessageBytes  int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxMessageLength int   `mapstructure:"max_message_length" yaml:"max_message_length"`
	EventBuffer      int   `mapstructure:"event_buffer" yaml:"event_buffer"`

	// Storage
	DatabaseDriver string `mapstructure:"database_driver" yaml:"database_driver"`
	DatabasePath   string `mapstructure:"database_path" yaml:"database_path"`
	DatabaseURL    string `mapstructure:"database_url" yaml:"database_url"`

	// Auth
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	JWTRequired bool          `mapstructure:"jwt_required" yaml:"jwt_required"`

	EnforceThreadMembership bool     `mapstructure:"enforce_thread_membership" yaml:"enforce_thread_membership"`
	CORSAllowedOrigins      []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                    ":8080",
		ReadHeaderTimeout:       5 * time.Second,
		ShutdownTimeout:         5 * time.Second,
		LogLevel:                "info",
		LogFormat:               "console",
		MaxMessageBytes:         16 * 1024,
		MaxMessageLength:        2000,
		EventBuffer:             16,
		DatabaseDriver:          DriverSQLite,
		DatabasePath:            "wirechat.db",
		JWTSecret:               "change-me-in-production",
		JWTIssuer:               "wirechat",
		JWTAudience:             "wirechat-clients",
		JWTTTL:                  24 * time.Hour,
		EnforceThreadMembership: true,
		CORSAllowedOrigins:      []string{"*"},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Booleans are not merged: a zero value cannot be told apart from false.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.MaxMessageLength != 0 {
		c.MaxMessageLength = other.MaxMessageLength
	}
	if other.EventBuffer != 0 {
		c.EventBuffer = other.EventBuffer
	}
	if other.DatabaseDriver != "" {
		c.DatabaseDriver = other.DatabaseDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.DatabaseURL != "" {
		c.DatabaseURL = other.DatabaseURL
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if len(other.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = other.CORSAllowedOrigins
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return errors.New("database_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database_driver %q", c.DatabaseDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	return nil
}
