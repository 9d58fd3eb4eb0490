package config

import (
	"fmt"
	"time"
)

// AdapterType identifies the storage adapter a configuration is written for.
type AdapterType string

const (
	// AdapterMongoDB is the only adapter this module implements.
	AdapterMongoDB AdapterType = "mongodb"
)

// SupportedAdapters lists every legal adapter discriminator.
var SupportedAdapters = []AdapterType{AdapterMongoDB}

// Valid reports whether t is a supported adapter.
func (t AdapterType) Valid() bool {
	for _, supported := range SupportedAdapters {
		if t == supported {
			return true
		}
	}
	return false
}

// ParseAdapterType converts a raw discriminator into an AdapterType.
// The comparison is exact: "MongoDB" or " mongodb" are rejected.
func ParseAdapterType(raw string) (AdapterType, error) {
	t := AdapterType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("invalid adapter: %q (must be one of: %v)", raw, SupportedAdapters)
	}
	return t, nil
}

// Config is the root configuration of the advtxt-db tooling.
type Config struct {
	StoreConfig   `mapstructure:",squash"`
	Service       ServiceConfig       `mapstructure:"service"`
	Management    ManagementConfig    `mapstructure:"management"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// StoreConfig is the configuration consumed by store adapters at initialize time.
type StoreConfig struct {
	Adapter AdapterType   `mapstructure:"adapter"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
}

// MongoDBConfig configures the MongoDB connection.
type MongoDBConfig struct {
	// URI is handed verbatim to the driver.
	URI string `mapstructure:"uri"`
	// Database overrides the database named in the URI path.
	Database         string        `mapstructure:"database"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ManagementConfig configures the management server
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ObservabilityConfig configures logging and tracing
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level"`
	LogFormat         string  `mapstructure:"log_format"` // json, text
	TracingEnabled    bool    `mapstructure:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint"`
}

// DefaultConfig returns a configuration with default values.
// The adapter discriminator and URI have no defaults: both must be supplied.
func DefaultConfig() *Config {
	return &Config{
		StoreConfig: StoreConfig{
			MongoDB: MongoDBConfig{
				ConnectTimeout:   10 * time.Second,
				OperationTimeout: 5 * time.Second,
			},
		},
		Service: ServiceConfig{
			Name:        "advtxt-db",
			Environment: "production",
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingSampleRate: 0.1,
		},
	}
}

// Settings returns the configuration as a nested map suitable for display.
// Credentials embedded in the MongoDB URI are masked.
func (c *Config) Settings() map[string]interface{} {
	return map[string]interface{}{
		"adapter": string(c.Adapter),
		"mongodb": map[string]interface{}{
			"uri":               RedactURI(c.MongoDB.URI),
			"database":          c.MongoDB.Database,
			"connect_timeout":   c.MongoDB.ConnectTimeout.String(),
			"operation_timeout": c.MongoDB.OperationTimeout.String(),
		},
		"service": map[string]interface{}{
			"name":        c.Service.Name,
			"environment": c.Service.Environment,
		},
		"management": map[string]interface{}{
			"enabled":       c.Management.Enabled,
			"port":          c.Management.Port,
			"read_timeout":  c.Management.ReadTimeout.String(),
			"write_timeout": c.Management.WriteTimeout.String(),
		},
		"observability": map[string]interface{}{
			"log_level":           c.Observability.LogLevel,
			"log_format":          c.Observability.LogFormat,
			"tracing_enabled":     c.Observability.TracingEnabled,
			"tracing_sample_rate": c.Observability.TracingSampleRate,
			"tracing_endpoint":    c.Observability.TracingEndpoint,
		},
	}
}
