package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if err := c.StoreConfig.Validate(); err != nil {
		errs = append(errs, err)
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Observability.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s (must be one of: %v)", c.Observability.LogLevel, validLogLevels))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Observability.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s (must be one of: %v)", c.Observability.LogFormat, validLogFormats))
	}

	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("invalid observability.tracing_sample_rate: %v (must be between 0 and 1)", c.Observability.TracingSampleRate))
	}

	if c.Management.Enabled {
		if c.Management.Port <= 0 || c.Management.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid management.port: %d (must be between 1 and 65535)", c.Management.Port))
		}
	}

	return errors.Join(errs...)
}

// Validate checks the adapter discriminator and the connection settings.
func (s StoreConfig) Validate() error {
	var errs []error

	if s.Adapter == "" {
		errs = append(errs, errors.New("adapter is required"))
	} else if _, err := ParseAdapterType(string(s.Adapter)); err != nil {
		errs = append(errs, err)
	}

	if s.Adapter == AdapterMongoDB && strings.TrimSpace(s.MongoDB.URI) == "" {
		errs = append(errs, errors.New("mongodb.uri is required when adapter is mongodb"))
	}
	if s.MongoDB.ConnectTimeout < 0 {
		errs = append(errs, errors.New("mongodb.connect_timeout cannot be negative"))
	}
	if s.MongoDB.OperationTimeout < 0 {
		errs = append(errs, errors.New("mongodb.operation_timeout cannot be negative"))
	}

	return errors.Join(errs...)
}

// RedactURI masks the password of a MongoDB connection string.
// Strings without userinfo are returned unchanged.
func RedactURI(uri string) string {
	schemeEnd := strings.Index(uri, "://")
	if schemeEnd < 0 {
		return uri
	}
	rest := uri[schemeEnd+3:]
	authority := rest
	if slash := strings.IndexAny(rest, "/?"); slash >= 0 {
		authority = rest[:slash]
	}
	at := strings.LastIndex(authority, "@")
	if at < 0 {
		return uri
	}
	userinfo := authority[:at]
	colon := strings.Index(userinfo, ":")
	if colon < 0 {
		return uri
	}
	return uri[:schemeEnd+3] + userinfo[:colon] + ":***" + rest[at:]
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
