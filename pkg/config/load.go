package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is unmarshalled over a fully defaulted configuration, so fields
// absent from the file keep their defaults (including booleans that default
// to true). The result is validated before being returned.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Re-fill defaults for fields the file set to empty.
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention AEGIS_SECTION_FIELD (e.g., AEGIS_PROXY_LISTEN_ADDRESS) and
// always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Start from defaults
//  2. Unmarshal YAML from file
//  3. Apply environment variable overrides
//  4. Validate the final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Proxy overrides
	if val := os.Getenv("AEGIS_PROXY_LISTEN_ADDRESS"); val != "" {
		cfg.Proxy.ListenAddress = val
	}
	if val := os.Getenv("AEGIS_PROXY_REQUEST_DEADLINE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Proxy.RequestDeadline = d
		}
	}

	// Upstream overrides
	if val := os.Getenv("AEGIS_UPSTREAM_BASE_URL"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("AEGIS_UPSTREAM_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Upstream.Timeout = d
		}
	}

	// Admission overrides
	if val := os.Getenv("AEGIS_ADMISSION_PARALLEL_LIMIT"); val != "" {
		cfg.Admission.ParallelLimit = val
	}
	if val := os.Getenv("AEGIS_ADMISSION_QUEUE_LIMIT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Admission.QueueLimit = i
		}
	}

	// Cache overrides
	if val := os.Getenv("AEGIS_CACHE_BACKEND"); val != "" {
		cfg.Cache.Backend = val
	}
	if val := os.Getenv("AEGIS_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if val := os.Getenv("AEGIS_CACHE_REDIS_ADDRESS"); val != "" {
		cfg.Cache.Redis.Address = val
	}
	if val := os.Getenv("AEGIS_CACHE_REDIS_PASSWORD"); val != "" {
		cfg.Cache.Redis.Password = val
	}

	// Scan overrides
	if val := os.Getenv("AEGIS_SCAN_FAIL_CLOSED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Scan.FailClosed = b
		}
	}
	if val := os.Getenv("AEGIS_SCAN_STREAM_WINDOW"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Scan.StreamWindow = i
		}
	}

	// Audit overrides
	if val := os.Getenv("AEGIS_AUDIT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Audit.Enabled = b
		}
	}
	if val := os.Getenv("AEGIS_AUDIT_BACKEND"); val != "" {
		cfg.Audit.Backend = val
	}

	// Telemetry overrides
	if val := os.Getenv("AEGIS_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("AEGIS_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
}
