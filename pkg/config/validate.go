package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first problem found.
func Validate(cfg *Config) error {
	if err := validateProxy(&cfg.Proxy); err != nil {
		return err
	}
	if err := validateUpstream(&cfg.Upstream); err != nil {
		return err
	}
	if err := validateAdmission(&cfg.Admission); err != nil {
		return err
	}
	if err := validateCache(&cfg.Cache); err != nil {
		return err
	}
	if err := validateScan(&cfg.Scan); err != nil {
		return err
	}
	if err := validateAudit(&cfg.Audit); err != nil {
		return err
	}
	return validateTelemetry(&cfg.Telemetry)
}

func validateProxy(cfg *ProxyConfig) error {
	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		return fmt.Errorf("proxy.listen_address %q is not host:port: %w", cfg.ListenAddress, err)
	}
	if cfg.RequestDeadline < 0 {
		return fmt.Errorf("proxy.request_deadline must not be negative")
	}
	return nil
}

func validateUpstream(cfg *UpstreamConfig) error {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("upstream.base_url %q is not a valid URL: %w", cfg.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.base_url %q must use http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	return nil
}

func validateAdmission(cfg *AdmissionConfig) error {
	if cfg.ParallelLimit != "auto" {
		n, err := strconv.Atoi(cfg.ParallelLimit)
		if err != nil || n < 1 {
			return fmt.Errorf("admission.parallel_limit must be \"auto\" or a positive integer, got %q", cfg.ParallelLimit)
		}
	}
	if cfg.QueueLimit < 0 {
		return fmt.Errorf("admission.queue_limit must not be negative")
	}
	for model, override := range cfg.ModelOverrides {
		if override.ParallelLimit < 1 {
			return fmt.Errorf("admission.model_overrides[%s].parallel_limit must be positive", model)
		}
		if override.QueueLimit < 0 {
			return fmt.Errorf("admission.model_overrides[%s].queue_limit must not be negative", model)
		}
	}
	return nil
}

func validateCache(cfg *CacheConfig) error {
	switch cfg.Backend {
	case "local", "redis", "auto":
	default:
		return fmt.Errorf("cache.backend must be one of local, redis, auto; got %q", cfg.Backend)
	}
	if cfg.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if cfg.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	if cfg.Backend != "local" {
		if _, _, err := net.SplitHostPort(cfg.Redis.Address); err != nil {
			return fmt.Errorf("cache.redis.address %q is not host:port: %w", cfg.Redis.Address, err)
		}
		if _, err := cron.ParseStandard(cfg.ReprobeSchedule); err != nil {
			return fmt.Errorf("cache.reprobe_schedule %q is not a valid cron expression: %w", cfg.ReprobeSchedule, err)
		}
	}
	return nil
}

func validateScan(cfg *ScanConfig) error {
	if cfg.StreamWindow < 1 {
		return fmt.Errorf("scan.stream_window must be positive")
	}
	return nil
}

func validateAudit(cfg *AuditConfig) error {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("audit.backend must be memory or sqlite; got %q", cfg.Backend)
	}
	if cfg.Backend == "sqlite" && cfg.SQLitePath == "" {
		return fmt.Errorf("audit.sqlite_path is required for the sqlite backend")
	}
	if cfg.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}
	if cfg.RetentionDays > 0 {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			return fmt.Errorf("audit.prune_schedule %q is not a valid cron expression: %w", cfg.PruneSchedule, err)
		}
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format must be json or text; got %q", cfg.Logging.Format)
	}
	return nil
}
