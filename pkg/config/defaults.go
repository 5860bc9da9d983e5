package config

import "time"

// Cache backend names accepted by CacheConfig.Backend.
const (
	CacheBackendLocal = "local"
	CacheBackendRedis = "redis"
	CacheBackendAuto  = "auto"
)

// Audit backend names accepted by AuditConfig.Backend.
const (
	AuditBackendMemory = "memory"
	AuditBackendSQLite = "sqlite"
)

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 0 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestDeadline = 10 * time.Minute
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Upstream defaults
	DefaultUpstreamBaseURL             = "http://127.0.0.1:11434"
	DefaultUpstreamTimeout             = 120 * time.Second
	DefaultUpstreamMaxIdleConns        = 20
	DefaultUpstreamMaxIdleConnsPerHost = 10
	DefaultUpstreamIdleConnTimeout     = 90 * time.Second

	// Admission defaults
	DefaultParallelLimit = "auto"
	DefaultQueueLimit    = 10

	// Cache defaults
	DefaultCacheBackend         = "auto"
	DefaultCacheTTL             = time.Hour
	DefaultCacheMaxEntries      = 10000
	DefaultCacheReprobeSchedule = "@every 30s"
	DefaultRedisAddress         = "localhost:6379"
	DefaultRedisPoolSize        = 10
	DefaultRedisDialTimeout     = 2 * time.Second
	DefaultRedisReadTimeout     = time.Second

	// Scan defaults
	DefaultFailClosed   = true
	DefaultStreamWindow = 500

	// Audit defaults
	DefaultAuditEnabled       = true
	DefaultAuditBackend       = "memory"
	DefaultAuditSQLitePath    = "data/audit.db"
	DefaultAuditBufferSize    = 1000
	DefaultAuditRetentionDays = 30
	DefaultAuditPruneSchedule = "0 2 * * *"

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsNamespace = "aegis"
)

// ApplyDefaults fills in default values for any unset configuration fields.
// It modifies the configuration in place. Zero values for fields whose zero
// is meaningful (e.g. WriteTimeout) are left alone.
func ApplyDefaults(cfg *Config) {
	// Proxy
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.RequestDeadline == 0 {
		cfg.Proxy.RequestDeadline = DefaultRequestDeadline
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Upstream
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if cfg.Upstream.MaxIdleConns == 0 {
		cfg.Upstream.MaxIdleConns = DefaultUpstreamMaxIdleConns
	}
	if cfg.Upstream.MaxIdleConnsPerHost == 0 {
		cfg.Upstream.MaxIdleConnsPerHost = DefaultUpstreamMaxIdleConnsPerHost
	}
	if cfg.Upstream.IdleConnTimeout == 0 {
		cfg.Upstream.IdleConnTimeout = DefaultUpstreamIdleConnTimeout
	}

	// Admission
	if cfg.Admission.ParallelLimit == "" {
		cfg.Admission.ParallelLimit = DefaultParallelLimit
	}
	if cfg.Admission.QueueLimit == 0 {
		cfg.Admission.QueueLimit = DefaultQueueLimit
	}

	// Cache
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Cache.ReprobeSchedule == "" {
		cfg.Cache.ReprobeSchedule = DefaultCacheReprobeSchedule
	}
	if cfg.Cache.Redis.Address == "" {
		cfg.Cache.Redis.Address = DefaultRedisAddress
	}
	if cfg.Cache.Redis.PoolSize == 0 {
		cfg.Cache.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Cache.Redis.DialTimeout == 0 {
		cfg.Cache.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.Cache.Redis.ReadTimeout == 0 {
		cfg.Cache.Redis.ReadTimeout = DefaultRedisReadTimeout
	}

	// Scan
	if cfg.Scan.StreamWindow == 0 {
		cfg.Scan.StreamWindow = DefaultStreamWindow
	}

	// Audit
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = DefaultAuditSQLitePath
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = DefaultAuditBufferSize
	}
	if cfg.Audit.PruneSchedule == "" {
		cfg.Audit.PruneSchedule = DefaultAuditPruneSchedule
	}

	// Telemetry
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
}

// DefaultConfig returns a configuration populated entirely with defaults.
// Boolean fields that default to true are set explicitly since ApplyDefaults
// cannot distinguish "unset" from "false" for them.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Scan.FailClosed = DefaultFailClosed
	cfg.Audit.Enabled = DefaultAuditEnabled
	cfg.Audit.RetentionDays = DefaultAuditRetentionDays
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	ApplyDefaults(cfg)
	return cfg
}
