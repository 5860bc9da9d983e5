package config

import "time"

// Config is the root configuration structure for Aegis.
// It contains all configuration sections for the proxy server, the upstream
// inference backend, admission control, verdict caching, scanning, audit
// logging, and telemetry.
type Config struct {
	// Proxy contains HTTP proxy server configuration including listen
	// address, timeouts, and connection limits.
	Proxy ProxyConfig `yaml:"proxy"`

	// Upstream contains configuration for the inference backend the proxy
	// forwards guarded traffic to.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Admission contains configuration for per-model concurrency limits and
	// wait-line bounds.
	Admission AdmissionConfig `yaml:"admission"`

	// Cache contains configuration for the scan-verdict cache including
	// backend selection, Redis connection parameters, and TTL.
	Cache CacheConfig `yaml:"cache"`

	// Scan contains configuration for the analyzer pipeline including
	// per-analyzer enable flags, the streaming scan window, and the
	// fail-open/fail-closed policy.
	Scan ScanConfig `yaml:"scan"`

	// Audit contains configuration for block-event audit logging.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ProxyConfig contains configuration for the HTTP proxy server.
type ProxyConfig struct {
	// ListenAddress is the address and port for the proxy to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Zero keeps streaming responses from being cut off mid-relay.
	// Default: 0 (no timeout)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestDeadline is the overall deadline for a single guarded request,
	// covering admission wait, scanning, and upstream forwarding. Zero
	// disables the deadline. Deadline expiry uses the same cancellation
	// path as a client disconnect.
	// Default: 10m
	RequestDeadline time.Duration `yaml:"request_deadline"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// UpstreamConfig contains configuration for the inference backend.
type UpstreamConfig struct {
	// BaseURL is the base URL of the backend (e.g., "http://127.0.0.1:11434").
	// Both dialect adapters derive their endpoint paths from it.
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-request timeout for non-streaming upstream calls,
	// and the wait for response headers on streaming ones. Streaming bodies
	// are bounded by the request deadline instead.
	// Default: 120s
	Timeout time.Duration `yaml:"timeout"`

	// MaxIdleConns is the maximum number of idle connections in the pool.
	// Default: 20
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	// Default: 10
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout is how long idle connections are kept in the pool.
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// AdmissionConfig contains configuration for the admission controller.
type AdmissionConfig struct {
	// ParallelLimit is the default number of concurrent requests admitted
	// per backend model. "auto" derives the limit from available system
	// memory (>=16GiB: 4, >=8GiB: 2, otherwise 1). A positive integer sets
	// a fixed limit.
	// Default: "auto"
	ParallelLimit string `yaml:"parallel_limit"`

	// QueueLimit is the default number of requests allowed to wait for a
	// slot per model. Requests beyond the limit are rejected immediately
	// with a capacity-exceeded error.
	// Default: 10
	QueueLimit int `yaml:"queue_limit"`

	// ModelOverrides sets per-model limits, keyed by model name.
	ModelOverrides map[string]ModelLimitConfig `yaml:"model_overrides"`
}

// ModelLimitConfig overrides admission limits for a single model.
type ModelLimitConfig struct {
	// ParallelLimit is the concurrent-request limit for this model.
	ParallelLimit int `yaml:"parallel_limit"`

	// QueueLimit is the wait-line bound for this model.
	QueueLimit int `yaml:"queue_limit"`
}

// CacheConfig contains configuration for the scan-verdict cache.
type CacheConfig struct {
	// Backend selects the cache backend: "local", "redis", or "auto".
	// "auto" prefers Redis and falls back to the local backend on any
	// failure to reach it, re-probing on a schedule.
	// Default: "auto"
	Backend string `yaml:"backend"`

	// TTL is the time-to-live for cached verdicts.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries bounds the local backend; the least recently used entry
	// is evicted at capacity. Zero means unlimited.
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// Redis contains connection parameters for the distributed backend.
	Redis RedisConfig `yaml:"redis"`

	// ReprobeSchedule is the cron schedule on which the auto store retries
	// the distributed backend after falling back to local.
	// Default: "@every 30s"
	ReprobeSchedule string `yaml:"reprobe_schedule"`
}

// RedisConfig contains Redis connection parameters.
type RedisConfig struct {
	// Address is the Redis server address ("host:port").
	// Default: "localhost:6379"
	Address string `yaml:"address"`

	// Password is the Redis password (empty for none).
	Password string `yaml:"password"`

	// DB is the Redis database number.
	// Default: 0
	DB int `yaml:"db"`

	// PoolSize is the connection pool size. It is sized independently of
	// admission limits.
	// Default: 10
	PoolSize int `yaml:"pool_size"`

	// DialTimeout is the connect timeout for new connections.
	// Default: 2s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// ReadTimeout is the per-command read timeout.
	// Default: 1s
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// ScanConfig contains configuration for the analyzer pipeline.
type ScanConfig struct {
	// FailClosed controls how an analyzer's internal error affects the
	// overall verdict. When true, a failed analyzer counts as a block;
	// when false, its failure is logged and ignored.
	// Default: true
	FailClosed bool `yaml:"fail_closed"`

	// StreamWindow is the number of accumulated output characters that
	// triggers a re-scan during streaming responses.
	// Default: 500
	StreamWindow int `yaml:"stream_window"`

	// Analyzers sets per-analyzer enable flags, keyed by analyzer name.
	// Analyzers absent from the map keep their registration-time default.
	// The map is re-applied on config file changes without a restart.
	Analyzers map[string]AnalyzerConfig `yaml:"analyzers"`
}

// AnalyzerConfig contains per-analyzer settings.
type AnalyzerConfig struct {
	// Enabled controls whether the analyzer runs at all.
	Enabled bool `yaml:"enabled"`
}

// AuditConfig contains configuration for block-event audit logging.
type AuditConfig struct {
	// Enabled controls whether block and rejection events are recorded.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects the audit storage backend: "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path for the sqlite backend.
	// Default: "data/audit.db"
	SQLitePath string `yaml:"sqlite_path"`

	// BufferSize is the async recorder queue size. Events beyond the
	// buffer are dropped rather than blocking request handling.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// RetentionDays is how long audit records are kept before the pruner
	// deletes them. Zero disables pruning.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is the cron schedule for retention pruning.
	// Default: "0 2 * * *" (daily at 02:00)
	PruneSchedule string `yaml:"prune_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the /metrics endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "aegis"
	Namespace string `yaml:"namespace"`
}
