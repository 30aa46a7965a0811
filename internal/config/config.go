package config

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Config holds all configuration for the backhouse job pipeline.
// Values are loaded from environment variables; see cmd/backhouse printUsage()
// for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr"`
	HTTPAddr    string `json:"http_addr"`

	// VenueTimezone is the default timezone for schedules and report periods.
	VenueTimezone string `json:"venue_timezone"`

	WorkerConcurrency int `json:"worker_concurrency"`

	TickInterval    time.Duration `json:"-"`
	TickIntervalStr string        `json:"tick_interval"`

	DequeueWait    time.Duration `json:"-"`
	DequeueWaitStr string        `json:"dequeue_wait"`

	DrainTimeout    time.Duration `json:"-"`
	DrainTimeoutStr string        `json:"drain_timeout"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	// ExecutionRetentionDays is the default retention window for the weekly
	// cleanup job's payload.
	ExecutionRetentionDays int `json:"execution_retention_days"`

	JanitorInterval        time.Duration `json:"-"`
	JanitorIntervalStr     string        `json:"janitor_interval"`
	StaleClaimThreshold    time.Duration `json:"-"`
	StaleClaimThresholdStr string        `json:"stale_claim_threshold"`
	JanitorBatchSize       int           `json:"janitor_batch_size"`

	SMTPAddr string `json:"smtp_addr,omitempty"`
	SMTPFrom string `json:"smtp_from,omitempty"`

	// CircuitBreakerThreshold: 0 disables the breaker on alert webhooks.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	// LeaderLockKey: all instances sharing the same database must use the
	// same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		VenueTimezone:              os.Getenv("VENUE_TIMEZONE"),
		TickIntervalStr:            os.Getenv("TICK_INTERVAL"),
		DequeueWaitStr:             os.Getenv("DEQUEUE_WAIT"),
		DrainTimeoutStr:            os.Getenv("DRAIN_TIMEOUT"),
		DBOpTimeoutStr:             os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		MetricsPort:                os.Getenv("METRICS_PORT"),
		JanitorIntervalStr:         os.Getenv("JANITOR_INTERVAL"),
		StaleClaimThresholdStr:     os.Getenv("STALE_CLAIM_THRESHOLD"),
		SMTPAddr:                   os.Getenv("SMTP_ADDR"),
		SMTPFrom:                   os.Getenv("SMTP_FROM"),
		CircuitBreakerCooldownStr:  os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
	}

	cfg.WorkerConcurrency = intFromEnv("WORKER_CONCURRENCY", 3)
	cfg.DBMaxOpenConns = intFromEnv("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = intFromEnv("DB_MAX_IDLE_CONNS", 5)
	cfg.ExecutionRetentionDays = intFromEnv("EXECUTION_RETENTION_DAYS", 30)
	cfg.JanitorBatchSize = intFromEnv("JANITOR_BATCH_SIZE", 100)
	cfg.CircuitBreakerThreshold = intFromEnv("CIRCUIT_BREAKER_THRESHOLD", 5)
	cfg.LeaderLockKey = int64(intFromEnv("LEADER_LOCK_KEY", 918273))

	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.VenueTimezone == "" {
		cfg.VenueTimezone = "Europe/London"
	}
	if cfg.TickIntervalStr == "" {
		cfg.TickIntervalStr = "30s"
	}
	if cfg.DequeueWaitStr == "" {
		cfg.DequeueWaitStr = "5s"
	}
	if cfg.DrainTimeoutStr == "" {
		cfg.DrainTimeoutStr = "30s"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.JanitorIntervalStr == "" {
		cfg.JanitorIntervalStr = "5s"
	}
	if cfg.StaleClaimThresholdStr == "" {
		cfg.StaleClaimThresholdStr = "15m"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}
	if d, err := time.ParseDuration(cfg.DequeueWaitStr); err == nil {
		cfg.DequeueWait = d
	}
	if d, err := time.ParseDuration(cfg.DrainTimeoutStr); err == nil {
		cfg.DrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.JanitorIntervalStr); err == nil {
		cfg.JanitorInterval = d
	}
	if d, err := time.ParseDuration(cfg.StaleClaimThresholdStr); err == nil {
		cfg.StaleClaimThreshold = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}

	return cfg
}

// intFromEnv reads a positive integer from the environment, falling back to
// def on absence or garbage.
func intFromEnv(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			log.Printf("config: invalid %s %q (must be a positive integer), using default %d", name, s, def)
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return def
	}
	return n
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.DatabaseURL = maskSecret(c.DatabaseURL)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
