package config

import (
	"time"
)

// Config is the complete gateway configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"       validate:"required"`
	Database     DatabaseConfig     `koanf:"database"     validate:"required"`
	Redis        RedisConfig        `koanf:"redis"`
	Gateway      GatewayConfig      `koanf:"gateway"      validate:"required"`
	RateLimit    RateLimitConfig    `koanf:"ratelimit"`
	Execution    ExecutionConfig    `koanf:"execution"    validate:"required"`
	Provisioning ProvisioningConfig `koanf:"provisioning"`
	Blocks       BlocksConfig       `koanf:"blocks"`
	Monitoring   MonitoringConfig   `koanf:"monitoring"`
	Runtime      RuntimeConfig      `koanf:"runtime"      validate:"required"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"             validate:"required"        env:"SERVER_HOST"`
	Port            int           `koanf:"port"             validate:"min=1,max=65535" env:"SERVER_PORT"`
	CORSEnabled     bool          `koanf:"cors_enabled"                                env:"SERVER_CORS_ENABLED"`
	ReadTimeout     time.Duration `koanf:"read_timeout"                                env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `koanf:"write_timeout"                               env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"                            env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig contains database connection configuration.
type DatabaseConfig struct {
	ConnString   string          `koanf:"conn_string"    env:"DB_CONN_STRING"`
	Host         string          `koanf:"host"           env:"DB_HOST"`
	Port         string          `koanf:"port"           env:"DB_PORT"`
	User         string          `koanf:"user"           env:"DB_USER"`
	Password     SensitiveString `koanf:"password"       env:"DB_PASSWORD"       sensitive:"true"`
	DBName       string          `koanf:"name"           env:"DB_NAME"`
	SSLMode      string          `koanf:"ssl_mode"       env:"DB_SSL_MODE"`
	MaxOpenConns int             `koanf:"max_open_conns" env:"DB_MAX_OPEN_CONNS" validate:"min=0"`
	MaxIdleConns int             `koanf:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" validate:"min=0"`
	AutoMigrate  bool            `koanf:"auto_migrate"   env:"DB_AUTO_MIGRATE"`
}

// RedisConfig configures the shared redis client. An empty Addr and URL
// disables redis and the rate limiter keeps its buckets in memory.
type RedisConfig struct {
	URL      string          `koanf:"url"      env:"REDIS_URL"`
	Addr     string          `koanf:"addr"     env:"REDIS_ADDR"`
	Password SensitiveString `koanf:"password" env:"REDIS_PASSWORD" sensitive:"true"`
	DB       int             `koanf:"db"       env:"REDIS_DB"       validate:"min=0"`

	PoolSize     int           `koanf:"pool_size"     env:"REDIS_POOL_SIZE"     validate:"min=0"`
	TLSEnabled   bool          `koanf:"tls_enabled"   env:"REDIS_TLS_ENABLED"`
	DialTimeout  time.Duration `koanf:"dial_timeout"  env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `koanf:"read_timeout"  env:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `koanf:"write_timeout" env:"REDIS_WRITE_TIMEOUT"`
	MaxRetries   int           `koanf:"max_retries"   env:"REDIS_MAX_RETRIES"`
	PingTimeout  time.Duration `koanf:"ping_timeout"  env:"REDIS_PING_TIMEOUT"`
}

// GatewayConfig holds admission settings for caller systems.
type GatewayConfig struct {
	CallerService   string   `koanf:"caller_service"    validate:"required" env:"GATEWAY_CALLER_SERVICE"`
	KeyPrefix       string   `koanf:"key_prefix"        validate:"required" env:"GATEWAY_KEY_PREFIX"`
	IPAllowlist     []string `koanf:"ip_allowlist"                          env:"GATEWAY_IP_ALLOWLIST"`
	LastUsedWorkers int      `koanf:"last_used_workers" validate:"min=1"    env:"GATEWAY_LAST_USED_WORKERS"`
}

// RateLimitConfig contains quota settings shared by every service key.
type RateLimitConfig struct {
	Prefix              string        `koanf:"prefix"                 env:"RATELIMIT_PREFIX"`
	MaxRetry            int           `koanf:"max_retry"              env:"RATELIMIT_MAX_RETRY"              validate:"min=0"`
	UserPerMinute       int64         `koanf:"user_per_minute"        env:"RATELIMIT_USER_PER_MINUTE"        validate:"min=0"`
	UserPerDay          int64         `koanf:"user_per_day"           env:"RATELIMIT_USER_PER_DAY"           validate:"min=0"`
	FailClosedRetryHint time.Duration `koanf:"fail_closed_retry_hint" env:"RATELIMIT_FAIL_CLOSED_RETRY_HINT"`
}

// ExecutionConfig bounds block execution.
type ExecutionConfig struct {
	DefaultTimeout    time.Duration `koanf:"default_timeout"    env:"EXECUTION_DEFAULT_TIMEOUT"`
	MinTimeout        time.Duration `koanf:"min_timeout"        env:"EXECUTION_MIN_TIMEOUT"`
	MaxTimeout        time.Duration `koanf:"max_timeout"        env:"EXECUTION_MAX_TIMEOUT"`
	BackgroundCeiling time.Duration `koanf:"background_ceiling" env:"EXECUTION_BACKGROUND_CEILING"`
	Reaper            ReaperConfig  `koanf:"reaper"`
}

// ReaperConfig controls the job that fails abandoned running executions.
type ReaperConfig struct {
	Enabled    bool          `koanf:"enabled"     env:"EXECUTION_REAPER_ENABLED"`
	Schedule   string        `koanf:"schedule"    env:"EXECUTION_REAPER_SCHEDULE"`
	StaleAfter time.Duration `koanf:"stale_after" env:"EXECUTION_REAPER_STALE_AFTER"`
}

// ProvisioningConfig contains defaults for accounts created on first contact.
type ProvisioningConfig struct {
	DefaultCredits      string        `koanf:"default_credits"       env:"PROVISIONING_DEFAULT_CREDITS"`
	StarterWorkflowName string        `koanf:"starter_workflow_name" env:"PROVISIONING_STARTER_WORKFLOW_NAME"`
	SeedTimeout         time.Duration `koanf:"seed_timeout"          env:"PROVISIONING_SEED_TIMEOUT"`
}

// BlocksConfig tunes the outbound calls made by built-in blocks.
type BlocksConfig struct {
	HTTPTimeout       time.Duration `koanf:"http_timeout"        env:"BLOCKS_HTTP_TIMEOUT"`
	PerHostRPS        float64       `koanf:"per_host_rps"        env:"BLOCKS_PER_HOST_RPS"        validate:"min=0"`
	PerHostBurst      int           `koanf:"per_host_burst"      env:"BLOCKS_PER_HOST_BURST"      validate:"min=0"`
	BreakerErrPercent int           `koanf:"breaker_err_percent" env:"BLOCKS_BREAKER_ERR_PERCENT" validate:"min=0,max=100"`
	GmailBaseURL      string        `koanf:"gmail_base_url"      env:"BLOCKS_GMAIL_BASE_URL"`
	SlackBaseURL      string        `koanf:"slack_base_url"      env:"BLOCKS_SLACK_BASE_URL"`
}

// MonitoringConfig toggles the Prometheus exporter.
type MonitoringConfig struct {
	Enabled bool   `koanf:"enabled" env:"MONITORING_ENABLED"`
	Path    string `koanf:"path"    env:"MONITORING_PATH"`
}

// RuntimeConfig contains runtime behavior configuration.
type RuntimeConfig struct {
	Environment string `koanf:"environment" validate:"oneof=development staging production" env:"RUNTIME_ENVIRONMENT"`
	LogLevel    string `koanf:"log_level"   validate:"oneof=debug info warn error"          env:"RUNTIME_LOG_LEVEL"`
}

// Default returns the configuration used before any source is applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5001,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    6 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "postgres",
			DBName:       "blockgate",
			SSLMode:      "disable",
			MaxOpenConns: 20,
			MaxIdleConns: 2,
		},
		Redis: RedisConfig{
			PingTimeout: 5 * time.Second,
		},
		Gateway: GatewayConfig{
			CallerService:   "canvas",
			KeyPrefix:       "bgk_",
			LastUsedWorkers: 10,
		},
		RateLimit: RateLimitConfig{
			Prefix:              "blockgate:ratelimit:",
			MaxRetry:            3,
			UserPerMinute:       30,
			UserPerDay:          2000,
			FailClosedRetryHint: time.Minute,
		},
		Execution: ExecutionConfig{
			DefaultTimeout:    30 * time.Second,
			MinTimeout:        time.Second,
			MaxTimeout:        5 * time.Minute,
			BackgroundCeiling: 15 * time.Minute,
			Reaper: ReaperConfig{
				Schedule:   "@every 5m",
				StaleAfter: time.Hour,
			},
		},
		Provisioning: ProvisioningConfig{
			DefaultCredits:      "10",
			StarterWorkflowName: "My first workflow",
			SeedTimeout:         10 * time.Second,
		},
		Blocks: BlocksConfig{
			HTTPTimeout:       20 * time.Second,
			PerHostRPS:        10,
			PerHostBurst:      20,
			BreakerErrPercent: 50,
			GmailBaseURL:      "https://gmail.googleapis.com",
			SlackBaseURL:      "https://slack.com/api",
		},
		Monitoring: MonitoringConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Runtime: RuntimeConfig{
			Environment: "development",
			LogLevel:    "info",
		},
	}
}
