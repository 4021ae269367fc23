package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DefaultPollIntervalMs    = 100
	DefaultLeaseBatchSize    = 100
	DefaultProcessBatchSize  = 10
	DefaultMaxAttempts       = 5
	DefaultShutdownTimeoutMs = 30000
	DefaultMetricsPort       = 9090
)

type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	DBSource    string `mapstructure:"DB_SOURCE"` // Legacy: full connection string
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	AdminAddr   string `mapstructure:"ADMIN_ADDRESS"`

	// Database connection components (preferred over DB_SOURCE)
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	// Dispatcher settings
	PollIntervalMs    int `mapstructure:"POLL_INTERVAL_MS"`
	LeaseBatchSize    int `mapstructure:"LEASE_BATCH_SIZE"`
	ProcessBatchSize  int `mapstructure:"PROCESS_BATCH_SIZE"`
	MaxAttempts       int `mapstructure:"MAX_ATTEMPTS"`
	ShutdownTimeoutMs int `mapstructure:"SHUTDOWN_TIMEOUT_MS"`

	// External effect transport selection: one of "redis", "nats", "sqs"
	EffectTransport string `mapstructure:"EFFECT_TRANSPORT"`
	NATSURL         string `mapstructure:"NATS_URL"`
	NATSSubject     string `mapstructure:"NATS_SUBJECT"`
	SQSQueueURL     string `mapstructure:"SQS_QUEUE_URL"`
	SQSRegion       string `mapstructure:"SQS_REGION"`

	// Circuit breaker around the external-effect handler
	CircuitBreakerEnabled bool `mapstructure:"CIRCUIT_BREAKER_ENABLED"`

	// Metrics settings
	MetricsPort int `mapstructure:"METRICS_PORT"`

	// Database pool settings
	DBMaxConns    int32 `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32 `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnLife int   `mapstructure:"DB_MAX_CONN_LIFE_MINUTES"`
	DBMaxConnIdle int   `mapstructure:"DB_MAX_CONN_IDLE_MINUTES"`
}

// GetDBSource returns the database connection string.
// If DB_HOST is set, it builds the connection string from components (with URL-encoded password).
// Otherwise, it falls back to DB_SOURCE for backward compatibility.
func (c *Config) GetDBSource() string {
	if c.DBHost != "" {
		encodedPassword := url.QueryEscape(c.DBPassword)
		sslMode := c.DBSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		port := c.DBPort
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			c.DBUser,
			encodedPassword,
			c.DBHost,
			port,
			c.DBName,
			sslMode,
		)
	}
	return c.DBSource
}

// GetDBMaxConns returns max connections for the pool (default: 25)
func (c *Config) GetDBMaxConns() int32 {
	if c.DBMaxConns <= 0 {
		return 25
	}
	return c.DBMaxConns
}

// GetDBMinConns returns min connections for the pool (default: 5)
func (c *Config) GetDBMinConns() int32 {
	if c.DBMinConns <= 0 {
		return 5
	}
	return c.DBMinConns
}

// GetDBMaxConnLifetime returns max connection lifetime (default: 60 minutes)
func (c *Config) GetDBMaxConnLifetime() time.Duration {
	if c.DBMaxConnLife <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.DBMaxConnLife) * time.Minute
}

// GetDBMaxConnIdleTime returns max connection idle time (default: 15 minutes)
func (c *Config) GetDBMaxConnIdleTime() time.Duration {
	if c.DBMaxConnIdle <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.DBMaxConnIdle) * time.Minute
}

// GetPollInterval returns the poll interval as a time.Duration. If the
// configured value is invalid (non-positive), it returns the default and
// logs a warning rather than guessing user intent.
func (c *Config) GetPollInterval(logger *zap.Logger) time.Duration {
	if c.PollIntervalMs <= 0 {
		warnInvalid(logger, "POLL_INTERVAL_MS", c.PollIntervalMs, DefaultPollIntervalMs)
		return time.Duration(DefaultPollIntervalMs) * time.Millisecond
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// GetLeaseBatchSize returns how many rows the lease manager claims per
// cycle. A non-positive configured value falls back to the default and
// warns; it is never silently treated as "lease everything".
func (c *Config) GetLeaseBatchSize(logger *zap.Logger) int {
	if c.LeaseBatchSize <= 0 {
		warnInvalid(logger, "LEASE_BATCH_SIZE", c.LeaseBatchSize, DefaultLeaseBatchSize)
		return DefaultLeaseBatchSize
	}
	return c.LeaseBatchSize
}

// GetProcessBatchSize returns the chunk size the batch processor uses
// within a lease. Zero is a legitimate operator choice (per spec, a
// deliberate "pause processing without pausing leasing" pathology) and is
// passed through unchanged rather than defaulted, unlike the other
// settings here; only a negative value is treated as invalid.
func (c *Config) GetProcessBatchSize(logger *zap.Logger) int {
	if c.ProcessBatchSize < 0 {
		warnInvalid(logger, "PROCESS_BATCH_SIZE", c.ProcessBatchSize, DefaultProcessBatchSize)
		return DefaultProcessBatchSize
	}
	return c.ProcessBatchSize
}

// GetMaxAttempts returns the retry budget before a message is dead-lettered.
func (c *Config) GetMaxAttempts(logger *zap.Logger) int {
	if c.MaxAttempts <= 0 {
		warnInvalid(logger, "MAX_ATTEMPTS", c.MaxAttempts, DefaultMaxAttempts)
		return DefaultMaxAttempts
	}
	return c.MaxAttempts
}

// GetShutdownTimeout returns how long Stop waits for in-flight work to
// drain before giving up.
func (c *Config) GetShutdownTimeout(logger *zap.Logger) time.Duration {
	if c.ShutdownTimeoutMs <= 0 {
		warnInvalid(logger, "SHUTDOWN_TIMEOUT_MS", c.ShutdownTimeoutMs, DefaultShutdownTimeoutMs)
		return time.Duration(DefaultShutdownTimeoutMs) * time.Millisecond
	}
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// GetMetricsPort returns the metrics server port.
func (c *Config) GetMetricsPort() int {
	if c.MetricsPort <= 0 {
		return DefaultMetricsPort
	}
	return c.MetricsPort
}

func warnInvalid(logger *zap.Logger, key string, configured, def int) {
	if logger == nil {
		return
	}
	logger.Warn("invalid configuration value, using default",
		zap.String("key", key),
		zap.Int("configured", configured),
		zap.Int("default", def))
}

func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	_ = viper.BindEnv("ENVIRONMENT")
	_ = viper.BindEnv("DB_SOURCE")
	_ = viper.BindEnv("DB_HOST")
	_ = viper.BindEnv("DB_PORT")
	_ = viper.BindEnv("DB_USER")
	_ = viper.BindEnv("DB_PASSWORD")
	_ = viper.BindEnv("DB_NAME")
	_ = viper.BindEnv("DB_SSLMODE")
	_ = viper.BindEnv("REDIS_ADDR")
	_ = viper.BindEnv("ADMIN_ADDRESS")
	_ = viper.BindEnv("POLL_INTERVAL_MS")
	_ = viper.BindEnv("LEASE_BATCH_SIZE")
	_ = viper.BindEnv("PROCESS_BATCH_SIZE")
	_ = viper.BindEnv("MAX_ATTEMPTS")
	_ = viper.BindEnv("SHUTDOWN_TIMEOUT_MS")
	_ = viper.BindEnv("EFFECT_TRANSPORT")
	_ = viper.BindEnv("NATS_URL")
	_ = viper.BindEnv("NATS_SUBJECT")
	_ = viper.BindEnv("SQS_QUEUE_URL")
	_ = viper.BindEnv("SQS_REGION")
	_ = viper.BindEnv("CIRCUIT_BREAKER_ENABLED")
	_ = viper.BindEnv("METRICS_PORT")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("DB_MIN_CONNS")
	_ = viper.BindEnv("DB_MAX_CONN_LIFE_MINUTES")
	_ = viper.BindEnv("DB_MAX_CONN_IDLE_MINUTES")

	viper.AutomaticEnv()

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil //nolint:ineffassign // intentional reset for env-only mode
	}

	err = viper.Unmarshal(&config)
	return
}
