package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Notification drivers
const (
	NotificationDriverLog   = "log"
	NotificationDriverRedis = "redis"
	NotificationDriverNATS  = "nats"
)

// Idempotency stores
const (
	IdempotencyStoreMemory = "memory"
	IdempotencyStoreRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	NATS         NATSConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Telemetry    TelemetryConfig
	Profiling    ProfilingConfig
	Notification NotificationConfig
	Reconcile    ReconcileConfig
	Idempotency  IdempotencyConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
}

// ProfilingConfig holds Pyroscope continuous profiling configuration
type ProfilingConfig struct {
	Enabled              bool
	ServerAddress        string   // Pyroscope server, e.g. "http://pyroscope:4040"
	ApplicationName      string   // defaults to app.name
	BasicAuthUser        string
	BasicAuthPassword    string
	Types                []string // cpu, alloc_space, inuse_space, mutex_duration, block_duration, ...
	MutexProfileFraction int
	BlockProfileRate     int
	SpanProfiles         bool // link profiles to trace spans; needs telemetry.enabled
}

// profileTypeNames lists the accepted profiling.types values
var profileTypeNames = map[string]bool{
	"cpu": true, "alloc_objects": true, "alloc_space": true, "inuse_objects": true, "inuse_space": true,
	"goroutines": true, "mutex_count": true, "mutex_duration": true, "block_count": true, "block_duration": true,
}

// NotificationConfig selects where staff and customer notifications go
type NotificationConfig struct {
	Driver  string // log, redis, nats
	Stream  string // redis stream key
	MaxLen  int64  // approximate redis stream cap
	Subject string // nats subject prefix
}

// ReconcileConfig holds the nightly stock reconciliation settings
type ReconcileConfig struct {
	Enabled       bool
	Hour          int // local hour of day the run starts
	CheckInterval time.Duration
	Timeout       time.Duration
}

// IdempotencyConfig controls replay of POST and DELETE requests carrying an
// Idempotency-Key header
type IdempotencyConfig struct {
	Enabled   bool
	Store     string // memory, redis
	TTL       time.Duration
	KeyPrefix string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetDefault("reconcile.hour", 3)
	v.SetDefault("idempotency.enabled", true)
	v.SetDefault("profiling.span_profiles", true)

	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			Name:          v.GetString("nats.name"),
			MaxReconnects: v.GetInt("nats.max_reconnects"),
			ReconnectWait: v.GetDuration("nats.reconnect_wait"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Profiling: ProfilingConfig{
			Enabled:              v.GetBool("profiling.enabled"),
			ServerAddress:        v.GetString("profiling.server_address"),
			ApplicationName:      v.GetString("profiling.application_name"),
			BasicAuthUser:        v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword:    v.GetString("profiling.basic_auth_password"),
			Types:                v.GetStringSlice("profiling.types"),
			MutexProfileFraction: v.GetInt("profiling.mutex_profile_fraction"),
			BlockProfileRate:     v.GetInt("profiling.block_profile_rate"),
			SpanProfiles:         v.GetBool("profiling.span_profiles"),
		},
		Notification: NotificationConfig{
			Driver:  v.GetString("notification.driver"),
			Stream:  v.GetString("notification.stream"),
			MaxLen:  v.GetInt64("notification.max_len"),
			Subject: v.GetString("notification.subject"),
		},
		Reconcile: ReconcileConfig{
			Enabled:       v.GetBool("reconcile.enabled"),
			Hour:          v.GetInt("reconcile.hour"),
			CheckInterval: v.GetDuration("reconcile.check_interval"),
			Timeout:       v.GetDuration("reconcile.timeout"),
		},
		Idempotency: IdempotencyConfig{
			Enabled:   v.GetBool("idempotency.enabled"),
			Store:     v.GetString("idempotency.store"),
			TTL:       v.GetDuration("idempotency.ttl"),
			KeyPrefix: v.GetString("idempotency.key_prefix"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "stockledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "stockledger"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.Name == "" {
		cfg.NATS.Name = cfg.App.Name
	}
	if cfg.NATS.MaxReconnects == 0 {
		cfg.NATS.MaxReconnects = 10
	}
	if cfg.NATS.ReconnectWait == 0 {
		cfg.NATS.ReconnectWait = 2 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ServerAddress == "" {
		cfg.Profiling.ServerAddress = "http://localhost:4040"
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.App.Name
	}
	if len(cfg.Profiling.Types) == 0 {
		cfg.Profiling.Types = []string{"cpu", "alloc_space", "inuse_space", "mutex_duration", "block_duration"}
	}
	if cfg.Notification.Driver == "" {
		cfg.Notification.Driver = NotificationDriverLog
	}
	if cfg.Notification.Stream == "" {
		cfg.Notification.Stream = "stockledger:notifications"
	}
	if cfg.Notification.MaxLen == 0 {
		cfg.Notification.MaxLen = 10000
	}
	if cfg.Notification.Subject == "" {
		cfg.Notification.Subject = "stockledger.notifications"
	}
	if cfg.Reconcile.CheckInterval == 0 {
		cfg.Reconcile.CheckInterval = 15 * time.Minute
	}
	if cfg.Reconcile.Timeout == 0 {
		cfg.Reconcile.Timeout = 30 * time.Minute
	}
	if cfg.Idempotency.Store == "" {
		cfg.Idempotency.Store = IdempotencyStoreMemory
	}
	if cfg.Idempotency.TTL == 0 {
		cfg.Idempotency.TTL = 24 * time.Hour
	}
	if cfg.Idempotency.KeyPrefix == "" {
		cfg.Idempotency.KeyPrefix = "stockledger:idempotency:"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Notification.Driver {
	case NotificationDriverLog, NotificationDriverRedis, NotificationDriverNATS:
	default:
		return fmt.Errorf("notification.driver must be one of log, redis, nats, got %q", c.Notification.Driver)
	}

	switch c.Idempotency.Store {
	case IdempotencyStoreMemory, IdempotencyStoreRedis:
	default:
		return fmt.Errorf("idempotency.store must be one of memory, redis, got %q", c.Idempotency.Store)
	}

	if c.Profiling.Enabled {
		for _, name := range c.Profiling.Types {
			if !profileTypeNames[strings.ToLower(strings.TrimSpace(name))] {
				return fmt.Errorf("profiling.types contains unknown profile type %q", name)
			}
		}
	}

	if c.Reconcile.Hour < 0 || c.Reconcile.Hour > 23 {
		return fmt.Errorf("reconcile.hour must be between 0 and 23, got %d", c.Reconcile.Hour)
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
		if c.Notification.Driver == NotificationDriverLog {
			return fmt.Errorf("notification.driver cannot be 'log' in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
