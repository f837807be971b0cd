package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"ERP_APP_NAME",
	"ERP_APP_ENV",
	"ERP_APP_PORT",
	"ERP_DATABASE_HOST",
	"ERP_DATABASE_PORT",
	"ERP_DATABASE_USER",
	"ERP_DATABASE_PASSWORD",
	"ERP_DATABASE_DBNAME",
	"ERP_DATABASE_SSLMODE",
	"ERP_DATABASE_MAX_OPEN_CONNS",
	"ERP_DATABASE_MAX_IDLE_CONNS",
	"ERP_NATS_URL",
	"ERP_NOTIFICATION_DRIVER",
	"ERP_NOTIFICATION_STREAM",
	"ERP_RECONCILE_ENABLED",
	"ERP_RECONCILE_HOUR",
	"ERP_IDEMPOTENCY_ENABLED",
	"ERP_IDEMPOTENCY_STORE",
	"ERP_IDEMPOTENCY_TTL",
	"ERP_TELEMETRY_DB_LOG_FULL_SQL",
	"ERP_TELEMETRY_SAMPLING_RATIO",
	"ERP_PROFILING_ENABLED",
	"ERP_PROFILING_SERVER_ADDRESS",
	"ERP_PROFILING_TYPES",
	"ERP_PROFILING_SPAN_PROFILES",
}

// clearConfigEnv unsets every config variable for the duration of the test
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		original, ok := os.LookupEnv(k)
		os.Unsetenv(k)
		if ok {
			t.Cleanup(func() { os.Setenv(k, original) })
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearConfigEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "stockledger", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "postgres", cfg.Database.User)
		assert.Equal(t, "", cfg.Database.Password)
		assert.Equal(t, "stockledger", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
		assert.Equal(t, NotificationDriverLog, cfg.Notification.Driver)
		assert.Equal(t, "stockledger:notifications", cfg.Notification.Stream)
		assert.Equal(t, 3, cfg.Reconcile.Hour)
		assert.Equal(t, 15*time.Minute, cfg.Reconcile.CheckInterval)
		assert.False(t, cfg.Reconcile.Enabled)
		assert.True(t, cfg.Idempotency.Enabled)
		assert.Equal(t, IdempotencyStoreMemory, cfg.Idempotency.Store)
		assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
		assert.Equal(t, "stockledger:idempotency:", cfg.Idempotency.KeyPrefix)
		assert.False(t, cfg.Profiling.Enabled)
		assert.True(t, cfg.Profiling.SpanProfiles)
		assert.Equal(t, "http://localhost:4040", cfg.Profiling.ServerAddress)
		assert.Equal(t, "stockledger", cfg.Profiling.ApplicationName)
		assert.Equal(t, []string{"cpu", "alloc_space", "inuse_space", "mutex_duration", "block_duration"}, cfg.Profiling.Types)
	})

	t.Run("loads values from environment variables with ERP prefix", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_APP_NAME", "test-app")
		t.Setenv("ERP_APP_ENV", "testing")
		t.Setenv("ERP_APP_PORT", "9000")
		t.Setenv("ERP_DATABASE_HOST", "testdb.local")
		t.Setenv("ERP_DATABASE_PORT", "5433")
		t.Setenv("ERP_DATABASE_USER", "testuser")
		t.Setenv("ERP_DATABASE_PASSWORD", "testpass")
		t.Setenv("ERP_DATABASE_DBNAME", "testdb")
		t.Setenv("ERP_DATABASE_SSLMODE", "require")
		t.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("ERP_NATS_URL", "nats://bus.local:4222")
		t.Setenv("ERP_NOTIFICATION_DRIVER", "nats")
		t.Setenv("ERP_RECONCILE_ENABLED", "true")
		t.Setenv("ERP_RECONCILE_HOUR", "22")
		t.Setenv("ERP_IDEMPOTENCY_ENABLED", "false")
		t.Setenv("ERP_IDEMPOTENCY_STORE", "redis")
		t.Setenv("ERP_IDEMPOTENCY_TTL", "2h")
		t.Setenv("ERP_PROFILING_ENABLED", "true")
		t.Setenv("ERP_PROFILING_SERVER_ADDRESS", "http://pyroscope:4040")
		t.Setenv("ERP_PROFILING_TYPES", "cpu goroutines")
		t.Setenv("ERP_PROFILING_SPAN_PROFILES", "false")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testuser", cfg.Database.User)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, "testdb", cfg.Database.DBName)
		assert.Equal(t, "require", cfg.Database.SSLMode)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, "nats://bus.local:4222", cfg.NATS.URL)
		assert.Equal(t, NotificationDriverNATS, cfg.Notification.Driver)
		assert.True(t, cfg.Reconcile.Enabled)
		assert.Equal(t, 22, cfg.Reconcile.Hour)
		assert.Equal(t, "test-app", cfg.Telemetry.ServiceName)
		assert.False(t, cfg.Idempotency.Enabled)
		assert.Equal(t, IdempotencyStoreRedis, cfg.Idempotency.Store)
		assert.Equal(t, 2*time.Hour, cfg.Idempotency.TTL)
		assert.True(t, cfg.Profiling.Enabled)
		assert.False(t, cfg.Profiling.SpanProfiles)
		assert.Equal(t, "http://pyroscope:4040", cfg.Profiling.ServerAddress)
		assert.Equal(t, "test-app", cfg.Profiling.ApplicationName)
		assert.Equal(t, []string{"cpu", "goroutines"}, cfg.Profiling.Types)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("zero MaxOpenConns uses default", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "0")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})

	t.Run("rejects unknown notification driver", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_NOTIFICATION_DRIVER", "smtp")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notification.driver")
	})

	t.Run("rejects unknown idempotency store", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_IDEMPOTENCY_STORE", "memcached")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "idempotency.store")
	})

	t.Run("rejects unknown profile type when profiling is enabled", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_PROFILING_ENABLED", "true")
		t.Setenv("ERP_PROFILING_TYPES", "cpu heap")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown profile type "heap"`)
	})

	t.Run("ignores profile types while profiling is disabled", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_PROFILING_TYPES", "heap")

		_, err := Load()
		require.NoError(t, err)
	})

	t.Run("reconcile hour accepts midnight", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_RECONCILE_HOUR", "0")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Reconcile.Hour)
	})

	t.Run("rejects reconcile hour out of range", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_RECONCILE_HOUR", "24")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reconcile.hour")
	})

	t.Run("rejects sampling ratio above one", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("ERP_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("ERP_APP_ENV", "production")
		t.Setenv("ERP_DATABASE_PASSWORD", "secure-password")
		t.Setenv("ERP_DATABASE_SSLMODE", "require")
		t.Setenv("ERP_NOTIFICATION_DRIVER", "redis")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		clearConfigEnv(t)
		setValidProductionBase(t)
		os.Unsetenv("ERP_DATABASE_PASSWORD")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		clearConfigEnv(t)
		setValidProductionBase(t)
		t.Setenv("ERP_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects full SQL logging in production", func(t *testing.T) {
		clearConfigEnv(t)
		setValidProductionBase(t)
		t.Setenv("ERP_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})

	t.Run("rejects log notifier in production", func(t *testing.T) {
		clearConfigEnv(t)
		setValidProductionBase(t)
		t.Setenv("ERP_NOTIFICATION_DRIVER", "log")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notification.driver cannot be 'log' in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		clearConfigEnv(t)
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
		assert.Equal(t, NotificationDriverRedis, cfg.Notification.Driver)
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache.local", Port: 6380}
	assert.Equal(t, "cache.local:6380", cfg.Addr())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "pass%40word%23123")
	})
}
