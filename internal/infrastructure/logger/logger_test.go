package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestForEnvironment(t *testing.T) {
	assert.Equal(t, "console", ForEnvironment("development").Format)
	assert.Equal(t, "json", ForEnvironment("production").Format)
	assert.Equal(t, "info", ForEnvironment("production").Level)
}

func TestNew(t *testing.T) {
	t.Run("rejects unknown levels", func(t *testing.T) {
		_, err := New(&Config{Level: "chatty"})
		assert.Error(t, err)
	})

	t.Run("writes json lines to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ledger.log")
		l, err := New(&Config{Level: "debug", Format: "json", Output: path})
		require.NoError(t, err)

		l.Debug("stock reserved")
		require.NoError(t, l.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"stock reserved"`)
		assert.Contains(t, string(data), `"level":"debug"`)
	})

	t.Run("fails when the output cannot be opened", func(t *testing.T) {
		_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "ledger.log")})
		assert.Error(t, err)
	})

	t.Run("tees into extra cores", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		l, err := New(&Config{Level: "error", Format: "json", Output: "stderr"}, core)
		require.NoError(t, err)

		l.Info("dropped by both")
		l.Warn("only the extra core")
		assert.Equal(t, 1, logs.Len())
		assert.Equal(t, "only the extra core", logs.All()[0].Message)
	})
}
