package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) CheckAll(ctx context.Context) (int, []ledger.InvariantReport, error) {
	args := m.Called(ctx)
	var reports []ledger.InvariantReport
	if r := args.Get(1); r != nil {
		reports = r.([]ledger.InvariantReport)
	}
	return args.Int(0), reports, args.Error(2)
}

func newTestReconciler(runner InvariantRunner, hour int) (*Reconciler, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewReconciler(runner, config.ReconcileConfig{
		Enabled:       true,
		Hour:          hour,
		CheckInterval: 10 * time.Millisecond,
		Timeout:       time.Minute,
	}, zap.New(core))
	return r, logs
}

func TestReconciler_Due(t *testing.T) {
	r, _ := newTestReconciler(&mockRunner{}, 3)

	tests := []struct {
		name     string
		time     time.Time
		expected bool
	}{
		{name: "start of the hour", time: time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), expected: true},
		{name: "late in the hour", time: time.Date(2026, 3, 10, 3, 59, 0, 0, time.UTC), expected: true},
		{name: "wrong hour", time: time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC), expected: false},
		{name: "midnight", time: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.due(tt.time))
		})
	}

	t.Run("once per day", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("CheckAll", mock.Anything).Return(0, nil, nil)
		r, _ := newTestReconciler(runner, 3)
		r.SetClock(func() time.Time { return time.Date(2026, 3, 10, 3, 5, 0, 0, time.UTC) })

		r.RunOnce(context.Background())
		assert.False(t, r.due(time.Date(2026, 3, 10, 3, 20, 0, 0, time.UTC)))
		assert.True(t, r.due(time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC)))
	})
}

func TestReconciler_CalculateNextRunTime(t *testing.T) {
	r, _ := newTestReconciler(&mockRunner{}, 3)

	r.calculateNextRunTime(time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC), *r.NextRunAt())

	r.calculateNextRunTime(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), *r.NextRunAt())
}

func TestReconciler_RunOnce(t *testing.T) {
	t.Run("records a clean run", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("CheckAll", mock.MatchedBy(func(ctx context.Context) bool {
			_, hasDeadline := ctx.Deadline()
			return hasDeadline && logger.Actor(ctx) == reconcilerActor
		})).Return(12, nil, nil)
		r, logs := newTestReconciler(runner, 3)

		summary := r.RunOnce(context.Background())
		assert.Equal(t, 12, summary.Checked)
		assert.Zero(t, summary.Violations)
		assert.Empty(t, summary.Error)
		assert.Equal(t, 1, logs.FilterMessage("Stock reconciliation finished").Len())

		last := r.LastRun()
		require.NotNil(t, last)
		assert.Equal(t, 12, last.Checked)
		runner.AssertExpectations(t)
	})

	t.Run("warns on violations", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("CheckAll", mock.Anything).Return(4, []ledger.InvariantReport{{
			StockID:    uuid.New(),
			Violations: []string{"quantity 20 does not match batch on-hand total 25"},
		}}, nil)
		r, logs := newTestReconciler(runner, 3)

		summary := r.RunOnce(context.Background())
		assert.Equal(t, 1, summary.Violations)

		entries := logs.FilterMessage("Stock reconciliation found violations").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, reconcilerActor, entries[0].ContextMap()["actor"])
	})

	t.Run("keeps the error of a failed run", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("CheckAll", mock.Anything).Return(0, nil, errors.New("connection reset"))
		r, logs := newTestReconciler(runner, 3)

		summary := r.RunOnce(context.Background())
		assert.Equal(t, "connection reset", summary.Error)
		assert.Equal(t, 1, logs.FilterMessage("Stock reconciliation failed").Len())
	})
}

func TestReconciler_StartStop(t *testing.T) {
	t.Run("runs when the hour comes around", func(t *testing.T) {
		runner := &mockRunner{}
		ran := make(chan struct{}, 1)
		runner.On("CheckAll", mock.Anything).Return(1, nil, nil).Run(func(mock.Arguments) {
			select {
			case ran <- struct{}{}:
			default:
			}
		})
		r, _ := newTestReconciler(runner, 3)
		r.SetClock(func() time.Time { return time.Date(2026, 3, 10, 3, 15, 0, 0, time.UTC) })

		require.NoError(t, r.Start(context.Background()))
		assert.True(t, r.IsRunning())

		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("reconciliation did not run")
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, r.Stop(ctx))
		assert.False(t, r.IsRunning())
		runner.AssertNumberOfCalls(t, "CheckAll", 1)
	})

	t.Run("disabled reconciliation never starts", func(t *testing.T) {
		r := NewReconciler(&mockRunner{}, config.ReconcileConfig{Enabled: false}, nil)
		require.NoError(t, r.Start(context.Background()))
		assert.False(t, r.IsRunning())
		assert.ErrorIs(t, r.TriggerManualRun(context.Background()), ErrSchedulerNotRunning)
		require.NoError(t, r.Stop(context.Background()))
	})

	t.Run("manual runs are waited for on stop", func(t *testing.T) {
		runner := &mockRunner{}
		runner.On("CheckAll", mock.Anything).Return(2, nil, nil)
		r, _ := newTestReconciler(runner, 3)
		r.SetClock(func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) })

		require.NoError(t, r.Start(context.Background()))
		require.NoError(t, r.TriggerManualRun(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, r.Stop(ctx))

		last := r.LastRun()
		require.NotNil(t, last)
		assert.Equal(t, 2, last.Checked)
	})
}
