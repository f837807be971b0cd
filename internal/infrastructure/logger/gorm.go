package logger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger writes gorm's statements and warnings through zap. Record-not-found
// errors are expected lookups in the repositories and are never logged.
type GormLogger struct {
	logger        *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger creates a gorm logger at the named level (silent, error, warn, info)
func NewGormLogger(base *zap.Logger, level string, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{
		logger:        base.Named("gorm").WithOptions(zap.AddCallerSkip(3)),
		level:         GormLevel(level),
		slowThreshold: slowThreshold,
	}
}

// GormLevel maps a configured level name to gorm's level. Unknown names map to warn.
func GormLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		Traced(ctx, l.logger).Sugar().Infof(msg, data...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		Traced(ctx, l.logger).Sugar().Warnf(msg, data...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		Traced(ctx, l.logger).Sugar().Errorf(msg, data...)
	}
}

// Trace implements gormlogger.Interface
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
	case slow && l.level >= gormlogger.Warn:
	case l.level >= gormlogger.Info:
	default:
		return
	}

	sql, rows := fc()
	log := Traced(ctx, l.logger).With(
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		log.Error("sql failed", zap.Error(err))
	case slow:
		log.Warn("slow sql", zap.Duration("threshold", l.slowThreshold))
	default:
		log.Debug("sql")
	}
}
