package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// defaultSlowQueryThreshold 慢查询阈值
const defaultSlowQueryThreshold = 200 * time.Millisecond

// GormLogger 将 gorm 日志输出到全局 zap 日志
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
	base          func() *zap.Logger
}

// NewGormLogger 创建 gorm 日志适配器
func NewGormLogger(level gormlogger.LogLevel) *GormLogger {
	return &GormLogger{level: level, slowThreshold: defaultSlowQueryThreshold, base: Z}
}

// LogMode 实现 gorm logger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

// Info 实现 gorm logger.Interface
func (l *GormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.sugar().Infow("gorm_info", "detail", fmt.Sprintf(msg, args...))
	}
}

// Warn 实现 gorm logger.Interface
func (l *GormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.sugar().Warnw("gorm_warn", "detail", fmt.Sprintf(msg, args...))
	}
}

// Error 实现 gorm logger.Interface
func (l *GormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.sugar().Errorw("gorm_error", "detail", fmt.Sprintf(msg, args...))
	}
}

// Trace 实现 gorm logger.Interface，记录失败与慢查询
func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.sugar().Errorw("gorm_query_failed",
			"error", err,
			"elapsed_ms", elapsed.Milliseconds(),
			"rows", rows,
			"sql", sql,
		)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.sugar().Warnw("gorm_slow_query",
			"elapsed_ms", elapsed.Milliseconds(),
			"threshold_ms", l.slowThreshold.Milliseconds(),
			"rows", rows,
			"sql", sql,
		)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.sugar().Debugw("gorm_query",
			"elapsed_ms", elapsed.Milliseconds(),
			"rows", rows,
			"sql", sql,
		)
	}
}

func (l *GormLogger) sugar() *zap.SugaredLogger {
	return l.base().WithOptions(zap.AddCallerSkip(2)).Sugar()
}
