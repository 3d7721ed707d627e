package storage

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"
)

// GormLogger 适配zerolog的GORM logger实现
type GormLogger struct {
	log      *zerolog.Logger
	LogLevel logger.LogLevel
}

// NewGormLogger 创建新的GormLogger实例
func NewGormLogger(l *zerolog.Logger) *GormLogger {
	return &GormLogger{
		log:      l,
		LogLevel: logger.Warn, // 默认日志级别
	}
}

// LogMode 设置日志级别
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info 打印info级别日志
func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Info {
		l.log.Info().Any("data", data).Msg(msg)
	}
}

// Warn 打印warn级别日志
func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Warn {
		l.log.Warn().Any("data", data).Msg(msg)
	}
}

// Error 打印error级别日志
func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Error {
		l.log.Error().Any("data", data).Msg(msg)
	}
}

// Trace 打印SQL日志
func (l *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	evt := func(e *zerolog.Event) *zerolog.Event {
		return e.Str("sql", sql).Int64("rows", rows).Float64("timeMs", float64(elapsed.Nanoseconds())/1e6)
	}

	switch {
	case err != nil && l.LogLevel >= logger.Error:
		evt(l.log.Error()).Err(err).Msg("SQL执行错误")
	case elapsed > time.Second && l.LogLevel >= logger.Warn:
		evt(l.log.Warn()).Str("threshold", "1s").Msg("慢SQL查询")
	case l.LogLevel == logger.Info:
		evt(l.log.Debug()).Msg("SQL执行")
	}
}
