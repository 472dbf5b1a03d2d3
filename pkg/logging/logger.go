// 文件: pkg/logging/logger.go
// 结构化日志 (slog)
//
// - 配置了文件路径时用 lumberjack 切割，否则输出到 stdout
// - 每条日志带 service/module
// - GormLogger 把 SQL 日志接到同一个 slog

package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	gormlogger "gorm.io/gorm/logger"
)

// Config 日志配置
type Config struct {
	Service    string `mapstructure:"service"`
	Module     string `mapstructure:"module"`
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`        // 为空则只输出到 stdout
	MaxSize    int    `mapstructure:"max_size"`    // 单文件上限 (MB)
	MaxBackups int    `mapstructure:"max_backups"` // 保留旧文件个数
	MaxAge     int    `mapstructure:"max_age"`     // 保留天数
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig 默认配置
func DefaultConfig(service string) Config {
	return Config{
		Service:    service,
		Module:     "main",
		Level:      "info",
		Format:     "json",
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// ParseLevel 文本级别 → slog 级别，未知时返回 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New 按配置创建 logger，返回的 io.Closer 用于关闭日志文件
func New(cfg Config) (*slog.Logger, io.Closer) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		w, closer = lj, lj
	}
	return NewWithWriter(cfg, w), closer
}

// NewWithWriter 输出到指定 writer
func NewWithWriter(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "timestamp"
			}
			return a
		},
	}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	l := slog.New(h)
	if cfg.Service != "" {
		l = l.With(slog.String("service", cfg.Service))
	}
	if cfg.Module != "" {
		l = l.With(slog.String("module", cfg.Module))
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// =============================================================================
// GORM
// =============================================================================

// GormLogger 实现 gorm logger.Interface
type GormLogger struct {
	logger        *slog.Logger
	SlowThreshold time.Duration
}

// NewGormLogger 创建 GORM 日志适配器
func NewGormLogger(l *slog.Logger, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{logger: l.With(slog.String("component", "gorm")), SlowThreshold: slowThreshold}
}

// LogMode 级别由 slog handler 控制
func (l *GormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
}

// Trace 出错记 Error，慢查询记 Warn，其余 Debug
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	attrs := []any{slog.String("sql", sql), slog.Duration("elapsed", elapsed)}
	if rows != -1 {
		attrs = append(attrs, slog.Int64("rows", rows))
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		l.logger.ErrorContext(ctx, "gorm query failed", append(attrs, slog.Any("err", err))...)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		l.logger.WarnContext(ctx, "gorm slow query", attrs...)
	default:
		l.logger.DebugContext(ctx, "gorm query", attrs...)
	}
}
