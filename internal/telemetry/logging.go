package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ParseLevel переводит имя уровня (DEBUG, INFO, WARN, ERROR) в slog.Level.
// Регистр не важен; неизвестное значение даёт INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogLevel — уровень из LOG_LEVEL.
func LogLevel() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// NewLogger строит логгер сервиса поверх w.
// format "text" — человекочитаемый вывод, всё остальное — JSON.
func NewLogger(w io.Writer, service, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", service)
}

// SetupLogger инициализирует глобальный логгер бинарника.
//
// Переменные окружения:
//   - LOG_LEVEL — DEBUG, INFO (по умолчанию), WARN, ERROR
//   - LOG_FORMAT — "json" (по умолчанию) или "text"
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(os.Stdout, service, os.Getenv("LOG_FORMAT"), LogLevel())
	slog.SetDefault(logger)
	return logger
}

type ctxKey struct{}

// WithLogger кладёт логгер в контекст (например, логгер с run_id на время прогона).
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext возвращает логгер из контекста, иначе fallback.
// Если и fallback nil — глобальный логгер.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

func WithRunID(logger *slog.Logger, runID uuid.UUID) *slog.Logger {
	return logger.With("run_id", runID.String())
}

func WithScanID(logger *slog.Logger, scanID uuid.UUID) *slog.Logger {
	return logger.With("scan_id", scanID.String())
}

// WithStage — логгер этапа pipeline.
func WithStage(logger *slog.Logger, stage string) *slog.Logger {
	return logger.With("stage", stage)
}
