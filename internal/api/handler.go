package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/admission"
	"github.com/shaiso/Playroom/internal/domain"
)

// Admission — приём сканов и состояние квоты.
type Admission interface {
	Submit(ctx context.Context, sub admission.Submission) (*admission.Result, error)
	Limits(ctx context.Context) (*admission.Limits, error)
}

// ScanReader читает скан по ID.
type ScanReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Scan, error)
}

// URLResolver строит публичный URL изображения по ключу.
type URLResolver interface {
	URL(key string) string
}

// Handler — обработчики API с зависимостями.
type Handler struct {
	admission     Admission
	scans         ScanReader
	images        URLResolver
	maxUploadSize int64
	getLimiter    *RateLimiter
	postLimiter   *RateLimiter
	logger        *slog.Logger
}

// Config — параметры Handler.
type Config struct {
	Admission     Admission
	Scans         ScanReader
	Images        URLResolver
	MaxUploadSize int64

	// Запросов в минуту с одного IP; 0 — без ограничения.
	GetRateLimit  int
	PostRateLimit int

	Logger *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = admission.DefaultMaxUploadSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		admission:     cfg.Admission,
		scans:         cfg.Scans,
		images:        cfg.Images,
		maxUploadSize: cfg.MaxUploadSize,
		getLimiter:    NewRateLimiter(cfg.GetRateLimit),
		postLimiter:   NewRateLimiter(cfg.PostRateLimit),
		logger:        cfg.Logger,
	}
}
