// Package admission решает, принимается ли новый скан в систему.
//
// Порядок проверок в Submit:
//  1. sha256 содержимого
//  2. существующий скан с тем же хэшем → cached, без нового run и без учёта квоты
//  3. точный пересчёт квоты (bypass кэша) → ErrQuotaExceeded
//  4. загрузка изображения, вставка pending скана, запуск pipeline run
package admission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/blob"
	"github.com/shaiso/Playroom/internal/domain"
	"github.com/shaiso/Playroom/internal/repo"
	"github.com/shaiso/Playroom/internal/telemetry"
)

// Ограничения по умолчанию.
const (
	DefaultDailyLimit    = 20
	DefaultMaxUploadSize = 10 << 20
	MaxSubjectAge        = 18
)

// ScanStore — операции хранилища, нужные для приёма.
type ScanStore interface {
	GetByHash(ctx context.Context, hash string) (*domain.Scan, error)
	Create(ctx context.Context, scan *domain.Scan) error
}

// BlobWriter — запись и удаление изображений.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// QuotaCounter — дневной счётчик (quota.Cache).
type QuotaCounter interface {
	CountToday(ctx context.Context, bypass bool) (int, error)
}

// Trigger запускает pipeline run в workflow engine.
type Trigger interface {
	Trigger(ctx context.Context, pipeline string) (string, error)
}

// Submission — входные данные одного скана.
type Submission struct {
	Data       []byte
	SubjectAge int
	Filename   string
}

// Result — результат приёма.
type Result struct {
	ID       uuid.UUID
	Status   domain.ScanStatus
	Accepted bool
	Cached   bool
	// RunID пустой для cached и при ошибке trigger.
	RunID string
}

// Limits — состояние дневной квоты.
type Limits struct {
	DailyLimit int `json:"daily_limit"`
	UsedToday  int `json:"used_today"`
	Remaining  int `json:"remaining"`
}

// Config — зависимости и параметры Controller.
type Config struct {
	Scans         ScanStore
	Blobs         BlobWriter
	Quota         QuotaCounter
	Trigger       Trigger
	DailyLimit    int
	MaxUploadSize int
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Controller — admission controller.
type Controller struct {
	scans      ScanStore
	blobs      BlobWriter
	quota      QuotaCounter
	trigger    Trigger
	dailyLimit int
	maxUpload  int
	logger     *slog.Logger
	now        func() time.Time
}

// New создаёт Controller.
func New(cfg Config) *Controller {
	if cfg.DailyLimit < 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Controller{
		scans:      cfg.Scans,
		blobs:      cfg.Blobs,
		quota:      cfg.Quota,
		trigger:    cfg.Trigger,
		dailyLimit: cfg.DailyLimit,
		maxUpload:  cfg.MaxUploadSize,
		logger:     cfg.Logger,
		now:        cfg.Clock,
	}
}

// Submit принимает скан.
func (c *Controller) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if err := c.validate(sub); err != nil {
		telemetry.Admissions.WithLabelValues("invalid").Inc()
		return nil, err
	}

	sum := sha256.Sum256(sub.Data)
	hash := hex.EncodeToString(sum[:])

	// Повторная отправка тех же байт бесплатна
	existing, err := c.scans.GetByHash(ctx, hash)
	if err == nil {
		telemetry.Admissions.WithLabelValues("cached").Inc()
		return cachedResult(existing), nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup by hash: %w", err)
	}

	used, err := c.quota.CountToday(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("check quota: %w", err)
	}
	if used >= c.dailyLimit {
		telemetry.Admissions.WithLabelValues("quota_exceeded").Inc()
		return nil, ErrQuotaExceeded
	}

	scan := &domain.Scan{
		ID:          uuid.New(),
		ContentHash: hash,
		SubjectAge:  sub.SubjectAge,
		Status:      domain.ScanStatusPending,
		CreatedAt:   c.now().UTC(),
	}
	scan.ContentPath = blob.ScanKey(scan.ID.String(), sub.Filename)

	logger := telemetry.WithScanID(c.logger, scan.ID)

	if err := c.blobs.Put(ctx, scan.ContentPath, sub.Data, blob.ContentType(scan.ContentPath)); err != nil {
		telemetry.Admissions.WithLabelValues("upload_failed").Inc()
		logger.Error("upload failed", "path", scan.ContentPath, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	if err := c.scans.Create(ctx, scan); err != nil {
		c.discardBlob(ctx, logger, scan.ContentPath)

		// Параллельный запрос с теми же байтами успел раньше
		if errors.Is(err, repo.ErrAlreadyExists) {
			winner, getErr := c.scans.GetByHash(ctx, hash)
			if getErr != nil {
				return nil, fmt.Errorf("reread after conflict: %w", getErr)
			}
			telemetry.Admissions.WithLabelValues("cached").Inc()
			return cachedResult(winner), nil
		}
		return nil, fmt.Errorf("insert scan: %w", err)
	}

	telemetry.Admissions.WithLabelValues("new").Inc()
	logger.Info("scan accepted", "path", scan.ContentPath, "age", scan.SubjectAge)

	result := &Result{
		ID:       scan.ID,
		Status:   scan.Status,
		Accepted: true,
	}

	// Ошибка trigger не отменяет приём: pending скан подхватит следующий run
	runID, err := c.trigger.Trigger(ctx, domain.PipelineProcessScans)
	if err != nil {
		logger.Error("failed to trigger pipeline run", "error", err)
		return result, nil
	}
	result.RunID = runID
	logger.Info("pipeline run triggered", "run_id", runID)

	return result, nil
}

// Limits возвращает состояние квоты по кэшированному счётчику.
func (c *Controller) Limits(ctx context.Context) (*Limits, error) {
	used, err := c.quota.CountToday(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("count today: %w", err)
	}
	return &Limits{
		DailyLimit: c.dailyLimit,
		UsedToday:  used,
		Remaining:  max(c.dailyLimit-used, 0),
	}, nil
}

func (c *Controller) validate(sub Submission) error {
	if len(sub.Data) == 0 {
		return fmt.Errorf("%w: empty file", ErrInvalidSubmission)
	}
	if len(sub.Data) > c.maxUpload {
		return fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidSubmission, c.maxUpload)
	}
	if sub.SubjectAge < 0 || sub.SubjectAge > MaxSubjectAge {
		return fmt.Errorf("%w: age must be between 0 and %d", ErrInvalidSubmission, MaxSubjectAge)
	}
	return nil
}

// discardBlob удаляет загруженное изображение, если строка не создана.
func (c *Controller) discardBlob(ctx context.Context, logger *slog.Logger, key string) {
	if err := c.blobs.Delete(ctx, key); err != nil {
		logger.Warn("failed to discard blob", "path", key, "error", err)
	}
}

func cachedResult(scan *domain.Scan) *Result {
	return &Result{
		ID:       scan.ID,
		Status:   scan.Status,
		Accepted: true,
		Cached:   true,
	}
}
