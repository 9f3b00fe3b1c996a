// Package retention удаляет старые сканы и изображения без владельца.
//
// Две независимые задачи:
//   - Sweep — удаление сканов старше ageDays, кроме whitelist
//   - ReconcileOrphans — удаление изображений, на которые не ссылается ни один скан
//
// Start выполняет Sweep сразу, затем один раз ReconcileOrphans и ставит
// Sweep на интервал. Новый запуск не начинается, пока идёт предыдущий.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/Playroom/internal/blob"
	"github.com/shaiso/Playroom/internal/domain"
	"github.com/shaiso/Playroom/internal/repo"
	"github.com/shaiso/Playroom/internal/telemetry"
)

// ScanStore — операции хранилища сканов для retention.
type ScanStore interface {
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Scan, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListContentPaths(ctx context.Context) (map[string]struct{}, error)
}

// BlobStore — операции object store для retention.
type BlobStore interface {
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]blob.Object, error)
}

// DefaultOrphanGrace — изображения моложе этого возраста не считаются сиротами:
// admission загружает изображение до вставки строки скана.
const DefaultOrphanGrace = 15 * time.Minute

// Config — конфигурация Sweeper.
type Config struct {
	Scans     ScanStore
	Blobs     BlobStore
	AgeDays   int
	Interval  time.Duration
	Whitelist map[uuid.UUID]struct{}
	// OrphanGrace — минимальный возраст изображения для ReconcileOrphans.
	OrphanGrace time.Duration
	Clock       func() time.Time
	Logger      *slog.Logger
}

// Sweeper — retention sweeper.
type Sweeper struct {
	scans     ScanStore
	blobs     BlobStore
	ageDays   int
	interval  time.Duration
	whitelist map[uuid.UUID]struct{}
	grace     time.Duration
	now       func() time.Time
	logger    *slog.Logger

	cron *cron.Cron
}

// New создаёт Sweeper.
func New(cfg Config) *Sweeper {
	if cfg.AgeDays <= 0 {
		cfg.AgeDays = 2
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.OrphanGrace <= 0 {
		cfg.OrphanGrace = DefaultOrphanGrace
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper{
		scans:     cfg.Scans,
		blobs:     cfg.Blobs,
		ageDays:   cfg.AgeDays,
		interval:  cfg.Interval,
		whitelist: cfg.Whitelist,
		grace:     cfg.OrphanGrace,
		now:       cfg.Clock,
		logger:    cfg.Logger,
	}
}

// SweepReport — итог одного Sweep.
type SweepReport struct {
	Candidates   int
	Protected    int
	BlobsDeleted int
	RowsDeleted  int
	Errors       int
}

// OrphanReport — итог ReconcileOrphans.
type OrphanReport struct {
	Listed     int
	Referenced int
	// Recent — изображения моложе OrphanGrace, пропущенные без проверки.
	Recent  int
	Deleted int
	Errors  int
}

// Sweep удаляет сканы, созданные раньше now - ageDays, кроме whitelist.
//
// Изображения и строки удаляются по одной; ошибка отдельного удаления
// логируется и не прерывает проход. Строки удаляются по id, поэтому
// исключённые whitelist сканы не затрагиваются.
func (s *Sweeper) Sweep(ctx context.Context, ageDays int, whitelist map[uuid.UUID]struct{}) SweepReport {
	var report SweepReport
	cutoff := s.now().Add(-time.Duration(ageDays) * 24 * time.Hour)

	candidates, err := s.scans.ListCreatedBefore(ctx, cutoff)
	if err != nil {
		telemetry.SweepErrors.Inc()
		s.logger.Error("failed to list expired scans", "cutoff", cutoff, "error", err)
		report.Errors++
		return report
	}
	report.Candidates = len(candidates)

	expired := make([]domain.Scan, 0, len(candidates))
	for _, scan := range candidates {
		if _, ok := whitelist[scan.ID]; ok {
			report.Protected++
			continue
		}
		expired = append(expired, scan)
	}

	if len(expired) == 0 {
		s.logger.Debug("nothing to sweep", "cutoff", cutoff, "protected", report.Protected)
		return report
	}

	for _, scan := range expired {
		if scan.ContentPath == "" {
			continue
		}
		if err := s.deleteBlob(ctx, scan.ContentPath); err != nil {
			report.Errors++
			telemetry.SweepErrors.Inc()
			s.logger.Warn("failed to delete blob", "scan_id", scan.ID, "path", scan.ContentPath, "error", err)
			continue
		}
		report.BlobsDeleted++
		telemetry.SweepDeletions.WithLabelValues("blob").Inc()
	}

	for _, scan := range expired {
		err := s.scans.Delete(ctx, scan.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			report.Errors++
			telemetry.SweepErrors.Inc()
			s.logger.Warn("failed to delete scan", "scan_id", scan.ID, "error", err)
			continue
		}
		report.RowsDeleted++
		telemetry.SweepDeletions.WithLabelValues("scan").Inc()
	}

	s.logger.Info("sweep completed",
		"cutoff", cutoff,
		"candidates", report.Candidates,
		"protected", report.Protected,
		"blobs_deleted", report.BlobsDeleted,
		"rows_deleted", report.RowsDeleted,
		"errors", report.Errors,
	)
	return report
}

// ReconcileOrphans удаляет изображения под blob.ScanPrefix, на которые не
// ссылается ни один скан. Изображения моложе OrphanGrace не трогаются:
// строка скана для них может быть ещё не вставлена.
// Ошибки логируются, наружу не возвращаются.
func (s *Sweeper) ReconcileOrphans(ctx context.Context) OrphanReport {
	var report OrphanReport

	objects, err := s.blobs.List(ctx, blob.ScanPrefix)
	if err != nil {
		s.logger.Error("failed to list blobs", "prefix", blob.ScanPrefix, "error", err)
		report.Errors++
		return report
	}
	report.Listed = len(objects)
	cutoff := s.now().Add(-s.grace)

	referenced, err := s.scans.ListContentPaths(ctx)
	if err != nil {
		s.logger.Error("failed to list referenced paths", "error", err)
		report.Errors++
		return report
	}
	report.Referenced = len(referenced)

	for _, obj := range objects {
		key := obj.Key
		if _, ok := referenced[key]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			report.Recent++
			continue
		}
		if err := s.deleteBlob(ctx, key); err != nil {
			report.Errors++
			telemetry.SweepErrors.Inc()
			s.logger.Warn("failed to delete orphan blob", "path", key, "error", err)
			continue
		}
		report.Deleted++
		telemetry.SweepDeletions.WithLabelValues("orphan").Inc()
	}

	s.logger.Info("orphan reconcile completed",
		"listed", report.Listed,
		"referenced", report.Referenced,
		"recent", report.Recent,
		"deleted", report.Deleted,
		"errors", report.Errors,
	)
	return report
}

// deleteBlob удаляет изображение; отсутствие объекта ошибкой не считается.
func (s *Sweeper) deleteBlob(ctx context.Context, key string) error {
	err := s.blobs.Delete(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil
	}
	return err
}

// Start запускает sweeper: сразу Sweep, затем ReconcileOrphans, затем Sweep по расписанию.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("starting retention sweeper",
		"age_days", s.ageDays,
		"interval", s.interval,
		"whitelist", len(s.whitelist),
	)

	s.Sweep(ctx, s.ageDays, s.whitelist)
	s.ReconcileOrphans(ctx)

	logger := cronLogger{s.logger}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.Sweep(ctx, s.ageDays, s.whitelist)
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}

	s.cron.Start()
	return nil
}

// Stop останавливает расписание и ждёт завершения текущего Sweep.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("retention sweeper stopped")
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
