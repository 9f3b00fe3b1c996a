// Package merge собирает выходы этапов pipeline в итоговый Payload скана
// и записывает его одним обновлением.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/domain"
	"github.com/shaiso/Playroom/internal/telemetry"
)

// ErrMergeWrite — запись результата не удалась; статус скана не изменён.
var ErrMergeWrite = errors.New("merge write failed")

// Merge собирает Payload. Функция чистая.
//
// Для каждого элемента roadmap берётся вердикт безопасности с тем же индексом;
// если его нет, рекомендация считается одобренной без изменений.
func Merge(
	inv domain.ToyInventory,
	quest domain.Quest,
	analysis domain.SkillAnalysis,
	safety domain.SafetyCheck,
	_ domain.Scan,
) domain.Payload {
	merged := make([]domain.MergedRoadmapItem, len(analysis.Roadmap))
	for i, item := range analysis.Roadmap {
		verdict := defaultVerdict(item)
		if i < len(safety.Items) {
			verdict = safety.Items[i]
		}
		merged[i] = domain.MergedRoadmapItem{
			RoadmapItem:         item,
			Decision:            verdict.Decision,
			FinalRecommendation: verdict.FinalRecommendation,
			SafetyRationale:     verdict.Rationale,
		}
	}

	return domain.Payload{
		StatusSummary:  Summarize(analysis),
		SkillScores:    analysis.Scores,
		MergedRoadmap:  merged,
		InventoryItems: inv.Items,
		Quest:          quest,
	}
}

// defaultVerdict — подстановка для отсутствующего вердикта.
func defaultVerdict(item domain.RoadmapItem) domain.SafetyItem {
	return domain.SafetyItem{
		Timeframe:           item.Timeframe,
		Decision:            domain.DecisionApproved,
		FinalRecommendation: item.Recommendation,
	}
}

// Summarize формирует краткую сводку: сильнейший и слабейший навык
// и текстовое резюме анализа.
func Summarize(analysis domain.SkillAnalysis) string {
	scores := analysis.Scores.Named()
	// Стабильная сортировка по убыванию; при равенстве сохраняется порядок Named
	slices.SortStableFunc(scores, func(a, b domain.NamedScore) int {
		return b.Score - a.Score
	})

	strongest := scores[0]
	weakest := scores[len(scores)-1]

	var sb strings.Builder
	fmt.Fprintf(&sb, "Strongest area: %s (%d). Needs attention: %s (%d).",
		label(strongest.Skill), strongest.Score, label(weakest.Skill), weakest.Score)
	if s := strings.TrimSpace(analysis.Summary); s != "" {
		sb.WriteString(" ")
		sb.WriteString(s)
	}
	return sb.String()
}

func label(skill string) string {
	return strings.ReplaceAll(skill, "_", " ")
}

// ScanCompleter — атомарная запись результата скана.
type ScanCompleter interface {
	Complete(ctx context.Context, id uuid.UUID, payload domain.Payload) error
}

// Writer записывает Payload и переводит скан в done.
type Writer struct {
	scans  ScanCompleter
	logger *slog.Logger
}

// NewWriter создаёт Writer.
func NewWriter(scans ScanCompleter, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{scans: scans, logger: logger}
}

// Write записывает результат одним обновлением.
// При ошибке возвращает ErrMergeWrite; скан остаётся pending и будет обработан повторно.
func (w *Writer) Write(ctx context.Context, scan domain.Scan, payload domain.Payload) error {
	if err := w.scans.Complete(ctx, scan.ID, payload); err != nil {
		telemetry.WithScanID(w.logger, scan.ID).Error("failed to write result", "error", err)
		return fmt.Errorf("%w: %v", ErrMergeWrite, err)
	}
	telemetry.ScansProcessed.WithLabelValues(string(domain.ScanStatusDone)).Inc()
	return nil
}
