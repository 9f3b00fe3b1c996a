package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Playroom/internal/blob"
	"github.com/shaiso/Playroom/internal/domain"
	"github.com/shaiso/Playroom/internal/merge"
	"github.com/shaiso/Playroom/internal/telemetry"
)

// Этапы pipeline.
const (
	StageFetch   = "fetch"
	StageExtract = "extract"
	StageAnalyze = "analyze"
	StageQuest   = "quest"
	StageSafety  = "safety"
	StageMerge   = "merge"
)

// DefaultConcurrency — ограничение параллельных вызовов модели на этап.
const DefaultConcurrency = 2

// ScanStore — операции хранилища сканов.
type ScanStore interface {
	ListPending(ctx context.Context) ([]domain.Scan, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) error
}

// ImageReader читает изображения сканов.
type ImageReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Model — внешняя vision/language модель.
type Model interface {
	ExtractInventory(ctx context.Context, image []byte, mimeType string) (*domain.ToyInventory, error)
	AnalyzeSkills(ctx context.Context, inv domain.ToyInventory, age int) (*domain.SkillAnalysis, error)
	GenerateQuest(ctx context.Context, inv domain.ToyInventory, age int) (*domain.Quest, error)
	CheckSafety(ctx context.Context, roadmap []domain.RoadmapItem, age int) (*domain.SafetyCheck, error)
}

// CareerLookup — справочник профессий по навыку.
type CareerLookup interface {
	CareersForSkill(ctx context.Context, skill string) ([]string, error)
}

// ResultWriter записывает итог скана (merge.Writer).
type ResultWriter interface {
	Write(ctx context.Context, scan domain.Scan, payload domain.Payload) error
}

// Config — зависимости Pipeline.
type Config struct {
	Scans       ScanStore
	Images      ImageReader
	Model       Model
	Careers     CareerLookup // опционально
	Writer      ResultWriter
	Concurrency int
	Logger      *slog.Logger
}

// Pipeline — исполнитель графа этапов.
type Pipeline struct {
	scans   ScanStore
	images  ImageReader
	model   Model
	careers CareerLookup
	writer  ResultWriter
	limit   int
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New создаёт Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		scans:   cfg.Scans,
		images:  cfg.Images,
		model:   cfg.Model,
		careers: cfg.Careers,
		writer:  cfg.Writer,
		limit:   cfg.Concurrency,
		logger:  cfg.Logger,
		tracer:  telemetry.Tracer(),
	}
}

// Report — итог run.
type Report struct {
	Items int
	Done  int
	// Failed — сканы, переведённые в error.
	Failed int
	// Retry — сканы, для которых не удалась запись результата; остались pending.
	Retry    int
	Failures []error
}

// Stats возвращает статистику для PipelineRun.
func (r *Report) Stats() domain.RunStats {
	return domain.RunStats{Items: r.Items, Done: r.Done, Failed: r.Failed}
}

// analyzed — выход Analyze вместе с найденными профессиями.
type analyzed struct {
	Analysis domain.SkillAnalysis
	Careers  map[string][]string
}

// Run выполняет один проход по всем pending сканам.
//
// Возвращает ошибку только для фатальных случаев: сбой Fetch или
// ErrAlignmentViolation. Ошибки отдельных сканов отражаются в Report.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	start := time.Now()
	logger := telemetry.FromContext(ctx, p.logger)

	scans, err := p.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: %w", StageFetch, err)
	}
	span.SetAttributes(attribute.Int("pipeline.items", len(scans)))

	report := &Report{Items: len(scans)}
	if len(scans) == 0 {
		logger.Debug("no pending scans")
		return report, nil
	}

	logger.Info("pipeline started", "items", len(scans))

	if err := p.process(ctx, scans, report); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	logger.Info("pipeline finished",
		"items", report.Items,
		"done", report.Done,
		"failed", report.Failed,
		"retry", report.Retry,
		"duration", time.Since(start),
	)
	return report, nil
}

func (p *Pipeline) fetch(ctx context.Context) ([]domain.Scan, error) {
	ctx, span := p.tracer.Start(ctx, "stage."+StageFetch)
	defer span.End()
	return p.scans.ListPending(ctx)
}

func (p *Pipeline) process(ctx context.Context, scans []domain.Scan, report *Report) error {
	batch := Lift(scans)

	// Extract
	inventories := stage(ctx, p, StageExtract, batch, func(ctx context.Context, scan domain.Scan) (domain.ToyInventory, error) {
		image, err := p.images.Get(ctx, scan.ContentPath)
		if err != nil {
			return domain.ToyInventory{}, fmt.Errorf("read image: %w", err)
		}
		inv, err := p.model.ExtractInventory(ctx, image, blob.ContentType(scan.ContentPath))
		if err != nil {
			return domain.ToyInventory{}, err
		}
		return *inv, nil
	})

	withScan, err := Zip2(inventories, batch)
	if err != nil {
		return err
	}

	// Analyze ‖ Quest
	var (
		analyses []Result[analyzed]
		quests   []Result[domain.Quest]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		analyses = stage(gctx, p, StageAnalyze, withScan, func(ctx context.Context, in Pair[domain.ToyInventory, domain.Scan]) (analyzed, error) {
			a, err := p.model.AnalyzeSkills(ctx, in.First, in.Second.SubjectAge)
			if err != nil {
				return analyzed{}, err
			}
			return analyzed{Analysis: *a, Careers: p.lookupCareers(ctx, a.Roadmap)}, nil
		})
		return nil
	})
	g.Go(func() error {
		quests = stage(gctx, p, StageQuest, withScan, func(ctx context.Context, in Pair[domain.ToyInventory, domain.Scan]) (domain.Quest, error) {
			q, err := p.model.GenerateQuest(ctx, in.First, in.Second.SubjectAge)
			if err != nil {
				return domain.Quest{}, err
			}
			return *q, nil
		})
		return nil
	})
	_ = g.Wait()

	// Safety
	safetyIn, err := Zip2(analyses, batch)
	if err != nil {
		return err
	}
	safeties := stage(ctx, p, StageSafety, safetyIn, func(ctx context.Context, in Pair[analyzed, domain.Scan]) (domain.SafetyCheck, error) {
		check, err := p.model.CheckSafety(ctx, in.First.Analysis.Roadmap, in.Second.SubjectAge)
		if err != nil {
			return domain.SafetyCheck{}, err
		}
		if err := checkSafetyAlignment(*check, in.First.Analysis.Roadmap); err != nil {
			return domain.SafetyCheck{}, err
		}
		return *check, nil
	})

	// Merge
	left, err := Zip3(batch, inventories, quests)
	if err != nil {
		return err
	}
	right, err := Zip2(analyses, safeties)
	if err != nil {
		return err
	}
	all, err := Zip2(left, right)
	if err != nil {
		return err
	}

	p.finalize(ctx, all, report)
	return nil
}

// stage оборачивает FanOut в span этапа.
func stage[In, Out any](
	ctx context.Context,
	p *Pipeline,
	name string,
	in []Result[In],
	fn func(context.Context, In) (Out, error),
) []Result[Out] {
	ctx, span := p.tracer.Start(ctx, "stage."+name)
	defer span.End()

	out := FanOut(ctx, name, in, p.limit, fn)

	failed := 0
	for _, r := range out {
		if !r.OK() {
			failed++
		}
	}
	telemetry.WithStage(telemetry.FromContext(ctx, p.logger), name).Debug("stage finished",
		"items", len(out),
		"failed", failed,
	)
	span.SetAttributes(
		attribute.Int("stage.items", len(out)),
		attribute.Int("stage.failed", failed),
	)
	return out
}

type mergeInput = Pair[
	Triple[domain.Scan, domain.ToyInventory, domain.Quest],
	Pair[analyzed, domain.SafetyCheck],
]

// finalize записывает результат или ошибку для каждого скана.
func (p *Pipeline) finalize(ctx context.Context, all []Result[mergeInput], report *Report) {
	ctx, span := p.tracer.Start(ctx, "stage."+StageMerge)
	defer span.End()

	for _, r := range all {
		scan := r.Value.First.First
		logger := telemetry.WithScanID(telemetry.FromContext(ctx, p.logger), scan.ID)

		if !r.OK() {
			var sf *StageFailure
			if errors.As(r.Err, &sf) {
				sf.ScanID = scan.ID
			}
			report.Failed++
			report.Failures = append(report.Failures, r.Err)
			telemetry.ScansProcessed.WithLabelValues(string(domain.ScanStatusError)).Inc()
			logger.Warn("scan failed", "error", r.Err)
			if err := p.scans.Fail(ctx, scan.ID, r.Err.Error()); err != nil {
				logger.Error("failed to mark scan as error", "error", err)
			}
			continue
		}

		inv, quest := r.Value.First.Second, r.Value.First.Third
		a, safety := r.Value.Second.First, r.Value.Second.Second

		payload := merge.Merge(inv, quest, a.Analysis, safety, scan)
		payload.CareerPaths = a.Careers

		if err := p.writer.Write(ctx, scan, payload); err != nil {
			report.Retry++
			report.Failures = append(report.Failures, &StageFailure{Stage: StageMerge, Index: r.Index, ScanID: scan.ID, Err: err})
			continue
		}
		report.Done++
		logger.Debug("scan done")
	}
}

// checkSafetyAlignment проверяет, что вердикт i относится к элементу roadmap i.
// Вердиктов может быть меньше: недостающие заменит Merge.
func checkSafetyAlignment(check domain.SafetyCheck, roadmap []domain.RoadmapItem) error {
	if len(check.Items) > len(roadmap) {
		return fmt.Errorf("%w: %d safety verdicts for %d roadmap items",
			ErrSafetyMisaligned, len(check.Items), len(roadmap))
	}
	for i, item := range check.Items {
		if item.Timeframe != roadmap[i].Timeframe {
			return fmt.Errorf("%w: verdict %d has timeframe %q, roadmap has %q",
				ErrSafetyMisaligned, i, item.Timeframe, roadmap[i].Timeframe)
		}
	}
	return nil
}

// lookupCareers находит профессии для навыков roadmap.
// Ошибки справочника не влияют на обработку скана.
func (p *Pipeline) lookupCareers(ctx context.Context, roadmap []domain.RoadmapItem) map[string][]string {
	if p.careers == nil {
		return nil
	}

	paths := make(map[string][]string)
	for _, item := range roadmap {
		if item.Skill == "" {
			continue
		}
		if _, ok := paths[item.Skill]; ok {
			continue
		}
		titles, err := p.careers.CareersForSkill(ctx, item.Skill)
		if err != nil {
			telemetry.FromContext(ctx, p.logger).Warn("career lookup failed", "skill", item.Skill, "error", err)
			titles = []string{}
		}
		paths[item.Skill] = titles
	}
	return paths
}
