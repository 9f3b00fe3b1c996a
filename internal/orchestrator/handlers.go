package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/domain"
	"github.com/shaiso/Playroom/internal/mq"
	"github.com/shaiso/Playroom/internal/pipeline"
	"github.com/shaiso/Playroom/internal/repo"
	"github.com/shaiso/Playroom/internal/telemetry"
)

// finalizeTimeout — время на запись итога run после отмены контекста.
const finalizeTimeout = 10 * time.Second

// handleRunPending обрабатывает событие run.pending.
func (o *Orchestrator) handleRunPending(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.RunPendingPayload](msg)
	if err != nil {
		o.logger.Error("failed to parse run.pending payload", "error", err)
		return err
	}

	o.logger.Debug("received run.pending event", "run_id", payload.RunID)

	if err := o.processRun(ctx, payload.RunID); err != nil {
		if isSkippable(err) {
			o.logger.Debug("run not processed", "run_id", payload.RunID, "reason", err)
			return nil
		}
		return err
	}
	return nil
}

// isSkippable — run уже обработан кем-то другим, повторять нечего.
func isSkippable(err error) bool {
	return errors.Is(err, ErrRunNotPending) ||
		errors.Is(err, ErrRunAlreadyActive) ||
		errors.Is(err, ErrRunNotFound)
}

// processRun забирает run, выполняет pipeline и финализирует run.
func (o *Orchestrator) processRun(ctx context.Context, runID uuid.UUID) error {
	o.execMu.Lock()
	defer o.execMu.Unlock()

	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return fmt.Errorf("get run: %w", err)
	}
	if run.Status != domain.RunStatusPending {
		return ErrRunNotPending
	}

	if err := o.addActiveRun(run.ID); err != nil {
		return err
	}
	defer o.removeActiveRun(run.ID)

	if err := o.runs.Claim(ctx, run); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRunNotPending
		}
		return fmt.Errorf("claim run: %w", err)
	}

	logger := telemetry.WithRunID(o.logger, run.ID)
	logger.Info("run started", "pipeline", run.Pipeline)

	runner, ok := o.pipelines[run.Pipeline]
	if !ok {
		return o.failRun(ctx, run, fmt.Errorf("%w: %s", ErrUnknownPipeline, run.Pipeline))
	}

	report, err := runner.Run(telemetry.WithLogger(ctx, logger))
	if err != nil {
		return o.failRun(ctx, run, err)
	}
	return o.completeRun(ctx, run, report)
}

// completeRun финализирует run как SUCCEEDED.
// Ошибки отдельных сканов попадают в stats и не меняют статус run.
func (o *Orchestrator) completeRun(ctx context.Context, run *domain.PipelineRun, report *pipeline.Report) error {
	run.MarkSucceeded(report.Stats())

	if err := o.finalize(ctx, run); err != nil {
		return err
	}

	o.logger.Info("run succeeded",
		"run_id", run.ID,
		"items", report.Items,
		"done", report.Done,
		"failed", report.Failed,
		"retry", report.Retry,
		"duration", run.Duration(),
	)
	return nil
}

// failRun переводит run в FAILED.
func (o *Orchestrator) failRun(ctx context.Context, run *domain.PipelineRun, cause error) error {
	run.MarkFailed(cause.Error())

	if err := o.finalize(ctx, run); err != nil {
		return err
	}

	o.logger.Warn("run failed",
		"run_id", run.ID,
		"error", cause,
		"duration", run.Duration(),
	)
	return nil
}

// finalize сохраняет итог даже если ctx уже отменён (shutdown посреди run).
func (o *Orchestrator) finalize(ctx context.Context, run *domain.PipelineRun) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	telemetry.RunDuration.WithLabelValues(string(run.Status)).Observe(run.Duration().Seconds())

	if err := o.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}
