package domain

import (
	"time"

	"github.com/google/uuid"
)

// PipelineProcessScans — имя pipeline, обрабатывающего pending сканы.
const PipelineProcessScans = "process_scans"

// PipelineRun — экземпляр выполнения pipeline.
//
// Run создаётся через trigger endpoint оркестратора. Каждый run
// обрабатывает все сканы, которые находятся в pending на момент старта.
type PipelineRun struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// Pipeline — имя pipeline (сейчас только process_scans).
	Pipeline string `json:"pipeline"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// TriggeredBy — subject токена, которым был запущен run.
	TriggeredBy string `json:"triggered_by,omitempty"`

	// Stats — сводка по сканам, обработанным в run.
	Stats RunStats `json:"stats"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст фатальной ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// RunStats — сводка по сканам внутри run.
type RunStats struct {
	Items  int `json:"items"`
	Done   int `json:"done"`
	Failed int `json:"failed"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *PipelineRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *PipelineRun) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *PipelineRun) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *PipelineRun) MarkSucceeded(stats RunStats) {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
	r.Stats = stats
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *PipelineRun) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}
