package domain

// ScanStatus — статус обработки скана.
//
// Жизненный цикл:
//
//	pending → done
//	        ↘ error
type ScanStatus string

const (
	// ScanStatusPending — скан принят и ждёт обработки pipeline.
	ScanStatusPending ScanStatus = "pending"

	// ScanStatusDone — результат записан.
	ScanStatusDone ScanStatus = "done"

	// ScanStatusError — один из этапов pipeline для скана завершился ошибкой.
	ScanStatusError ScanStatus = "error"
)

// IsTerminal возвращает true, если статус финальный (клиент может прекратить polling).
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case ScanStatusDone, ScanStatusError:
		return true
	default:
		return false
	}
}

// RunStatus — статус выполнения pipeline run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — run завершён (отдельные сканы могли получить статус error).
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run прерван фатальной ошибкой.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed:
		return true
	default:
		return false
	}
}
