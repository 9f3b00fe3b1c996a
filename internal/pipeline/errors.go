package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAlignmentViolation — операнды zip различаются длиной или порядком.
// Это ошибка логики, run завершается с FAILED.
var ErrAlignmentViolation = errors.New("alignment violation")

// ErrSafetyMisaligned — вердикты проверки безопасности не совпадают с roadmap
// по позиции и timeframe. Ошибка одного скана, не всего run.
var ErrSafetyMisaligned = errors.New("safety verdicts misaligned with roadmap")

// StageFailure — ошибка этапа для одного элемента batch.
type StageFailure struct {
	Stage string
	Index int
	// ScanID заполняется при финализации, когда известен скан позиции Index.
	ScanID uuid.UUID
	Err    error
}

func (e *StageFailure) Error() string {
	if e.ScanID != uuid.Nil {
		return fmt.Sprintf("stage %s failed for scan %s: %v", e.Stage, e.ScanID, e.Err)
	}
	return fmt.Sprintf("stage %s failed for item %d: %v", e.Stage, e.Index, e.Err)
}

func (e *StageFailure) Unwrap() error {
	return e.Err
}
