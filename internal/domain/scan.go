package domain

import (
	"time"

	"github.com/google/uuid"
)

// Scan — одно загруженное изображение и состояние его обработки.
//
// Scan создаётся Admission Controller'ом со статусом pending,
// заполняется результатом Result Merger'ом и удаляется Retention Sweeper'ом.
type Scan struct {
	// ID — уникальный идентификатор скана.
	ID uuid.UUID `json:"id"`

	// ContentPath — путь к изображению в object store ("scans/<id>.<ext>").
	ContentPath string `json:"content_path"`

	// ContentHash — sha256 исходных байтов (hex). Уникален среди неудалённых сканов.
	ContentHash string `json:"content_hash"`

	// SubjectAge — возраст ребёнка в годах.
	SubjectAge int `json:"subject_age"`

	// Status — текущий статус обработки.
	Status ScanStatus `json:"status"`

	// Error — причина перехода в error.
	Error string `json:"error,omitempty"`

	// Result — итоговый результат. Nil, пока статус не done.
	Result *Payload `json:"result,omitempty"`

	// CreatedAt — время приёма скана.
	CreatedAt time.Time `json:"created_at"`
}

// IsDone возвращает true, если результат записан.
func (s *Scan) IsDone() bool {
	return s.Status == ScanStatusDone
}
