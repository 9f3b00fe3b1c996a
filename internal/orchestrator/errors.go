package orchestrator

import "errors"

var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotPending — run уже забран или завершён.
	ErrRunNotPending = errors.New("run is not in PENDING status")

	// ErrRunAlreadyActive — run уже выполняется в этом процессе.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrUnknownPipeline — для имени из run нет зарегистрированного pipeline.
	ErrUnknownPipeline = errors.New("unknown pipeline")
)
