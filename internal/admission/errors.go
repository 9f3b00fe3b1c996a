package admission

import "errors"

var (
	// ErrQuotaExceeded — дневной лимит исчерпан; ничего не загружено и не создано.
	ErrQuotaExceeded = errors.New("daily scan limit reached")

	// ErrUploadFailed — не удалось записать изображение; строка скана не создана.
	ErrUploadFailed = errors.New("upload failed")

	// ErrInvalidSubmission — некорректные входные данные.
	ErrInvalidSubmission = errors.New("invalid submission")
)
