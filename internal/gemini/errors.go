package gemini

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited — сервис ответил 429.
	ErrRateLimited = errors.New("model rate limited")

	// ErrInvalidResponse — ответ не разобран или не прошёл валидацию.
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrMissingAPIKey — не задан ключ API.
	ErrMissingAPIKey = errors.New("missing api key")
)

// StatusError — ответ сервиса с кодом не 2xx.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model upstream %d: %s", e.StatusCode, e.Message)
}

// Temporary сообщает, имеет ли смысл повторять запрос.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500
}
