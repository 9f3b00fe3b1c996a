package api

import (
	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/admission"
	"github.com/shaiso/Playroom/internal/domain"
)

// SubmitScanResponse — ответ POST /api/scan.
type SubmitScanResponse struct {
	ID     uuid.UUID         `json:"id"`
	Cached bool              `json:"cached"`
	Status domain.ScanStatus `json:"status"`
	RunID  string            `json:"run_id,omitempty"`
}

// SubmitFromResult конвертирует admission.Result в ответ.
func SubmitFromResult(r *admission.Result) SubmitScanResponse {
	return SubmitScanResponse{
		ID:     r.ID,
		Cached: r.Cached,
		Status: r.Status,
		RunID:  r.RunID,
	}
}

// ScanResponse — ответ GET /api/scan/{id}.
// Result всегда присутствует в JSON: null, пока скан не done.
type ScanResponse struct {
	ID       uuid.UUID         `json:"id"`
	Status   domain.ScanStatus `json:"status"`
	ImageURL string            `json:"image_url"`
	Result   *domain.Payload   `json:"result"`
	Error    string            `json:"error,omitempty"`
}

// ScanFromDomain конвертирует domain.Scan в ScanResponse.
func ScanFromDomain(s domain.Scan, imageURL string) ScanResponse {
	resp := ScanResponse{
		ID:       s.ID,
		Status:   s.Status,
		ImageURL: imageURL,
		Error:    s.Error,
	}
	if s.IsDone() {
		resp.Result = s.Result
	}
	return resp
}
