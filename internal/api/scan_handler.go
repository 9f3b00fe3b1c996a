package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/admission"
)

// multipartOverhead — запас на заголовки и поле age сверх размера файла.
const multipartOverhead = 1 << 20

// SubmitScan принимает изображение.
// POST /api/scan (multipart: age, file)
func (h *Handler) SubmitScan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadSize + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "file too large")
			return
		}
		BadRequest(w, "expected multipart form with age and file")
		return
	}
	defer r.MultipartForm.RemoveAll()

	age, err := strconv.Atoi(strings.TrimSpace(r.FormValue("age")))
	if err != nil {
		BadRequest(w, "age must be an integer")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		BadRequest(w, "failed to read file")
		return
	}

	result, err := h.admission.Submit(r.Context(), admission.Submission{
		Data:       data,
		SubjectAge: age,
		Filename:   header.Filename,
	})
	switch {
	case err == nil:
		JSON(w, http.StatusOK, SubmitFromResult(result))
	case errors.Is(err, admission.ErrQuotaExceeded):
		Error(w, http.StatusTooManyRequests, ErrCodeQuotaExceeded,
			"Daily limit reached. Please try again tomorrow.")
	case errors.Is(err, admission.ErrInvalidSubmission):
		BadRequest(w, err.Error())
	case errors.Is(err, admission.ErrUploadFailed):
		h.logger.Error("scan upload failed", "error", err)
		Error(w, http.StatusBadGateway, ErrCodeUploadFailed, "failed to store image, please retry")
	default:
		InternalError(w, h.logger, fmt.Errorf("submit scan: %w", err))
	}
}

// GetScan возвращает статус и результат скана.
// GET /api/scan/{id}
func (h *Handler) GetScan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid scan id")
		return
	}

	scan, err := h.scans.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "scan not found") {
		return
	}

	var imageURL string
	if h.images != nil && scan.ContentPath != "" {
		imageURL = h.images.URL(scan.ContentPath)
	}
	JSON(w, http.StatusOK, ScanFromDomain(*scan, imageURL))
}

// GetLimits возвращает состояние дневной квоты.
// GET /api/limits
func (h *Handler) GetLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := h.admission.Limits(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	JSON(w, http.StatusOK, limits)
}
