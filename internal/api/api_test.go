package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/admission"
	"github.com/shaiso/Playroom/internal/domain"
	"github.com/shaiso/Playroom/internal/repo"
)

// --- Fakes ---

type fakeAdmission struct {
	result *admission.Result
	err    error
	got    admission.Submission
	limits *admission.Limits
}

func (f *fakeAdmission) Submit(_ context.Context, sub admission.Submission) (*admission.Result, error) {
	f.got = sub
	return f.result, f.err
}

func (f *fakeAdmission) Limits(context.Context) (*admission.Limits, error) {
	if f.limits == nil {
		return nil, errors.New("count failed")
	}
	return f.limits, nil
}

type fakeScans map[uuid.UUID]domain.Scan

func (f fakeScans) GetByID(_ context.Context, id uuid.UUID) (*domain.Scan, error) {
	s, ok := f[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &s, nil
}

type fakeURLs struct{}

func (fakeURLs) URL(key string) string { return "http://img.test/" + key }

func newTestMux(adm Admission, scans ScanReader, postLimit int) *http.ServeMux {
	h := NewHandler(Config{
		Admission:     adm,
		Scans:         scans,
		Images:        fakeURLs{},
		PostRateLimit: postLimit,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func multipartScan(t *testing.T, age string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if age != "" {
		mw.WriteField("age", age)
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "toys.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(file)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func postScan(t *testing.T, mux http.Handler, age string, file []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartScan(t, age, file)
	req := httptest.NewRequest(http.MethodPost, "/api/scan", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) ErrorCode {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return resp.Error.Code
}

// --- POST /api/scan ---

func TestSubmitScan_Accepted(t *testing.T) {
	id := uuid.New()
	adm := &fakeAdmission{result: &admission.Result{
		ID: id, Status: domain.ScanStatusPending, Accepted: true, RunID: "run-1",
	}}
	mux := newTestMux(adm, fakeScans{}, 0)

	rec := postScan(t, mux, "4", []byte("png-bytes"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp SubmitScanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != id || resp.Cached || resp.Status != domain.ScanStatusPending || resp.RunID != "run-1" {
		t.Errorf("response = %+v", resp)
	}
	if adm.got.SubjectAge != 4 || adm.got.Filename != "toys.png" || string(adm.got.Data) != "png-bytes" {
		t.Errorf("submission = age %d, file %q, data %q", adm.got.SubjectAge, adm.got.Filename, adm.got.Data)
	}
}

func TestSubmitScan_Cached(t *testing.T) {
	adm := &fakeAdmission{result: &admission.Result{
		ID: uuid.New(), Status: domain.ScanStatusDone, Accepted: true, Cached: true,
	}}
	rec := postScan(t, newTestMux(adm, fakeScans{}, 0), "4", []byte("png"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var raw map[string]any
	json.Unmarshal(rec.Body.Bytes(), &raw)
	if raw["cached"] != true {
		t.Errorf("cached = %v, want true", raw["cached"])
	}
	if _, ok := raw["run_id"]; ok {
		t.Error("run_id should be omitted for cached scans")
	}
}

func TestSubmitScan_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  ErrorCode
	}{
		{"quota exceeded", admission.ErrQuotaExceeded, http.StatusTooManyRequests, ErrCodeQuotaExceeded},
		{"invalid", admission.ErrInvalidSubmission, http.StatusBadRequest, ErrCodeBadRequest},
		{"upload failed", admission.ErrUploadFailed, http.StatusBadGateway, ErrCodeUploadFailed},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&fakeAdmission{err: tt.err}, fakeScans{}, 0)
			rec := postScan(t, mux, "4", []byte("png"))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if got := errorCode(t, rec); got != tt.wantErr {
				t.Errorf("code = %s, want %s", got, tt.wantErr)
			}
		})
	}
}

func TestSubmitScan_BadForm(t *testing.T) {
	tests := []struct {
		name string
		age  string
		file []byte
	}{
		{"age not a number", "four", []byte("png")},
		{"age missing", "", []byte("png")},
		{"file missing", "4", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adm := &fakeAdmission{result: &admission.Result{}}
			rec := postScan(t, newTestMux(adm, fakeScans{}, 0), tt.age, tt.file)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestSubmitScan_RateLimited(t *testing.T) {
	adm := &fakeAdmission{result: &admission.Result{ID: uuid.New(), Status: domain.ScanStatusPending}}
	mux := newTestMux(adm, fakeScans{}, 1)

	if rec := postScan(t, mux, "4", []byte("a")); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := postScan(t, mux, "4", []byte("b"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if got := errorCode(t, rec); got != ErrCodeRateLimited {
		t.Errorf("code = %s, want RATE_LIMITED", got)
	}
}

// --- GET /api/scan/{id} ---

func TestGetScan(t *testing.T) {
	done := domain.Scan{
		ID:          uuid.New(),
		ContentPath: "scans/a.png",
		Status:      domain.ScanStatusDone,
		Result:      &domain.Payload{StatusSummary: "ok"},
	}
	pending := domain.Scan{ID: uuid.New(), ContentPath: "scans/b.png", Status: domain.ScanStatusPending}
	failed := domain.Scan{ID: uuid.New(), ContentPath: "scans/c.png", Status: domain.ScanStatusError, Error: "extract: bad json"}
	mux := newTestMux(&fakeAdmission{}, fakeScans{done.ID: done, pending.ID: pending, failed.ID: failed}, 0)

	get := func(id string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scan/"+id, nil))
		return rec
	}

	t.Run("done", func(t *testing.T) {
		rec := get(done.ID.String())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp ScanResponse
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Result == nil || resp.Result.StatusSummary != "ok" {
			t.Errorf("result = %+v", resp.Result)
		}
		if resp.ImageURL != "http://img.test/scans/a.png" {
			t.Errorf("image_url = %q", resp.ImageURL)
		}
	})

	t.Run("pending has null result", func(t *testing.T) {
		rec := get(pending.ID.String())
		var raw map[string]json.RawMessage
		json.Unmarshal(rec.Body.Bytes(), &raw)
		if string(raw["result"]) != "null" {
			t.Errorf("result = %s, want null", raw["result"])
		}
		if _, ok := raw["error"]; ok {
			t.Error("error should be omitted")
		}
	})

	t.Run("error carries reason", func(t *testing.T) {
		var resp ScanResponse
		json.Unmarshal(get(failed.ID.String()).Body.Bytes(), &resp)
		if resp.Status != domain.ScanStatusError || resp.Error == "" {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if rec := get(uuid.New().String()); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		if rec := get("nope"); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

// --- GET /api/limits ---

func TestGetLimits(t *testing.T) {
	adm := &fakeAdmission{limits: &admission.Limits{DailyLimit: 20, UsedToday: 7, Remaining: 13}}
	mux := newTestMux(adm, fakeScans{}, 0)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/limits", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got admission.Limits
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got != *adm.limits {
		t.Errorf("limits = %+v", got)
	}
}

func TestGetLimits_Error(t *testing.T) {
	mux := newTestMux(&fakeAdmission{}, fakeScans{}, 0)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/limits", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// --- Middleware ---

func TestCORS_Preflight(t *testing.T) {
	mux := newTestMux(&fakeAdmission{}, fakeScans{}, 0)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/scan", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2)
	rl.now = func() time.Time { return now }

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request within the minute should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other IP should have its own budget")
	}

	now = now.Add(30 * time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Error("one request should refill after 30s")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for range 100 {
		if !rl.Allow("10.0.0.1") {
			t.Fatal("disabled limiter should allow everything")
		}
	}
}
