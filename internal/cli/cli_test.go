package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func bufferOutput(jsonMode bool) (*Output, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Output{jsonMode: jsonMode, w: &buf, errW: io.Discard}, &buf
}

// --- Client ---

func TestClient_SubmitScan(t *testing.T) {
	var gotAge, gotName, gotData string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/scan" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotAge = r.FormValue("age")
		f, h, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		gotName, gotData = h.Filename, string(data)
		writeJSON(w, http.StatusOK, map[string]any{"id": "s1", "cached": false, "status": "pending", "run_id": "r1"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "toys.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewClient(srv.URL).SubmitScan(path, 5)
	if err != nil {
		t.Fatalf("SubmitScan() error = %v", err)
	}
	if res.ID != "s1" || res.RunID != "r1" || res.Status != "pending" {
		t.Errorf("response = %+v", res)
	}
	if gotAge != "5" || gotName != "toys.jpg" || gotData != "jpeg" {
		t.Errorf("server got age=%q name=%q data=%q", gotAge, gotName, gotData)
	}
}

func TestClient_QuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]string{"code": "QUOTA_EXCEEDED", "message": "Daily limit reached."},
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "toys.jpg")
	os.WriteFile(path, []byte("jpeg"), 0o644)

	_, err := NewClient(srv.URL).SubmitScan(path, 5)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("error = %v, want ErrQuotaExceeded", err)
	}
}

func TestClient_GetScan_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]string{"code": "NOT_FOUND", "message": "scan not found"},
		})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetScan("x")
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestClient_WaitScan(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := "pending"
		if calls >= 3 {
			status = "done"
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": "s1", "status": status, "result": nil})
	}))
	defer srv.Close()

	scan, err := NewClient(srv.URL).WaitScan("s1", 0, 0)
	if err == nil {
		t.Fatalf("expected timeout error with zero timeout, got scan %+v", scan)
	}

	scan, err = NewClient(srv.URL).WaitScan("s1", 0, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitScan() error = %v", err)
	}
	if scan.Status != "done" {
		t.Errorf("Status = %q, want done", scan.Status)
	}
}

func TestOrchClient_TriggerRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["username"] != "airflow" || body["password"] != "secret" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]string{"code": "UNAUTHORIZED", "message": "invalid credentials"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"access_token": "tok"}})
		case "/api/v1/pipelines/process_scans/runs":
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
			}
			writeJSON(w, http.StatusCreated, map[string]any{"data": map[string]string{"run_id": "run-42"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	runID, err := NewOrchClient(srv.URL, "airflow", "secret").TriggerRun("process_scans")
	if err != nil {
		t.Fatalf("TriggerRun() error = %v", err)
	}
	if runID != "run-42" {
		t.Errorf("runID = %q", runID)
	}

	if _, err := NewOrchClient(srv.URL, "airflow", "wrong").TriggerRun("process_scans"); err == nil {
		t.Error("expected auth error")
	}
}

// --- Output ---

func TestOutput_Table(t *testing.T) {
	out, buf := bufferOutput(false)
	out.Table([]string{"SKILL", "SCORE"}, [][]string{{"creative", "80"}}, 2)

	got := buf.String()
	for _, want := range []string{"SKILL", "SCORE", "creative", "80"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
}

func TestOutput_PrintJSON(t *testing.T) {
	out, buf := bufferOutput(true)
	out.Print([]string{"ID"}, [][]string{{"x"}}, map[string]int{"remaining": 3})

	var got map[string]int
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got["remaining"] != 3 {
		t.Errorf("got %v", got)
	}
}

// --- Commands ---

func TestLimitsCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"daily_limit": 20, "used_today": 4, "remaining": 16})
	}))
	defer srv.Close()

	out, buf := bufferOutput(false)
	cmd := NewLimitsCmd(func() *Client { return NewClient(srv.URL) }, func() *Output { return out })
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(buf.String(), "16") {
		t.Errorf("output missing remaining:\n%s", buf.String())
	}
}

func TestScanShowCmd_Done(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     "s1",
			"status": "done",
			"result": map[string]any{
				"status_summary": "Strongest area: creative (80).",
				"skill_scores":   map[string]int{"creative": 80, "language": 40},
				"merged_roadmap": []map[string]any{
					{"timeframe": "now", "title": "Block tower", "decision": "approved", "final_recommendation": "Build together"},
				},
				"quest": map[string]any{"title": "Castle rescue", "items": []string{"blocks", "dolls"}},
			},
		})
	}))
	defer srv.Close()

	out, buf := bufferOutput(false)
	cmd := NewScanCmd(func() *Client { return NewClient(srv.URL) }, func() *Output { return out })
	cmd.SetArgs([]string{"show", "s1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got := buf.String()
	for _, want := range []string{"Strongest area", "creative", "Block tower", "Castle rescue", "blocks, dolls"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
