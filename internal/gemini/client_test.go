package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Playroom/internal/domain"
)

// modelReply оборачивает text в конверт generateContent.
func modelReply(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"candidates": []any{
			map[string]any{
				"content":      map[string]any{"parts": []any{map[string]string{"text": text}}},
				"finishReason": "STOP",
			},
		},
	})
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:       url,
		APIKey:        "test-key",
		RetryAttempts: 3,
		Sleep:         func(context.Context, time.Duration) error { return nil },
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

const validAnalysis = `{
  "summary": "Lots of blocks",
  "skill_scores": {"fine_motor": 80, "gross_motor": 20, "cognitive": 60, "creative": 70, "social_emotional": 30, "language": 10},
  "roadmap": [
    {"timeframe": "now", "priority": 1, "title": "Ball", "recommendation": "Add a soft ball", "skill": "gross_motor"},
    {"timeframe": "3_months", "priority": 2, "title": "Books", "recommendation": "Picture books", "skill": "language"},
    {"timeframe": "6_months", "priority": 3, "title": "Puppets", "recommendation": "Hand puppets", "skill": "social_emotional"}
  ]
}`

func TestNew_MissingKey(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("New() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestExtractInventory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1beta/models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key not in query")
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.GenerationConfig.ResponseMIMEType != "application/json" {
			t.Errorf("response_mime_type = %q", req.GenerationConfig.ResponseMIMEType)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) == 0 || req.Contents[0].Parts[0].InlineData == nil {
			t.Errorf("image part missing")
		}

		modelReply(w, "```json\n{\"items\":[{\"category\":\"blocks\",\"count\":12,\"boxes\":[[10,20,300,400]]}]}\n```")
	}))
	defer srv.Close()

	inv, err := newTestClient(t, srv.URL).ExtractInventory(context.Background(), []byte("img"), "image/png")
	if err != nil {
		t.Fatalf("ExtractInventory() error: %v", err)
	}
	if len(inv.Items) != 1 || inv.Items[0].Category != "blocks" || inv.Items[0].Count != 12 {
		t.Errorf("inventory = %+v", inv)
	}
}

func TestAnalyzeSkills(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		modelReply(w, validAnalysis)
	}))
	defer srv.Close()

	inv := domain.ToyInventory{Items: []domain.InventoryItem{{Category: "blocks", Count: 3}}}
	got, err := newTestClient(t, srv.URL).AnalyzeSkills(context.Background(), inv, 4)
	if err != nil {
		t.Fatalf("AnalyzeSkills() error: %v", err)
	}
	if len(got.Roadmap) != 3 || got.Scores.FineMotor != 80 {
		t.Errorf("analysis = %+v", got)
	}
}

func TestRetryOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		modelReply(w, `{"title":"Tower","description":"Build it","items":["blocks","cars"]}`)
	}))
	defer srv.Close()

	quest, err := newTestClient(t, srv.URL).GenerateQuest(context.Background(), domain.ToyInventory{}, 5)
	if err != nil {
		t.Fatalf("GenerateQuest() error: %v", err)
	}
	if quest.Title != "Tower" {
		t.Errorf("title = %q", quest.Title)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestRetryOnInvalidResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Только один предмет — невалидное задание
			modelReply(w, `{"title":"Solo","description":"x","items":["blocks"]}`)
			return
		}
		modelReply(w, `{"title":"Duo","description":"y","items":["blocks","cars"]}`)
	}))
	defer srv.Close()

	quest, err := newTestClient(t, srv.URL).GenerateQuest(context.Background(), domain.ToyInventory{}, 5)
	if err != nil {
		t.Fatalf("GenerateQuest() error: %v", err)
	}
	if quest.Title != "Duo" || len(quest.Items) != 2 {
		t.Errorf("quest = %+v", quest)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad request"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).CheckSafety(context.Background(), nil, 5)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("CheckSafety() error = %v, want StatusError 400", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRetryExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).AnalyzeSkills(context.Background(), domain.ToyInventory{}, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

var testRoadmap = []domain.RoadmapItem{
	{Timeframe: domain.TimeframeNow, Priority: 1, Recommendation: "ball"},
	{Timeframe: domain.Timeframe3Months, Priority: 2, Recommendation: "books"},
	{Timeframe: domain.Timeframe6Months, Priority: 3, Recommendation: "puppets"},
}

func safetyItem(tf domain.Timeframe) string {
	return `{"timeframe":"` + string(tf) + `","decision":"approved","final_recommendation":"ok"}`
}

func safetyReply(timeframes ...domain.Timeframe) string {
	items := make([]string, len(timeframes))
	for i, tf := range timeframes {
		items[i] = safetyItem(tf)
	}
	return `{"items":[` + strings.Join(items, ",") + `]}`
}

func TestCheckSafety(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		modelReply(w, safetyReply(domain.TimeframeNow, domain.Timeframe3Months, domain.Timeframe6Months))
	}))
	defer srv.Close()

	check, err := newTestClient(t, srv.URL).CheckSafety(context.Background(), testRoadmap, 3)
	if err != nil {
		t.Fatalf("CheckSafety() error: %v", err)
	}
	if len(check.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(check.Items))
	}
}

func TestCheckSafety_InvalidResponses(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty", `{"items":[]}`},
		{"short", safetyReply(domain.TimeframeNow, domain.Timeframe3Months)},
		{"too many", safetyReply(domain.TimeframeNow, domain.Timeframe3Months, domain.Timeframe6Months, domain.TimeframeNow)},
		{"reversed", safetyReply(domain.Timeframe6Months, domain.Timeframe3Months, domain.TimeframeNow)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				modelReply(w, tt.reply)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).CheckSafety(context.Background(), testRoadmap, 3)
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("CheckSafety() error = %v, want ErrInvalidResponse", err)
			}
			if calls.Load() != 3 {
				t.Errorf("calls = %d, want 3 (retried)", calls.Load())
			}
		})
	}
}

func TestCheckSafety_RetriesEmptyResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			modelReply(w, `{"items":[]}`)
			return
		}
		modelReply(w, safetyReply(domain.TimeframeNow, domain.Timeframe3Months, domain.Timeframe6Months))
	}))
	defer srv.Close()

	check, err := newTestClient(t, srv.URL).CheckSafety(context.Background(), testRoadmap, 3)
	if err != nil {
		t.Fatalf("CheckSafety() error: %v", err)
	}
	if len(check.Items) != 3 || calls.Load() != 2 {
		t.Errorf("items = %d, calls = %d, want 3 items after 2 calls", len(check.Items), calls.Load())
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, time.Second, 30*time.Second); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
