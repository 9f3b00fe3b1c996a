package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrQuotaExceeded — API вернул QUOTA_EXCEEDED.
var ErrQuotaExceeded = errors.New("daily limit reached")

// --- Response types ---

// SubmitResponse — ответ POST /api/scan.
type SubmitResponse struct {
	ID     string `json:"id"`
	Cached bool   `json:"cached"`
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
}

// ScanResponse — ответ GET /api/scan/{id}.
type ScanResponse struct {
	ID       string      `json:"id"`
	Status   string      `json:"status"`
	ImageURL string      `json:"image_url"`
	Result   *ScanResult `json:"result"`
	Error    string      `json:"error,omitempty"`
}

// ScanResult — итог обработки скана.
type ScanResult struct {
	StatusSummary  string              `json:"status_summary"`
	SkillScores    map[string]int      `json:"skill_scores"`
	MergedRoadmap  []RoadmapItem       `json:"merged_roadmap"`
	InventoryItems []InventoryItem     `json:"inventory_items"`
	Quest          Quest               `json:"quest"`
	CareerPaths    map[string][]string `json:"career_paths,omitempty"`
}

// RoadmapItem — элемент roadmap после проверки безопасности.
type RoadmapItem struct {
	Timeframe           string `json:"timeframe"`
	Priority            int    `json:"priority"`
	Title               string `json:"title"`
	Skill               string `json:"skill,omitempty"`
	Decision            string `json:"decision"`
	FinalRecommendation string `json:"final_recommendation"`
}

// InventoryItem — найденная категория игрушек.
type InventoryItem struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Quest — творческое задание.
type Quest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Items       []string `json:"items"`
}

// LimitsResponse — ответ GET /api/limits.
type LimitsResponse struct {
	DailyLimit int `json:"daily_limit"`
	UsedToday  int `json:"used_today"`
	Remaining  int `json:"remaining"`
}

// RunResponse — run оркестратора.
type RunResponse struct {
	ID          string `json:"id"`
	Pipeline    string `json:"pipeline"`
	Status      string `json:"status"`
	TriggeredBy string `json:"triggered_by,omitempty"`
	Stats       struct {
		Items  int `json:"items"`
		Done   int `json:"done"`
		Failed int `json:"failed"`
	} `json:"stats"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент публичного API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент публичного API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SubmitScan загружает изображение.
func (c *Client) SubmitScan(path string, age int) (*SubmitResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("age", strconv.Itoa(age)); err != nil {
		return nil, err
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/scan", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out SubmitResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetScan возвращает скан.
func (c *Client) GetScan(id string) (*ScanResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/scan/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var out ScanResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitScan опрашивает скан, пока статус не станет done или error.
func (c *Client) WaitScan(id string, interval, timeout time.Duration) (*ScanResponse, error) {
	deadline := time.Now().Add(timeout)
	for {
		scan, err := c.GetScan(id)
		if err != nil {
			return nil, err
		}
		if scan.Status == "done" || scan.Status == "error" {
			return scan, nil
		}
		if time.Now().After(deadline) {
			return scan, fmt.Errorf("scan %s still %s after %s", id, scan.Status, timeout)
		}
		time.Sleep(interval)
	}
}

// Limits возвращает состояние дневной квоты.
func (c *Client) Limits() (*LimitsResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/limits", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var out LimitsResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// --- Orchestrator ---

// OrchClient — клиент служебного API оркестратора.
type OrchClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewOrchClient создаёт клиент оркестратора.
func NewOrchClient(baseURL, username, password string) *OrchClient {
	return &OrchClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// TriggerRun запускает pipeline и возвращает ID run.
func (c *OrchClient) TriggerRun(pipeline string) (string, error) {
	tok, err := c.token()
	if err != nil {
		return "", err
	}
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.doData(http.MethodPost, "/api/v1/pipelines/"+pipeline+"/runs", tok, nil, &out); err != nil {
		return "", err
	}
	return out.RunID, nil
}

// GetRun возвращает run.
func (c *OrchClient) GetRun(id string) (*RunResponse, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}
	var run RunResponse
	if err := c.doData(http.MethodGet, "/api/v1/runs/"+id, tok, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *OrchClient) token() (string, error) {
	body := map[string]string{"username": c.username, "password": c.password}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.doData(http.MethodPost, "/auth/token", "", body, &out); err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	return out.AccessToken, nil
}

func (c *OrchClient) doData(method, path, bearer string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return json.Unmarshal(dr.Data, result)
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}
	if er.Error.Code == "QUOTA_EXCEEDED" {
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, er.Error.Message)
	}
	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
