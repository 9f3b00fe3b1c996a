// Package gemini — клиент vision/language модели (Google Generative Language API).
//
// Каждая операция соответствует этапу pipeline и возвращает типизированный
// результат из пакета domain. Ответы запрашиваются в JSON-режиме со схемой
// (response_schema) и проверяются после разбора.
//
// Клиент сам повторяет временные ошибки (429, 408, 5xx, сетевые таймауты,
// невалидный ответ) с экспоненциальной задержкой и ограничивает частоту
// запросов через rate.Limiter.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/Playroom/internal/telemetry"
)

const (
	defaultBaseURL       = "https://generativelanguage.googleapis.com"
	defaultModel         = "gemini-2.5-flash"
	defaultTimeout       = 60 * time.Second
	defaultRetryAttempts = 3
	defaultInitialDelay  = time.Second
	defaultMaxDelay      = 30 * time.Second
)

// Config — параметры клиента.
type Config struct {
	BaseURL       string
	Model         string
	APIKey        string
	Timeout       time.Duration
	RetryAttempts int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	// RequestsPerSecond ограничивает частоту запросов; 0 — без ограничения.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
	// Sleep подменяется в тестах.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client — клиент модели.
type Client struct {
	endpoint     string
	apiKey       string
	httpClient   *http.Client
	limiter      *rate.Limiter
	attempts     int
	initialDelay time.Duration
	maxDelay     time.Duration
	logger       *slog.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// New создаёт Client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = defaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/") +
		"/v1beta/models/" + url.PathEscape(cfg.Model) + ":generateContent"

	return &Client{
		endpoint:     endpoint,
		apiKey:       cfg.APIKey,
		httpClient:   cfg.HTTPClient,
		limiter:      limiter,
		attempts:     cfg.RetryAttempts,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		logger:       cfg.Logger,
		sleep:        cfg.Sleep,
	}, nil
}

// --- Wire types ---

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"response_mime_type"`
	ResponseSchema   json.RawMessage `json:"response_schema,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func textPart(s string) part {
	return part{Text: s}
}

func imagePart(data []byte, mimeType string) part {
	return part{InlineData: &inlineData{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}}
}

// call описывает один вызов модели.
type call struct {
	op       string
	system   string
	parts    []part
	schema   json.RawMessage
	out      any
	validate func() error
}

// generate выполняет вызов с повторами и разбирает ответ в c.out.
func (c *Client) generate(ctx context.Context, cl call) error {
	req := generateRequest{
		Contents: []content{{Role: "user", Parts: cl.parts}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   cl.schema,
		},
	}
	if cl.system != "" {
		req.SystemInstruction = &content{Parts: []part{textPart(cl.system)}}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", cl.op, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", cl.op, err)
		}

		err := c.once(ctx, body, cl)
		if err == nil {
			telemetry.ModelRequests.WithLabelValues(cl.op, "ok").Inc()
			return nil
		}
		telemetry.ModelRequests.WithLabelValues(cl.op, "error").Inc()
		lastErr = err

		if attempt == c.attempts || !retryable(ctx, err) {
			break
		}

		delay := calculateBackoff(attempt, c.initialDelay, c.maxDelay)
		c.logger.Debug("retrying model call",
			"operation", cl.op,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w", cl.op, err)
		}
	}

	return fmt.Errorf("%s: %w", cl.op, lastErr)
}

// once выполняет одну попытку.
func (c *Client) once(ctx context.Context, body []byte, cl call) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(slurp))}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", ErrInvalidResponse, err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}

	var text strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	raw := stripCodeFence(text.String())
	if raw == "" {
		return fmt.Errorf("%w: empty content (finish reason %s)", ErrInvalidResponse, gr.Candidates[0].FinishReason)
	}

	// Сброс результата предыдущей попытки
	reflect.ValueOf(cl.out).Elem().SetZero()
	if err := json.Unmarshal([]byte(raw), cl.out); err != nil {
		return fmt.Errorf("%w: decode content: %v", ErrInvalidResponse, err)
	}
	if cl.validate != nil {
		if err := cl.validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return nil
}

// stripCodeFence убирает обрамление ```json ... ```, которое модель иногда добавляет.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// retryable решает, повторять ли вызов после ошибки.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrInvalidResponse) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// calculateBackoff вычисляет задержку перед повтором: initial * 2^(attempt-1), не больше maxDelay.
func calculateBackoff(attempt int, initial, maxDelay time.Duration) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
