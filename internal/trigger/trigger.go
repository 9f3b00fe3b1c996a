// Package trigger — клиент запуска pipeline runs в оркестраторе.
//
// Запросы аутентифицируются bearer-токеном. Ответ 401 превращается в
// ErrAuthExpired; клиент один раз обновляет токен и один раз повторяет
// запрос. Повторный 401 возвращается вызывающему.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrAuthExpired — оркестратор отклонил токен (401).
	ErrAuthExpired = errors.New("auth expired")

	// ErrTrigger — оркестратор вернул ошибку.
	ErrTrigger = errors.New("trigger failed")
)

// Config — параметры клиента.
type Config struct {
	Host     string
	Username string
	Password string
	// StaticToken — заранее выданный токен; такой токен не обновляется.
	StaticToken string
	HTTPClient  *http.Client
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Client запускает runs в оркестраторе.
type Client struct {
	host       string
	username   string
	password   string
	static     bool
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	token string
}

// New создаёт Client.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Client{
		host:       strings.TrimSuffix(cfg.Host, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		static:     cfg.StaticToken != "",
		token:      cfg.StaticToken,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		now:        cfg.Clock,
	}
}

// Trigger запускает pipeline и возвращает ID run.
func (c *Client) Trigger(ctx context.Context, pipeline string) (string, error) {
	tok, err := c.currentToken(ctx)
	if err != nil {
		return "", err
	}

	runID, err := c.createRun(ctx, pipeline, tok)
	if !errors.Is(err, ErrAuthExpired) || c.static {
		return runID, err
	}

	c.logger.Info("orchestrator token expired, refreshing")
	tok, err = c.refresh(ctx)
	if err != nil {
		return "", err
	}
	return c.createRun(ctx, pipeline, tok)
}

// currentToken возвращает текущий токен, получая новый, если его нет или
// его exp уже прошёл.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()

	if c.static {
		return tok, nil
	}
	if tok != "" && !c.expired(tok) {
		return tok, nil
	}
	return c.refresh(ctx)
}

// expired проверяет exp без проверки подписи; секрет знает только оркестратор.
// Непрозрачные (не JWT) токены считаются действующими.
func (c *Client) expired(tok string) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !c.now().Before(claims.ExpiresAt.Time)
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

type runResponse struct {
	RunID string `json:"run_id"`
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

// refresh получает новый токен по логину и паролю.
func (c *Client) refresh(ctx context.Context) (string, error) {
	var tr tokenResponse
	err := c.do(ctx, "/auth/token", "", tokenRequest{Username: c.username, Password: c.password}, &tr)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("refresh token: %w: empty access token", ErrTrigger)
	}

	c.mu.Lock()
	c.token = tr.AccessToken
	c.mu.Unlock()
	return tr.AccessToken, nil
}

func (c *Client) createRun(ctx context.Context, pipeline, tok string) (string, error) {
	var rr runResponse
	path := "/api/v1/pipelines/" + url.PathEscape(pipeline) + "/runs"
	if err := c.do(ctx, path, tok, nil, &rr); err != nil {
		return "", err
	}
	return rr.RunID, nil
}

// do выполняет POST и декодирует поле data ответа в result.
func (c *Client) do(ctx context.Context, path, tok string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrAuthExpired
	}
	if resp.StatusCode >= 400 {
		var er errorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error.Message != "" {
			return fmt.Errorf("%w: %s: %s", ErrTrigger, er.Error.Code, er.Error.Message)
		}
		return fmt.Errorf("%w: HTTP %d", ErrTrigger, resp.StatusCode)
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(dr.Data, result); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
