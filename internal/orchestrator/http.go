package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Playroom/internal/api"
	"github.com/shaiso/Playroom/internal/domain"
	"github.com/shaiso/Playroom/internal/token"
)

// TokenRequest — тело POST /auth/token.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TriggerResponse — ответ trigger endpoint.
type TriggerResponse struct {
	RunID    uuid.UUID        `json:"run_id"`
	Pipeline string           `json:"pipeline"`
	Status   domain.RunStatus `json:"status"`
}

type subjectKey struct{}

// RegisterRoutes регистрирует служебные endpoints оркестратора.
func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	chain := api.Chain(
		api.Recovery(o.logger),
		api.Logging(o.logger),
	)
	authed := api.Chain(chain, o.requireToken)

	mux.Handle("POST /auth/token", chain(http.HandlerFunc(o.IssueToken)))
	mux.Handle("POST /api/v1/pipelines/{name}/runs", authed(http.HandlerFunc(o.TriggerRun)))
	mux.Handle("GET /api/v1/runs/{id}", authed(http.HandlerFunc(o.GetRun)))
}

// IssueToken выдаёт bearer-токен по логину и паролю.
// POST /auth/token
func (o *Orchestrator) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.BadRequest(w, "invalid request body")
		return
	}

	tok, err := o.tokens.Issue(req.Username, req.Password)
	if errors.Is(err, token.ErrInvalidCredentials) {
		api.Unauthorized(w, "invalid credentials")
		return
	}
	if err != nil {
		api.InternalError(w, o.logger, err)
		return
	}
	api.Success(w, tok)
}

// TriggerRun создаёт PENDING run для pipeline.
// POST /api/v1/pipelines/{name}/runs
func (o *Orchestrator) TriggerRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := o.pipelines[name]; !ok {
		api.NotFound(w, "unknown pipeline: "+name)
		return
	}

	subject, _ := r.Context().Value(subjectKey{}).(string)
	run := &domain.PipelineRun{
		ID:          uuid.New(),
		Pipeline:    name,
		Status:      domain.RunStatusPending,
		TriggeredBy: subject,
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.runs.Create(r.Context(), run); err != nil {
		api.InternalError(w, o.logger, err)
		return
	}

	o.notifyPending(r.Context(), run)

	o.logger.Info("run triggered", "run_id", run.ID, "pipeline", name, "by", subject)
	api.Created(w, TriggerResponse{RunID: run.ID, Pipeline: name, Status: run.Status})
}

// notifyPending публикует run.pending. Ошибка не фатальна: run подхватит polling.
func (o *Orchestrator) notifyPending(ctx context.Context, run *domain.PipelineRun) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishRunPending(ctx, run.ID, run.Pipeline); err != nil {
		o.logger.Warn("failed to publish run.pending, polling will pick it up",
			"run_id", run.ID,
			"error", err,
		)
	}
}

// GetRun возвращает run.
// GET /api/v1/runs/{id}
func (o *Orchestrator) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		api.BadRequest(w, "invalid run id")
		return
	}

	run, err := o.runs.GetByID(r.Context(), id)
	if api.HandleRepoError(w, o.logger, err, "run not found") {
		return
	}
	api.Success(w, run)
}

// requireToken пропускает запрос только с валидным bearer-токеном.
func (o *Orchestrator) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			api.Unauthorized(w, "missing bearer token")
			return
		}

		subject, err := o.tokens.Verify(raw)
		if err != nil {
			api.Unauthorized(w, "token expired or invalid")
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
