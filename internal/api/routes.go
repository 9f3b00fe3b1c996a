package api

import (
	"net/http"
)

// RegisterRoutes регистрирует маршруты публичного API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		CORS(),
	)
	reads := Chain(chain, h.getLimiter.Middleware())
	writes := Chain(chain, h.postLimiter.Middleware())

	mux.Handle("POST /api/scan", writes(http.HandlerFunc(h.SubmitScan)))
	// preflight: CORS отвечает 204 до обработчика
	mux.Handle("OPTIONS /api/scan", chain(http.NotFoundHandler()))
	mux.Handle("GET /api/scan/{id}", reads(http.HandlerFunc(h.GetScan)))
	mux.Handle("GET /api/limits", reads(http.HandlerFunc(h.GetLimits)))
}
