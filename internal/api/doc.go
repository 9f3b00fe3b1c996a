// Package api содержит HTTP API Playroom.
//
// Структура:
//   - handler.go      — Handler и его зависимости
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — recovery, logging, CORS, лимит запросов по IP
//   - response.go     — JSON-ответы и единый формат ошибок
//   - dto.go          — тела ответов
//   - scan_handler.go — /api/scan и /api/limits
//
// Ответы публичного API — голые объекты; ошибки — {"error":{"code","message"}}.
// Helpers из response.go используются и служебными endpoints оркестратора.
package api
