// Package config загружает конфигурацию сервисов Playroom из переменных окружения.
//
// Все сервисы (api, orchestrator, sweeper) читают один и тот же набор
// переменных; каждый использует только нужные ему секции.
// Whitelist для retention может дополнительно задаваться TOML-файлом:
//
//	ids = ["3f0c...", "9a1b..."]
package config
