// Package cli реализует командную строку Playroom.
//
// CLI работает только по HTTP и не импортирует внутренние пакеты:
// типы ответов дублируются в client.go.
//
// Команды:
//   - scan: submit, show
//   - limits
//   - run: trigger, show (служебный API оркестратора, требует логин и пароль)
//
// Данные печатаются в stdout (таблица go-pretty или JSON с --json),
// сообщения — в stderr, поэтому работает pipe: playroom scan show ID --json | jq .
package cli
