// Package orchestrator ведёт жизненный цикл pipeline runs.
//
// Trigger endpoint создаёт PENDING run и публикует run.pending.
// Orchestrator забирает run (consumer или polling), переводит его в RUNNING,
// выполняет pipeline и финализирует SUCCEEDED или FAILED.
//
// Ошибки отдельных сканов не роняют run: они попадают в stats.
// FAILED означает фатальную ошибку (сбой выборки, нарушение выравнивания).
package orchestrator
