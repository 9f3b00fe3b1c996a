// Package pipeline выполняет граф этапов обработки pending сканов.
//
// Граф одного run:
//
//	Fetch → Extract → { Analyze ‖ Quest } → Safety → Merge
//
// Batch, полученный на Fetch, задаёт позиционную корреляцию для всего run:
// каждый fan-out возвращает последовательность той же длины и в том же
// порядке, каждый zip проверяет длины и индексы и при расхождении
// возвращает ErrAlignmentViolation.
//
// Сбой этапа для одного элемента не затрагивает соседей: последующие этапы
// для него не выполняются, а скан переводится в error.
package pipeline
