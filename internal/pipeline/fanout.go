package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Playroom/internal/telemetry"
)

// Result — результат этапа для одного элемента batch.
// Index — позиция элемента в batch, полученном на Fetch.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// OK сообщает, что элемент успешно прошёл этап.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Lift превращает batch в последовательность успешных результатов.
func Lift[T any](items []T) []Result[T] {
	out := make([]Result[T], len(items))
	for i, v := range items {
		out[i] = Result[T]{Index: i, Value: v}
	}
	return out
}

// FanOut выполняет fn для каждого успешного элемента in, не более limit одновременно.
//
// out[i] всегда соответствует in[i]. Упавший на предыдущем этапе элемент
// не обрабатывается и переносит свою ошибку. Ошибка или panic в fn
// становится *StageFailure только этого элемента.
func FanOut[In, Out any](
	ctx context.Context,
	stage string,
	in []Result[In],
	limit int,
	fn func(ctx context.Context, v In) (Out, error),
) []Result[Out] {
	out := make([]Result[Out], len(in))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, r := range in {
		out[i].Index = r.Index
		if !r.OK() {
			out[i].Err = r.Err
			continue
		}

		g.Go(func() error {
			v, err := call(gctx, fn, r.Value)
			if err != nil {
				telemetry.StageFailures.WithLabelValues(stage).Inc()
				out[i].Err = &StageFailure{Stage: stage, Index: r.Index, Err: err}
				return nil
			}
			out[i].Value = v
			return nil
		})
	}

	// Горутины не возвращают ошибок: сбой одного элемента не отменяет остальные
	_ = g.Wait()
	return out
}

func call[In, Out any](ctx context.Context, fn func(context.Context, In) (Out, error), v In) (out Out, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx, v)
}
