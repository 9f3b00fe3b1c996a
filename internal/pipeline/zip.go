package pipeline

import "fmt"

// Pair — элементы двух последовательностей с одной позицией.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Triple — элементы трёх последовательностей с одной позицией.
type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// Zip2 соединяет две последовательности позиционно.
// Разная длина или несовпадение Index — ErrAlignmentViolation; усечения нет.
// Элемент, упавший хотя бы в одной последовательности, упавший и в результате.
func Zip2[A, B any](a []Result[A], b []Result[B]) ([]Result[Pair[A, B]], error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: zip lengths %d and %d", ErrAlignmentViolation, len(a), len(b))
	}

	out := make([]Result[Pair[A, B]], len(a))
	for i := range a {
		if err := checkIndex(i, a[i].Index, b[i].Index); err != nil {
			return nil, err
		}
		out[i] = Result[Pair[A, B]]{
			Index: i,
			Value: Pair[A, B]{First: a[i].Value, Second: b[i].Value},
			Err:   firstErr(a[i].Err, b[i].Err),
		}
	}
	return out, nil
}

// Zip3 соединяет три последовательности позиционно. Правила те же, что у Zip2.
func Zip3[A, B, C any](a []Result[A], b []Result[B], c []Result[C]) ([]Result[Triple[A, B, C]], error) {
	if len(a) != len(b) || len(a) != len(c) {
		return nil, fmt.Errorf("%w: zip lengths %d, %d and %d", ErrAlignmentViolation, len(a), len(b), len(c))
	}

	out := make([]Result[Triple[A, B, C]], len(a))
	for i := range a {
		if err := checkIndex(i, a[i].Index, b[i].Index, c[i].Index); err != nil {
			return nil, err
		}
		out[i] = Result[Triple[A, B, C]]{
			Index: i,
			Value: Triple[A, B, C]{First: a[i].Value, Second: b[i].Value, Third: c[i].Value},
			Err:   firstErr(a[i].Err, b[i].Err, c[i].Err),
		}
	}
	return out, nil
}

func checkIndex(pos int, indices ...int) error {
	for _, idx := range indices {
		if idx != pos {
			return fmt.Errorf("%w: position %d carries index %d", ErrAlignmentViolation, pos, idx)
		}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
