package pipeline

import (
	"errors"
	"testing"
)

func TestZip2_LengthMismatch(t *testing.T) {
	a := Lift([]int{1, 2, 3})
	b := Lift([]string{"a", "b"})

	if _, err := Zip2(a, b); !errors.Is(err, ErrAlignmentViolation) {
		t.Errorf("Zip2(3, 2) error = %v, want ErrAlignmentViolation", err)
	}
}

func TestZip2_OrderMismatch(t *testing.T) {
	a := Lift([]int{1, 2})
	b := []Result[string]{{Index: 1, Value: "b"}, {Index: 0, Value: "a"}}

	if _, err := Zip2(a, b); !errors.Is(err, ErrAlignmentViolation) {
		t.Errorf("Zip2(reordered) error = %v, want ErrAlignmentViolation", err)
	}
}

func TestZip2_Pairs(t *testing.T) {
	a := Lift([]int{1, 2, 3})
	b := Lift([]string{"a", "b", "c"})

	out, err := Zip2(a, b)
	if err != nil {
		t.Fatalf("Zip2() error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[2].Value.First != 3 || out[2].Value.Second != "c" {
		t.Errorf("out[2] = %+v", out[2].Value)
	}
}

func TestZip2_PropagatesFailure(t *testing.T) {
	fail := errors.New("failed")
	a := Lift([]int{1, 2})
	b := []Result[string]{{Index: 0, Value: "a"}, {Index: 1, Err: fail}}

	out, err := Zip2(a, b)
	if err != nil {
		t.Fatalf("Zip2() error: %v", err)
	}
	if !out[0].OK() {
		t.Error("out[0] should be OK")
	}
	if !errors.Is(out[1].Err, fail) {
		t.Errorf("out[1].Err = %v, want carried failure", out[1].Err)
	}
}

func TestZip3_LengthMismatch(t *testing.T) {
	a := Lift([]int{1, 2, 3})
	b := Lift([]int{1, 2, 3})
	c := Lift([]int{1, 2})

	if _, err := Zip3(a, b, c); !errors.Is(err, ErrAlignmentViolation) {
		t.Errorf("Zip3() error = %v, want ErrAlignmentViolation", err)
	}
}

func TestZip3_Empty(t *testing.T) {
	out, err := Zip3([]Result[int]{}, []Result[int]{}, []Result[int]{})
	if err != nil {
		t.Fatalf("Zip3() error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}
