package testutil

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestDense(t *testing.T) {
	t.Parallel()

	if Dense(nil) != nil {
		t.Error("Dense(nil) should be nil")
	}
	m := Dense([][]float64{{1, 2}, {3, 4}, {5, 6}})
	r, c := m.Dims()
	if r != 3 || c != 2 {
		t.Fatalf("dims = %dx%d, want 3x2", r, c)
	}
	if m.At(2, 1) != 6 {
		t.Errorf("At(2,1) = %v, want 6", m.At(2, 1))
	}
	AssertDenseEqual(t, mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}), m, 0)
}

func TestBlobs(t *testing.T) {
	t.Parallel()

	x, y := Blobs(10)
	r, c := x.Dims()
	if r != 10 || c != 2 {
		t.Fatalf("x dims = %dx%d", r, c)
	}
	for i := 0; i < r; i++ {
		positive := x.At(i, 0) > 0
		if positive != (y.At(i, 0) == 1) {
			t.Errorf("row %d: label %v does not match feature sign", i, y.At(i, 0))
		}
	}
}
