// Package testutil provides shared test helpers and fixtures.
package testutil

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// Dense builds a matrix from row slices. All rows must have equal length.
func Dense(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	data := make([]float64, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), len(rows[0]), data)
}

// AssertDenseEqual fails the test if a and b differ in shape or any element
// differs by more than tol.
func AssertDenseEqual(t testing.TB, want, got mat.Matrix, tol float64) {
	t.Helper()
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	if wr != gr || wc != gc {
		t.Fatalf("shape = %dx%d, want %dx%d", gr, gc, wr, wc)
	}
	if !mat.EqualApprox(want, got, tol) {
		t.Errorf("matrices differ beyond %g:\nwant % v\ngot  % v", tol, mat.Formatted(want), mat.Formatted(got))
	}
}

// Blobs returns a small linearly separable two-class dataset: n rows of two
// features with labels in a single column. Rows alternate between classes.
func Blobs(n int) (*mat.Dense, *mat.Dense) {
	x := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		jitter := float64(i%7) * 0.05
		if i%2 == 0 {
			x.Set(i, 0, 1+jitter)
			x.Set(i, 1, 1-jitter)
			y.Set(i, 0, 1)
		} else {
			x.Set(i, 0, -1-jitter)
			x.Set(i, 1, -1+jitter)
		}
	}
	return x, y
}
