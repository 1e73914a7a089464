package sampler

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hyperscan/internal/paramspace"
)

func assertValidSample(t *testing.T, idx []int, n, population int) {
	t.Helper()
	require.Len(t, idx, n)
	seen := make(map[int]bool, n)
	for _, i := range idx {
		require.True(t, i >= 0 && i < population, "index %d outside [0,%d)", i, population)
		require.False(t, seen[i], "index %d repeated", i)
		seen[i] = true
	}
}

func TestAllMethods_Contract(t *testing.T) {
	sizes := []struct{ n, population int }{
		{1, 1},
		{1, 10},
		{5, 10},
		{10, 10},
		{7, 1000},
		{100, 101},
		{3, 1 << 21}, // above ArgsortLimit: projected directly
	}
	for _, method := range Methods() {
		for _, sz := range sizes {
			t.Run(fmt.Sprintf("%s/%d_of_%d", method, sz.n, sz.population), func(t *testing.T) {
				s, err := New(method, 42)
				require.NoError(t, err)
				idx, err := s.Sample(sz.n, sz.population)
				require.NoError(t, err)
				assertValidSample(t, idx, sz.n, sz.population)
			})
		}
	}
}

func TestAllMethods_Deterministic(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			a, err := New(method, 7)
			require.NoError(t, err)
			b, err := New(method, 7)
			require.NoError(t, err)

			first, err := a.Sample(20, 500)
			require.NoError(t, err)
			second, err := b.Sample(20, 500)
			require.NoError(t, err)
			assert.Equal(t, first, second)

			// Sampling twice from the same sampler is also stable.
			again, err := a.Sample(20, 500)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		})
	}
}

func TestUniform_SeedChangesSample(t *testing.T) {
	for _, method := range []string{"uniform_mersenne", "uniform_crypto"} {
		t.Run(method, func(t *testing.T) {
			a, _ := New(method, 1)
			b, _ := New(method, 2)
			x, err := a.Sample(10, 10000)
			require.NoError(t, err)
			y, err := b.Sample(10, 10000)
			require.NoError(t, err)
			assert.NotEqual(t, x, y)
		})
	}
}

func TestBadSample(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			s, err := New(method, 0)
			require.NoError(t, err)
			_, err = s.Sample(0, 10)
			assert.True(t, errors.Is(err, ErrBadSample))
			_, err = s.Sample(11, 10)
			assert.True(t, errors.Is(err, ErrBadSample))
		})
	}
}

func TestNew_Names(t *testing.T) {
	tests := []struct {
		name    string
		want    any
		wantErr bool
	}{
		{"", UniformMersenne{Seed: 3}, false},
		{"uniform", UniformMersenne{Seed: 3}, false},
		{"UNIFORM_CRYPTO", UniformCrypto{Seed: 3}, false},
		{"korobov", Korobov{Seed: 3}, false},
		{"latin_sudoku", LatinSudoku{Seed: 3}, false},
		{"quasi", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.name, 3)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnknownMethod))
				assert.True(t, errors.Is(err, paramspace.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestMethods(t *testing.T) {
	assert.Equal(t, []string{
		"halton", "korobov_matrix", "latin_improved", "latin_matrix",
		"latin_sudoku", "sobol", "uniform_crypto", "uniform_mersenne",
	}, Methods())
}

func TestLowDiscrepancy_FullPopulationIsPermutation(t *testing.T) {
	for _, s := range []Sampler{Sobol{Seed: 5}, Halton{Seed: 5}, Korobov{Seed: 5}} {
		t.Run(fmt.Sprintf("%T", s), func(t *testing.T) {
			idx, err := s.Sample(64, 64)
			require.NoError(t, err)
			assertValidSample(t, idx, 64, 64)
		})
	}
}

func TestLatin_Stratified(t *testing.T) {
	// With n == population every stratum maps onto its own index, so the
	// design covers the whole range.
	for _, s := range []Sampler{LatinMatrix{Seed: 9}, LatinImproved{Seed: 9}, LatinSudoku{Seed: 9}} {
		t.Run(fmt.Sprintf("%T", s), func(t *testing.T) {
			idx, err := s.Sample(16, 16)
			require.NoError(t, err)
			assertValidSample(t, idx, 16, 16)
		})
	}
}

func TestLatinSudoku_BlockOrder(t *testing.T) {
	idx, err := LatinSudoku{Seed: 11}.Sample(9, 9)
	require.NoError(t, err)
	// Three blocks of three indices; the first three draws visit each block.
	blocks := map[int]bool{}
	for _, i := range idx[:3] {
		blocks[i/3] = true
	}
	assert.Len(t, blocks, 3)
}

func TestFixed(t *testing.T) {
	f := Fixed{5, 1, 5, 9, 3}
	idx, err := f.Sample(3, 6)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 1, 3}, idx)

	_, err = f.Sample(4, 6)
	assert.True(t, errors.Is(err, ErrBadSample))

	var _ paramspace.Sampler = f
}

func TestSamplerFunc(t *testing.T) {
	s := SamplerFunc(func(n, population int) ([]int, error) { return []int{population - 1}, nil })
	idx, err := s.Sample(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, idx)

	_, err = s.Sample(0, 4)
	assert.True(t, errors.Is(err, ErrBadSample))
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Definition{
		Name:    "fixed",
		Aliases: []string{"manual"},
		New:     func(uint64) Sampler { return Fixed{2, 0, 1} },
	})
	s, err := reg.New("manual", 0)
	require.NoError(t, err)
	idx, err := s.Sample(3, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, idx)
	assert.Equal(t, []string{"fixed"}, reg.List())
}

func TestWithoutReplacement_LargePopulation(t *testing.T) {
	// population above permLimit with n*n > population takes the Floyd path.
	const population = permLimit + 1000
	idx := withoutReplacement(5000, population, mtSource(1))
	assertValidSample(t, idx, 5000, population)
}

func TestProject_Collisions(t *testing.T) {
	got := project([]float64{0.1, 0.1, 0.1, 0.99}, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}
