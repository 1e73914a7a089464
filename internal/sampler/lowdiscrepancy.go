package sampler

import (
	"math"
	"math/bits"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mathext/prng"
)

// ArgsortLimit is the largest population for which low-discrepancy samplers
// rank a full-length sequence. Larger populations project the first n points
// directly.
const ArgsortLimit = 1 << 20

// sequence yields the i-th point of a one-dimensional sequence in [0, 1).
type sequence func(i int) float64

// lowDiscrepancy ranks the first population points of seq and returns the
// positions of the n smallest values.
func lowDiscrepancy(n, population int, seq sequence) []int {
	if population > ArgsortLimit {
		points := make([]float64, n)
		for i := range points {
			points[i] = seq(i)
		}
		return project(points, population)
	}

	values := make([]float64, population)
	for i := range values {
		values[i] = seq(i)
	}
	return argsort(values)[:n]
}

func argsort(values []float64) []int {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })
	return order
}

// project maps points in [0, 1) onto distinct indices of [0, population),
// probing forward on collision.
func project(points []float64, population int) []int {
	used := make(map[int]bool, len(points))
	out := make([]int, len(points))
	for i, p := range points {
		idx := int(math.Floor(p * float64(population)))
		idx = min(max(idx, 0), population-1)
		for used[idx] {
			idx = (idx + 1) % population
		}
		used[idx] = true
		out[i] = idx
	}
	return out
}

func seededRand(seed uint64) *rand.Rand {
	src := prng.NewMT19937()
	src.Seed(seed)
	return rand.New(src)
}

// Sobol is the one-dimensional Sobol sequence: the base-2 radical inverse in
// Gray-code order, digitally shifted by a seeded mask.
type Sobol struct {
	Seed uint64
}

// Sample implements Sampler.
func (s Sobol) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	shift := seededRand(s.Seed).Uint32()
	seq := func(i int) float64 {
		gray := uint32(i) ^ uint32(i)>>1
		return float64(bits.Reverse32(gray)^shift) / (1 << 32)
	}
	return lowDiscrepancy(n, population, seq), nil
}

// Halton is the base-3 radical inverse with a seeded Cranley-Patterson
// rotation.
type Halton struct {
	Seed uint64
}

// Sample implements Sampler.
func (h Halton) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	shift := seededRand(h.Seed).Float64()
	seq := func(i int) float64 {
		v := radicalInverse(uint64(i)+1, 3) + shift
		return v - math.Floor(v)
	}
	return lowDiscrepancy(n, population, seq), nil
}

func radicalInverse(i, base uint64) float64 {
	inv := 1 / float64(base)
	f := inv
	var r float64
	for i > 0 {
		r += float64(i%base) * f
		i /= base
		f *= inv
	}
	return r
}

// Korobov is a shifted rank-1 lattice x_i = frac((i*a + s) / P) where a is a
// seeded generator coprime to the population P.
type Korobov struct {
	Seed uint64
}

// Sample implements Sampler.
func (k Korobov) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	rng := seededRand(k.Seed)
	a := korobovGenerator(population, rng)
	s := uint64(rng.IntN(population))
	p := uint64(population)
	seq := func(i int) float64 {
		hi, lo := bits.Mul64(uint64(i), a)
		_, rem := bits.Div64(hi%p, lo, p)
		return float64((rem+s)%p) / float64(p)
	}
	return lowDiscrepancy(n, population, seq), nil
}

func korobovGenerator(population int, rng *rand.Rand) uint64 {
	if population <= 2 {
		return 1
	}
	for {
		a := 1 + rng.IntN(population-1)
		if gcd(a, population) == 1 {
			return uint64(a)
		}
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
