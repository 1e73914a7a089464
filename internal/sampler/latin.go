package sampler

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext/prng"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"
)

// latinDesign draws n stratified points in [0, 1), one per stratum, in a
// random order.
func latinDesign(n int, src *prng.MT19937) []float64 {
	batch := mat.NewDense(n, 1, nil)
	samplemv.LatinHypercube{Q: distmv.NewUnitUniform(1, src), Src: src}.Sample(batch)
	return mat.Col(nil, 0, batch)
}

func mtSource(seed uint64) *prng.MT19937 {
	src := prng.NewMT19937()
	src.Seed(seed)
	return src
}

// LatinMatrix is a one-dimensional Latin hypercube projected onto the index
// range.
type LatinMatrix struct {
	Seed uint64
}

// Sample implements Sampler.
func (l LatinMatrix) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	return project(latinDesign(n, mtSource(l.Seed)), population), nil
}

// latinCandidates is the number of designs LatinImproved compares.
const latinCandidates = 8

// LatinImproved draws several Latin designs and keeps the one whose closest
// pair of points is furthest apart.
type LatinImproved struct {
	Seed uint64
}

// Sample implements Sampler.
func (l LatinImproved) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	src := mtSource(l.Seed)
	var best []float64
	bestScore := math.Inf(-1)
	for c := 0; c < latinCandidates; c++ {
		design := latinDesign(n, src)
		if score := minGap(design); score > bestScore {
			best, bestScore = design, score
		}
	}
	return project(best, population), nil
}

// minGap is the smallest distance between any two points.
func minGap(points []float64) float64 {
	if len(points) < 2 {
		return math.Inf(1)
	}
	sorted := append([]float64(nil), points...)
	sort.Float64s(sorted)
	gap := math.Inf(1)
	for i := 1; i < len(sorted); i++ {
		gap = math.Min(gap, sorted[i]-sorted[i-1])
	}
	return gap
}

// LatinSudoku splits the unit interval into ceil(sqrt(n)) blocks and orders a
// Latin design so that consecutive draws visit every block before any block
// repeats.
type LatinSudoku struct {
	Seed uint64
}

// Sample implements Sampler.
func (l LatinSudoku) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	design := latinDesign(n, mtSource(l.Seed))
	blocks := int(math.Ceil(math.Sqrt(float64(n))))

	buckets := make([][]float64, blocks)
	for _, p := range design {
		b := min(int(p*float64(blocks)), blocks-1)
		buckets[b] = append(buckets[b], p)
	}

	ordered := make([]float64, 0, n)
	for round := 0; len(ordered) < n; round++ {
		for b := range buckets {
			if round < len(buckets[b]) {
				ordered = append(ordered, buckets[b][round])
			}
		}
	}
	return project(ordered, population), nil
}
