package sampler

import (
	"encoding/binary"
	"math/rand/v2"

	"gonum.org/v1/gonum/mathext/prng"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// permLimit bounds the population for which a full permutation may be built.
const permLimit = 1 << 24

// UniformMersenne draws uniformly without replacement from MT19937.
type UniformMersenne struct {
	Seed uint64
}

// Sample implements Sampler.
func (u UniformMersenne) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	src := prng.NewMT19937()
	src.Seed(u.Seed)
	return withoutReplacement(n, population, src), nil
}

// UniformCrypto draws uniformly without replacement from a ChaCha8 stream
// keyed by the seed.
type UniformCrypto struct {
	Seed uint64
}

// Sample implements Sampler.
func (u UniformCrypto) Sample(n, population int) ([]int, error) {
	if err := checkSize(n, population); err != nil {
		return nil, err
	}
	return withoutReplacement(n, population, chachaSource(u.Seed)), nil
}

func chachaSource(seed uint64) *rand.ChaCha8 {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	binary.LittleEndian.PutUint64(key[8:16], seed^0x9e3779b97f4a7c15)
	return rand.NewChaCha8(key)
}

// withoutReplacement delegates to sampleuv unless that would build a
// permutation of a very large population, in which case Floyd's algorithm
// is used and the result shuffled.
func withoutReplacement(n, population int, src rand.Source) []int {
	idx := make([]int, n)
	if population <= permLimit || population >= n*n {
		sampleuv.WithoutReplacement(idx, population, src)
		return idx
	}

	rng := rand.New(src)
	chosen := make(map[int]bool, n)
	idx = idx[:0]
	for j := population - n; j < population; j++ {
		t := rng.IntN(j + 1)
		if chosen[t] {
			t = j
		}
		chosen[t] = true
		idx = append(idx, t)
	}
	rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
	return idx
}
