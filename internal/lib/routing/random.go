package routing

import (
	"math/bits"
	"math/rand"

	"github.com/dpup/scanplan/internal/lib/geo"
)

const lcgModulus = 1<<31 - 1

// passSeeds returns one seed per riffle pass from the generator
// x' = (2x + 13) mod (2^31 - 1) started at seed.
func passSeeds(seed int64, passes int) []int64 {
	x := uint64(seed) % lcgModulus
	if x == 0 {
		x = 1
	}
	out := make([]int64, passes)
	for i := range out {
		x = (2*x + 13) % lcgModulus
		out[i] = int64(x)
	}
	return out
}

// riffle applies 2*ceil(log2 n)+1 inverse riffle passes: each pass tags every
// element with a random bit and stably moves the zeros before the ones. Pass
// k draws its bits from a source seeded with the k-th LCG value, so the
// permutation depends only on seed and n.
func riffle(points []geo.Point, seed int64) []geo.Point {
	out := append([]geo.Point(nil), points...)
	if len(out) < 2 {
		return out
	}

	passes := 2*bits.Len(uint(len(out)-1)) + 1
	zeros := make([]geo.Point, 0, len(out))
	ones := make([]geo.Point, 0, len(out))
	for _, s := range passSeeds(seed, passes) {
		rng := rand.New(rand.NewSource(s))
		zeros, ones = zeros[:0], ones[:0]
		for _, p := range out {
			if rng.Int63()&1 == 1 {
				ones = append(ones, p)
			} else {
				zeros = append(zeros, p)
			}
		}
		out = append(append(out[:0], zeros...), ones...)
	}
	return out
}
