package sorter

import (
	"math"
	"math/rand/v2"
)

// weightedShuffle permutes items in place. Each position is filled by drawing
// one of the remaining items with probability proportional to its weight,
// without replacement. weights[i] belongs to items[i] and is permuted along
// with it.
//
// Non-positive and NaN weights count as zero; when every remaining weight is
// zero the draw is uniform. Items of weight +Inf are drawn before all others,
// uniformly among themselves.
func weightedShuffle[T any](items []T, weights []float64, rng *rand.Rand) {
	for i := 0; i < len(items)-1; i++ {
		j := i + draw(weights[i:], rng)

		items[i], items[j] = items[j], items[i]
		weights[i], weights[j] = weights[j], weights[i]
	}
}

func effectiveWeight(w float64) float64 {
	if math.IsNaN(w) || w <= 0 {
		return 0
	}
	return w
}

// draw returns an index into weights chosen proportionally to weight. The
// total is summed on every call so that no rounding carries over between
// draws.
func draw(weights []float64, rng *rand.Rand) int {
	total, largest := 0.0, 0.0
	infinite := 0
	for _, w := range weights {
		w = effectiveWeight(w)
		if math.IsInf(w, 1) {
			infinite++
		}
		total += w
		largest = max(largest, w)
	}

	if infinite > 0 {
		k := rng.IntN(infinite)
		for j, w := range weights {
			if !math.IsInf(w, 1) {
				continue
			}
			if k == 0 {
				return j
			}
			k--
		}
	}
	if total <= 0 {
		return rng.IntN(len(weights))
	}

	// Finite weights whose sum overflows are drawn relative to the largest.
	scale := 1.0
	if math.IsInf(total, 1) {
		scale = 1 / largest
		total = 0
		for _, w := range weights {
			total += effectiveWeight(w) * scale
		}
	}

	r := rng.Float64() * total
	last := 0
	for j, w := range weights {
		w = effectiveWeight(w) * scale
		if w == 0 {
			continue
		}
		if r < w {
			return j
		}
		r -= w
		last = j
	}

	// Rounding left r past the end: take the last candidate that could have
	// been drawn.
	return last
}
