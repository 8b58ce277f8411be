package roistats

import (
	"math"
)

// winsorize clamps the tails of a sorted sample in place, as described for
// two-sided symmetric winsorization: with k = floor(trim*n), the k lowest
// values are replaced with the value at index k and the k highest values with
// the value at index n-1-k. The sample length is preserved (values are
// clamped, not removed), and a sorted input remains sorted.
func winsorize(sorted []float64, trim float64) {
	n := len(sorted)
	k := int(math.Floor(trim * float64(n)))
	if k <= 0 {
		return
	}

	lo := sorted[k]
	hi := sorted[n-1-k]
	for i := 0; i < k; i++ {
		sorted[i] = lo
		sorted[n-1-i] = hi
	}
}

// percentile computes the p-th percentile (0 <= p <= 100) of a sorted sample
// using linear interpolation between adjacent order statistics: the target
// rank is p/100*(n-1) and the value is interpolated between the two nearest
// order statistics. This is the convention used by most numerical libraries
// for their default percentile, and is pinned here explicitly because
// libraries diverge on rank and tie conventions.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	pos := p / 100 * float64(n-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}

	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// isFinite reports whether v is neither NaN nor infinite.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
