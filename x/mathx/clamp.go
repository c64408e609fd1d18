package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Min returns the smaller of a and b.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Nearest returns the element of tiers closest to v. Ties resolve to the
// earlier element, so tiers should be sorted ascending. Returns v when tiers
// is empty.
func Nearest[T constraints.Integer](v T, tiers ...T) T {
	if len(tiers) == 0 {
		return v
	}
	best := tiers[0]
	bestDist := dist(v, best)
	for _, t := range tiers[1:] {
		if d := dist(v, t); d < bestDist {
			best, bestDist = t, d
		}
	}
	return best
}

// dist is |a-b| computed without overflow for unsigned types.
func dist[T constraints.Integer](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}
