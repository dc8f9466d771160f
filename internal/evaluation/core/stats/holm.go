package stats

import (
	"math"
	"sort"
)

// HolmBonferroni returns step-down adjusted p-values for one family of
// hypotheses. Adjusted values are monotone non-decreasing in rank, each at
// least its raw value, and capped at 1. NaN inputs stay NaN and still count
// towards the family size.
func HolmBonferroni(pvals []float64) []float64 {
	m := len(pvals)
	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		pa, pb := pvals[order[a]], pvals[order[b]]
		if math.IsNaN(pa) {
			return false
		}
		if math.IsNaN(pb) {
			return true
		}
		return pa < pb
	})

	adjusted := make([]float64, m)
	running := 0.0
	for rank, i := range order {
		p := pvals[i]
		if math.IsNaN(p) {
			adjusted[i] = math.NaN()
			continue
		}
		v := float64(m-rank) * p
		if v > 1 {
			v = 1
		}
		if v < running {
			v = running
		}
		running = v
		adjusted[i] = v
	}
	return adjusted
}
