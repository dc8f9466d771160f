package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrAllocationRatio is returned when the expected allocation ratios do not
// match the observed counts.
var ErrAllocationRatio = errors.New("allocation ratios must match observed counts and sum to a positive value")

// ChiSquare runs a goodness-of-fit test of observed counts against an
// expected allocation ratio. A nil ratio means uniform allocation. The
// statistic is 0 and the p-value 1 when observed counts match the expected
// allocation exactly. With a zero total the result is NaN, never an error.
func ChiSquare(observed, ratios []float64) (stat, pValue float64, err error) {
	k := len(observed)
	if k < 2 {
		return math.NaN(), math.NaN(), ErrAllocationRatio
	}
	if ratios == nil {
		ratios = make([]float64, k)
		for i := range ratios {
			ratios[i] = 1
		}
	}
	if len(ratios) != k {
		return math.NaN(), math.NaN(), ErrAllocationRatio
	}

	var total, ratioSum float64
	for i := range observed {
		total += observed[i]
		ratioSum += ratios[i]
	}
	if ratioSum <= 0 {
		return math.NaN(), math.NaN(), ErrAllocationRatio
	}

	for i := range observed {
		expected := total * ratios[i] / ratioSum
		d := observed[i] - expected
		stat += d * d / expected
	}

	if math.IsNaN(stat) {
		return stat, math.NaN(), nil
	}
	chi2 := distuv.ChiSquared{K: float64(k - 1)}
	return stat, 1 - chi2.CDF(stat), nil
}
