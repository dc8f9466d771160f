package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrElapsedFraction is returned when the elapsed fraction of the declared
// experiment duration falls outside (0, 1].
var ErrElapsedFraction = errors.New("elapsed fraction of experiment duration must be in (0, 1]")

// OBrienFlemingBoundary returns the O'Brien-Fleming critical boundary
// z*(tau) = z(1-alpha/2)/sqrt(tau) for an interim analysis at elapsed
// fraction tau of the experiment. The boundary is monotone non-increasing in
// tau and equals the static two-sided normal quantile at tau = 1.
func OBrienFlemingBoundary(alpha, tau float64) (float64, error) {
	if math.IsNaN(tau) || tau <= 0 || tau > 1 {
		return 0, ErrElapsedFraction
	}
	q := distuv.UnitNormal.Quantile(1 - alpha/2)
	return q / math.Sqrt(tau), nil
}

// SequentialConfidenceLevel adjusts the experiment confidence level for an
// interim evaluation on actualDay of a totalLength-day experiment, using the
// O'Brien-Fleming alpha spending function. Early days yield a level close to
// 1, the final day yields the nominal level. The result is rounded to 4
// decimal places.
func SequentialConfidenceLevel(confidenceLevel float64, actualDay, totalLength int) (float64, error) {
	if totalLength <= 0 {
		return 0, ErrElapsedFraction
	}
	tau := float64(actualDay) / float64(totalLength)
	alpha := 1 - confidenceLevel
	boundary, err := OBrienFlemingBoundary(alpha, tau)
	if err != nil {
		return 0, err
	}
	alphaAdj := 2 - 2*distuv.UnitNormal.CDF(boundary)
	return math.Round((1-alphaAdj)*1e4) / 1e4, nil
}
