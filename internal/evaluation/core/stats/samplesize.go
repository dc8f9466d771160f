package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultPower is the statistical power used for sample size calculations
// when none is given.
const DefaultPower = 0.8

// ErrSampleSizeInput is returned for sample size inputs outside the valid
// domain.
var ErrSampleSizeInput = errors.New("invalid sample size input")

// SampleSizeInput parameterizes a required sample size calculation. Zero
// values of ConfidenceLevel, Power and Std2 fall back to 0.95, DefaultPower
// and Std respectively.
type SampleSizeInput struct {
	Variants        int
	MinimumEffect   float64 // relative effect of interest, e.g. 0.05
	Mean            float64 // control mean, or rate for the Bernoulli form
	Std             float64
	Std2            float64
	ConfidenceLevel float64
	Power           float64
}

// RequiredSampleSizePerVariant computes the number of observations each
// variant needs to detect a relative MinimumEffect on Mean with the desired
// power. The significance level is Bonferroni-divided across treatment
// variants so the result stays valid for multi-variant experiments.
func RequiredSampleSizePerVariant(in SampleSizeInput) (float64, error) {
	if in.Variants < 2 || in.MinimumEffect <= 0 || in.Mean == 0 || in.Std < 0 {
		return 0, ErrSampleSizeInput
	}
	std2 := in.Std2
	if std2 == 0 {
		std2 = in.Std
	}
	variance := (in.Std*in.Std + std2*std2) / 2
	delta := in.Mean * in.MinimumEffect
	return requiredSampleSize(in, variance, delta)
}

// RequiredSampleSizePerVariantBernoulli is the binary-goal form: Mean is the
// control conversion rate and the variance of both sides follows from it.
func RequiredSampleSizePerVariantBernoulli(in SampleSizeInput) (float64, error) {
	if in.Variants < 2 || in.MinimumEffect <= 0 || in.Mean <= 0 || in.Mean >= 1 {
		return 0, ErrSampleSizeInput
	}
	rate2 := in.Mean * (1 + in.MinimumEffect)
	if rate2 >= 1 {
		return 0, ErrSampleSizeInput
	}
	variance := (in.Mean*(1-in.Mean) + rate2*(1-rate2)) / 2
	delta := in.Mean * in.MinimumEffect
	return requiredSampleSize(in, variance, delta)
}

func requiredSampleSize(in SampleSizeInput, variance, delta float64) (float64, error) {
	confidenceLevel := in.ConfidenceLevel
	if confidenceLevel == 0 {
		confidenceLevel = 0.95
	}
	power := in.Power
	if power == 0 {
		power = DefaultPower
	}
	if confidenceLevel <= 0 || confidenceLevel >= 1 || power <= 0 || power >= 1 {
		return 0, ErrSampleSizeInput
	}

	// Bonferroni division of the significance level across treatments
	alpha := (1 - confidenceLevel) / float64(in.Variants-1)

	z := distuv.UnitNormal.Quantile(1-alpha/2) + distuv.UnitNormal.Quantile(power)
	return math.Ceil(2 * variance * z * z / (delta * delta)), nil
}
