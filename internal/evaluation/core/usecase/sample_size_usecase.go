package usecase

import (
	"context"
	"errors"

	"experiment-stats-service/internal/evaluation/core/stats"
)

var ErrInvalidSampleSizeQuery = errors.New("invalid sample size query")

// CalculateSampleSizeInput carries the planning parameters. Std is optional;
// when nil the metric is treated as a binary goal with Mean as the control
// conversion rate.
type CalculateSampleSizeInput struct {
	Variants        int
	MinimumEffect   float64
	Mean            float64
	Std             *float64
	ConfidenceLevel float64
	Power           float64
}

type CalculateSampleSizeUseCase struct{}

func NewCalculateSampleSizeUseCase() *CalculateSampleSizeUseCase {
	return &CalculateSampleSizeUseCase{}
}

func (uc *CalculateSampleSizeUseCase) Execute(ctx context.Context, in CalculateSampleSizeInput) (float64, error) {
	if in.Variants < 2 || in.MinimumEffect <= 0 {
		return 0, ErrInvalidSampleSizeQuery
	}

	ssIn := stats.SampleSizeInput{
		Variants:        in.Variants,
		MinimumEffect:   in.MinimumEffect,
		Mean:            in.Mean,
		ConfidenceLevel: in.ConfidenceLevel,
		Power:           in.Power,
	}

	var (
		size float64
		err  error
	)
	if in.Std == nil {
		size, err = stats.RequiredSampleSizePerVariantBernoulli(ssIn)
	} else {
		ssIn.Std = *in.Std
		size, err = stats.RequiredSampleSizePerVariant(ssIn)
	}
	if err != nil {
		return 0, ErrInvalidSampleSizeQuery
	}
	return size, nil
}
