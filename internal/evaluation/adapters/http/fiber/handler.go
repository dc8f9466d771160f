package fiber

import (
	"context"
	"errors"
	"math"
	"net/http"

	"experiment-stats-service/internal/evaluation/core/domain"
	"experiment-stats-service/internal/evaluation/core/expr"
	"experiment-stats-service/internal/evaluation/core/stats"
	"experiment-stats-service/internal/evaluation/core/usecase"

	"github.com/gofiber/fiber/v2"
)

type EvaluateExperimentUseCase interface {
	Execute(ctx context.Context, exp domain.Experiment) (*domain.Evaluation, error)
}

type CalculateSampleSizeUseCase interface {
	Execute(ctx context.Context, in usecase.CalculateSampleSizeInput) (float64, error)
}

type EvaluationHandler struct {
	evaluateUC   EvaluateExperimentUseCase
	sampleSizeUC CalculateSampleSizeUseCase
}

func NewEvaluationHandler(evaluateUC EvaluateExperimentUseCase, sampleSizeUC CalculateSampleSizeUseCase) *EvaluationHandler {
	return &EvaluationHandler{evaluateUC: evaluateUC, sampleSizeUC: sampleSizeUC}
}

// Evaluate godoc
// @Summary Evaluate an experiment
// @Description Computes exposures, metric statistics and data quality checks for an experiment
// @Tags Evaluation
// @Accept json
// @Produce json
// @Param request body EvaluateRequest true "Experiment definition"
// @Success 200 {object} EvaluateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /evaluate [post]
func (h *EvaluationHandler) Evaluate(c *fiber.Ctx) error {
	var req EvaluateRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid_json",
		})
	}

	exp := domain.Experiment{
		ID:               req.ID,
		ControlVariantID: req.ControlVariantID,
		UnitType:         req.UnitType,
		Variants:         req.Variants,
		DateFrom:         req.DateFrom,
		DateTo:           req.DateTo,
		DateFor:          req.DateFor,
		ConfidenceLevel:  req.ConfidenceLevel,
	}
	for _, m := range req.Metrics {
		minimumEffect := -1.0
		if m.MinimumEffect != nil {
			minimumEffect = *m.MinimumEffect
		}
		exp.Metrics = append(exp.Metrics, domain.Metric{
			ID:              m.ID,
			Name:            m.Name,
			Nominator:       m.Nominator,
			Denominator:     m.Denominator,
			MinimumEffect:   minimumEffect,
			ConfidenceLevel: m.ConfidenceLevel,
		})
	}
	for _, ch := range req.Checks {
		exp.Checks = append(exp.Checks, domain.Check{
			ID:              ch.ID,
			Name:            ch.Name,
			Type:            ch.Type,
			Nominator:       ch.Nominator,
			Denominator:     ch.Denominator,
			ConfidenceLevel: ch.ConfidenceLevel,
		})
	}

	ev, err := h.evaluateUC.Execute(c.UserContext(), exp)
	if err != nil {
		var parseErr *expr.ParseError
		switch {
		case errors.As(err, &parseErr),
			errors.Is(err, usecase.ErrInvalidExperiment),
			errors.Is(err, usecase.ErrDuplicateMetricID),
			errors.Is(err, usecase.ErrMissingControlVariant),
			errors.Is(err, stats.ErrElapsedFraction):
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_experiment",
				Message: err.Error(),
			})
		default:
			return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
				Error: "internal_server_error",
			})
		}
	}

	resp := EvaluateResponse{
		ID:        exp.ID,
		Exposures: make([]ExposureRowResponse, 0, len(ev.Exposures)),
		Metrics:   make([]MetricRowResponse, 0, len(ev.Metrics)),
		Checks:    make([]CheckRowResponse, 0, len(ev.Checks)),
	}
	for _, e := range ev.Exposures {
		resp.Exposures = append(resp.Exposures, ExposureRowResponse{
			ExperimentID: e.ExperimentID,
			VariantID:    e.VariantID,
			Exposures:    e.Exposures,
		})
	}
	for _, m := range ev.Metrics {
		resp.Metrics = append(resp.Metrics, MetricRowResponse{
			ExperimentID: m.ExperimentID,
			MetricID:     m.MetricID,
			MetricName:   m.MetricName,
			VariantID:    m.VariantID,

			Count:           m.Count,
			Mean:            num(m.Mean),
			Std:             num(m.Std),
			SumValue:        m.SumValue,
			ConfidenceLevel: m.ConfidenceLevel,

			Diff:               num(m.Diff),
			TestStat:           num(m.TestStat),
			PValue:             num(m.PValue),
			ConfidenceInterval: num(m.ConfidenceInterval),
			StandardError:      num(m.StandardError),
			DegreesOfFreedom:   num(m.DegreesOfFreedom),

			MinimumEffect:      num(m.MinimumEffect),
			SampleSize:         num(m.SampleSize),
			RequiredSampleSize: num(m.RequiredSampleSize),
		})
	}
	for _, ch := range ev.Checks {
		resp.Checks = append(resp.Checks, CheckRowResponse{
			ExperimentID: ch.ExperimentID,
			CheckID:      ch.CheckID,
			CheckName:    ch.CheckName,
			VariableID:   ch.VariableID,
			Value:        num(ch.Value),
		})
	}

	return c.Status(http.StatusOK).JSON(resp)
}

// CalculateSampleSize godoc
// @Summary Calculate required sample size
// @Description Returns the per-variant sample size required to detect the minimum effect of interest
// @Tags Evaluation
// @Accept json
// @Produce json
// @Param request body SampleSizeRequest true "Sample size query"
// @Success 200 {object} SampleSizeResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sample-size-calculation [post]
func (h *EvaluationHandler) CalculateSampleSize(c *fiber.Ctx) error {
	var req SampleSizeRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid_json",
		})
	}

	size, err := h.sampleSizeUC.Execute(c.UserContext(), usecase.CalculateSampleSizeInput{
		Variants:        req.Variants,
		MinimumEffect:   req.MinimumEffect,
		Mean:            req.Mean,
		Std:             req.Std,
		ConfidenceLevel: req.ConfidenceLevel,
		Power:           req.Power,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidSampleSizeQuery):
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_sample_size_query",
				Message: err.Error(),
			})
		default:
			return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
				Error: "internal_server_error",
			})
		}
	}

	return c.Status(http.StatusOK).JSON(SampleSizeResponse{SampleSizePerVariant: size})
}

// num maps undefined statistics to a missing JSON field, since NaN and Inf
// have no JSON encoding.
func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
