package fiber

import (
	"context"
	"errors"
	"net/http"

	"experiment-stats-service/internal/ingestion/core/usecase"

	"github.com/gofiber/fiber/v2"
)

type StoreGoalAggregateUseCase interface {
	Execute(ctx context.Context, in usecase.StoreGoalAggregateInput) error
	BulkStoreGoalAggregates(ctx context.Context, in usecase.BulkStoreGoalAggregatesInput) (usecase.BulkStoreGoalAggregatesResult, error)
}

type GoalAggregateHandler struct {
	storeUC StoreGoalAggregateUseCase
}

func NewGoalAggregateHandler(storeUC StoreGoalAggregateUseCase) *GoalAggregateHandler {
	return &GoalAggregateHandler{storeUC: storeUC}
}

// StoreGoalAggregate godoc
// @Summary Store a goal aggregate increment
// @Description Accumulates one daily goal aggregate into the store
// @Tags Goals
// @Accept json
// @Produce json
// @Param request body StoreGoalAggregateRequest true "Goal aggregate payload"
// @Success 201 {object} StoreGoalAggregateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /goals [post]
func (h *GoalAggregateHandler) StoreGoalAggregate(c *fiber.Ctx) error {
	var req StoreGoalAggregateRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid_json",
		})
	}

	err := h.storeUC.Execute(c.UserContext(), toInput(req))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidGoalAggregate),
			errors.Is(err, usecase.ErrFutureDate):
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_goal_aggregate",
				Message: err.Error(),
			})
		default:
			return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
				Error: "internal_server_error",
			})
		}
	}

	return c.Status(http.StatusCreated).JSON(StoreGoalAggregateResponse{
		Status: "stored",
	})
}

// BulkStoreGoalAggregates godoc
// @Summary Bulk store goal aggregates
// @Description Accepts a list of goal aggregate increments and stores them individually
// @Tags Goals
// @Accept json
// @Produce json
// @Param request body BulkStoreGoalAggregatesRequest true "Bulk goal aggregate payload"
// @Success 201 {object} BulkStoreGoalAggregatesResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /goals/bulk [post]
func (h *GoalAggregateHandler) BulkStoreGoalAggregates(c *fiber.Ctx) error {
	var req BulkStoreGoalAggregatesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid_json",
		})
	}

	if len(req.Aggregates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "aggregates_list_required",
		})
	}

	inputs := make([]usecase.StoreGoalAggregateInput, len(req.Aggregates))
	for i, g := range req.Aggregates {
		inputs[i] = toInput(g)
	}

	result, err := h.storeUC.BulkStoreGoalAggregates(
		c.UserContext(),
		usecase.BulkStoreGoalAggregatesInput{Aggregates: inputs},
	)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidGoalAggregate),
			errors.Is(err, usecase.ErrFutureDate):
			return c.Status(http.StatusBadRequest).JSON(ErrorResponse{
				Error:   "invalid_goal_aggregate",
				Message: err.Error(),
			})
		default:
			return c.Status(http.StatusInternalServerError).JSON(ErrorResponse{
				Error: "internal_server_error",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(BulkStoreGoalAggregatesResponse{
		Stored: result.Stored,
	})
}

func toInput(req StoreGoalAggregateRequest) usecase.StoreGoalAggregateInput {
	return usecase.StoreGoalAggregateInput{
		Date:       req.Date,
		ExpID:      req.ExpID,
		VariantID:  req.VariantID,
		UnitType:   req.UnitType,
		AggType:    req.AggType,
		Goal:       req.Goal,
		Dimensions: req.Dimensions,

		Count:       req.Count,
		SumSqrCount: req.SumSqrCount,
		SumValue:    req.SumValue,
		SumSqrValue: req.SumSqrValue,
		CountUnique: req.CountUnique,
	}
}
