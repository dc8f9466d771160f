package usecase

import (
	"context"
	"errors"
	"time"

	"experiment-stats-service/internal/ingestion/core/domain"
	"experiment-stats-service/internal/ingestion/core/ports"
)

var (
	ErrInvalidGoalAggregate = errors.New("invalid goal aggregate")
	ErrFutureDate           = errors.New("aggregate date cannot be in the future")
)

const dateLayout = "2006-01-02"

type StoreGoalAggregateUseCase struct {
	repo ports.GoalAggregateRepositoryPort
}

func NewStoreGoalAggregateUseCase(repo ports.GoalAggregateRepositoryPort) *StoreGoalAggregateUseCase {
	return &StoreGoalAggregateUseCase{repo: repo}
}

type StoreGoalAggregateInput struct {
	Date       string
	ExpID      string
	VariantID  string
	UnitType   string
	AggType    string
	Goal       string
	Dimensions map[string]string

	Count       float64
	SumSqrCount float64
	SumValue    float64
	SumSqrValue float64
	CountUnique float64
}

func (uc *StoreGoalAggregateUseCase) Execute(ctx context.Context, in StoreGoalAggregateInput) error {
	if err := uc.validateInput(in); err != nil {
		return err
	}

	if in.Dimensions == nil {
		in.Dimensions = map[string]string{}
	}

	g := &domain.GoalAggregate{
		Date:       in.Date,
		ExpID:      in.ExpID,
		VariantID:  in.VariantID,
		UnitType:   in.UnitType,
		AggType:    in.AggType,
		Goal:       in.Goal,
		Dimensions: in.Dimensions,

		Count:       in.Count,
		SumSqrCount: in.SumSqrCount,
		SumValue:    in.SumValue,
		SumSqrValue: in.SumSqrValue,
		CountUnique: in.CountUnique,
	}

	return uc.repo.UpsertGoalAggregate(ctx, g)
}

type BulkStoreGoalAggregatesInput struct {
	Aggregates []StoreGoalAggregateInput
}

type BulkStoreGoalAggregatesResult struct {
	Stored int
}

func (uc *StoreGoalAggregateUseCase) BulkStoreGoalAggregates(ctx context.Context, in BulkStoreGoalAggregatesInput) (BulkStoreGoalAggregatesResult, error) {
	var res BulkStoreGoalAggregatesResult

	for _, g := range in.Aggregates {
		if err := uc.validateInput(g); err != nil {
			return res, err
		}
	}

	for _, g := range in.Aggregates {
		if err := uc.Execute(ctx, g); err != nil {
			return res, err
		}
		res.Stored++
	}

	return res, nil
}

func (uc *StoreGoalAggregateUseCase) validateInput(in StoreGoalAggregateInput) error {
	if in.ExpID == "" || in.VariantID == "" || in.UnitType == "" || in.Goal == "" {
		return ErrInvalidGoalAggregate
	}
	if in.AggType != "unit" && in.AggType != "global" {
		return ErrInvalidGoalAggregate
	}
	if in.Count < 0 || in.SumSqrCount < 0 || in.SumSqrValue < 0 || in.CountUnique < 0 {
		return ErrInvalidGoalAggregate
	}

	date, err := time.Parse(dateLayout, in.Date)
	if err != nil {
		return ErrInvalidGoalAggregate
	}
	if date.After(time.Now().UTC().Truncate(24 * time.Hour)) {
		return ErrFutureDate
	}

	return nil
}
