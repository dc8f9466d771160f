package ports

import (
	"context"

	"experiment-stats-service/internal/evaluation/core/domain"
)

// GoalsFilter narrows the goal aggregates fetched for one evaluation.
// Goals lists the goal names referenced by the experiment's metrics and
// checks; DateFrom/DateTo bound the aggregation window when set.
type GoalsFilter struct {
	ExperimentID string
	UnitType     string
	Goals        []string
	DateFrom     string
	DateTo       string
}

type GoalsReaderPort interface {
	GetGoalAggregates(ctx context.Context, f GoalsFilter) ([]domain.GoalAggregate, error)
}
