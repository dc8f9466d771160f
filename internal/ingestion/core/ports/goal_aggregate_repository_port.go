package ports

import (
	"context"

	"experiment-stats-service/internal/ingestion/core/domain"
)

type GoalAggregateRepositoryPort interface {
	UpsertGoalAggregate(ctx context.Context, g *domain.GoalAggregate) error
}
