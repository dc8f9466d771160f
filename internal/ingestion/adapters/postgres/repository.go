package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"experiment-stats-service/internal/ingestion/core/domain"
)

// GoalAggregateRepository accumulates daily goal aggregate increments into
// the goal_aggregates table.
type GoalAggregateRepository struct {
	db DB
}

func NewGoalAggregateRepository(db DB) *GoalAggregateRepository {
	return &GoalAggregateRepository{db: db}
}

func (r *GoalAggregateRepository) UpsertGoalAggregate(ctx context.Context, g *domain.GoalAggregate) error {
	dims, err := json.Marshal(g.Dimensions)
	if err != nil {
		return fmt.Errorf("marshal dimensions: %w", err)
	}

	query := `
INSERT INTO goal_aggregates (
    date, exp_id, variant_id, unit_type, agg_type, goal, dimensions,
    count, sum_sqr_count, sum_value, sum_sqr_value, count_unique
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (date, exp_id, variant_id, unit_type, agg_type, goal, dimensions)
DO UPDATE SET
    count = goal_aggregates.count + EXCLUDED.count,
    sum_sqr_count = goal_aggregates.sum_sqr_count + EXCLUDED.sum_sqr_count,
    sum_value = goal_aggregates.sum_value + EXCLUDED.sum_value,
    sum_sqr_value = goal_aggregates.sum_sqr_value + EXCLUDED.sum_sqr_value,
    count_unique = goal_aggregates.count_unique + EXCLUDED.count_unique`

	_, err = r.db.ExecContext(ctx, query,
		g.Date,
		g.ExpID,
		g.VariantID,
		g.UnitType,
		g.AggType,
		g.Goal,
		dims,
		g.Count,
		g.SumSqrCount,
		g.SumValue,
		g.SumSqrValue,
		g.CountUnique,
	)
	return err
}
