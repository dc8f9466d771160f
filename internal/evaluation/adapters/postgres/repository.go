package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"experiment-stats-service/internal/evaluation/core/domain"
	"experiment-stats-service/internal/evaluation/core/ports"

	"github.com/lib/pq"
)

type RowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (RowScanner, error)
}

// GoalsRepository reads goal aggregates from the goal_aggregates table.
// The table holds one row per day and goal slice; the repository sums the
// counters over the requested window so the core receives one row per slice.
type GoalsRepository struct {
	db DB
}

func NewGoalsRepository(db DB) *GoalsRepository {
	return &GoalsRepository{db: db}
}

func (r *GoalsRepository) GetGoalAggregates(ctx context.Context, f ports.GoalsFilter) ([]domain.GoalAggregate, error) {
	where := "exp_id = $1 AND unit_type = $2"
	args := []any{f.ExperimentID, f.UnitType}
	argIndex := 3

	if len(f.Goals) > 0 {
		where += fmt.Sprintf(" AND goal = ANY($%d)", argIndex)
		args = append(args, pq.Array(f.Goals))
		argIndex++
	}
	if f.DateFrom != "" {
		where += fmt.Sprintf(" AND date >= $%d", argIndex)
		args = append(args, f.DateFrom)
		argIndex++
	}
	if f.DateTo != "" {
		where += fmt.Sprintf(" AND date <= $%d", argIndex)
		args = append(args, f.DateTo)
		argIndex++
	}

	query := `
SELECT
    exp_id,
    variant_id,
    unit_type,
    agg_type,
    goal,
    dimensions,
    SUM(count) AS count,
    SUM(sum_sqr_count) AS sum_sqr_count,
    SUM(sum_value) AS sum_value,
    SUM(sum_sqr_value) AS sum_sqr_value,
    SUM(count_unique) AS count_unique
FROM goal_aggregates
WHERE ` + where + `
GROUP BY exp_id, variant_id, unit_type, agg_type, goal, dimensions
ORDER BY variant_id, goal`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GoalAggregate
	for rows.Next() {
		var g domain.GoalAggregate
		var dims []byte
		if err := rows.Scan(
			&g.ExpID,
			&g.VariantID,
			&g.UnitType,
			&g.AggType,
			&g.Goal,
			&dims,
			&g.Count,
			&g.SumSqrCount,
			&g.SumValue,
			&g.SumSqrValue,
			&g.CountUnique,
		); err != nil {
			return nil, err
		}
		if len(dims) > 0 {
			if err := json.Unmarshal(dims, &g.Dimensions); err != nil {
				return nil, fmt.Errorf("invalid dimensions for goal %s: %w", g.Goal, err)
			}
		}
		out = append(out, g)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
