package expr

import (
	"experiment-stats-service/internal/evaluation/core/domain"
)

type node interface {
	goals(out *[]GoalSelector)
	eval(rows []domain.GoalAggregate, dims []string) (value, sqr float64, unique bool)
}

// Aggregate is the combined sufficient statistic of one expression evaluated
// for one variant.
type Aggregate struct {
	Value float64
	Sqr   float64
}

// Evaluate resolves the expression against the goal aggregates of a single
// variant. dims is the dimension-name universe the expression is evaluated
// under (typically the union of nominator and denominator dimensions of the
// metric); a selector that does not name a dimension of the universe only
// matches rows where that dimension is empty. Goals with no matching rows
// contribute a zero aggregate.
//
// Additive fields combine linearly by operator across internal nodes. When
// both operands are unique counts they combine by maximum instead, since a
// unique count represents unit-level presence, not a magnitude. The linear
// combination of second moments ignores covariance between the combined
// goals; the resulting variance is an accepted approximation.
func (e *Expression) Evaluate(rows []domain.GoalAggregate, dims []string) Aggregate {
	value, sqr, _ := e.root.eval(rows, dims)
	return Aggregate{Value: value, Sqr: sqr}
}

func (n *leafNode) eval(rows []domain.GoalAggregate, dims []string) (value, sqr float64, unique bool) {
	sel := n.sel
	for _, row := range rows {
		if row.UnitType != sel.UnitType || row.AggType != sel.AggType || row.Goal != sel.Goal {
			continue
		}
		if !matchDimensions(row, sel, dims) {
			continue
		}
		switch sel.Func {
		case "count":
			value += row.Count
			sqr += row.SumSqrCount
		case "value":
			value += row.SumValue
			sqr += row.SumSqrValue
		case "unique":
			value += row.CountUnique
			sqr += row.CountUnique
		}
	}
	return value, sqr, sel.Func == "unique"
}

func (n *binaryNode) eval(rows []domain.GoalAggregate, dims []string) (float64, float64, bool) {
	lv, ls, lu := n.left.eval(rows, dims)
	rv, rs, ru := n.right.eval(rows, dims)

	if lu && ru {
		// presence counts: union, not arithmetic
		return maxf(lv, rv), maxf(ls, rs), true
	}

	switch n.op {
	case OpPlus:
		return lv + rv, ls + rs, false
	case OpMinus:
		return lv - rv, ls - rs, false
	default: // OpTilda
		return lv - rv, ls + rs, false
	}
}

func matchDimensions(row domain.GoalAggregate, sel GoalSelector, dims []string) bool {
	for _, d := range dims {
		want := ""
		if sel.Dimensions != nil {
			want = sel.Dimensions[d]
		}
		if row.Dimension(d) != want {
			return false
		}
	}
	return true
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
