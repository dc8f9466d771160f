package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"experiment-stats-service/internal/evaluation/core/domain"
	"experiment-stats-service/internal/evaluation/core/expr"
	"experiment-stats-service/internal/evaluation/core/ports"
	"experiment-stats-service/internal/evaluation/core/stats"
)

var (
	ErrInvalidExperiment     = errors.New("invalid experiment definition")
	ErrDuplicateMetricID     = errors.New("duplicate metric id in experiment")
	ErrMissingControlVariant = errors.New("control variant not present in evaluated variants")
)

const dateLayout = "2006-01-02"

type EvaluateExperimentUseCase struct {
	goals ports.GoalsReaderPort
}

func NewEvaluateExperimentUseCase(goals ports.GoalsReaderPort) *EvaluateExperimentUseCase {
	return &EvaluateExperimentUseCase{goals: goals}
}

// Execute compiles the experiment, fetches the goal aggregates it references
// and evaluates it.
func (uc *EvaluateExperimentUseCase) Execute(ctx context.Context, exp domain.Experiment) (*domain.Evaluation, error) {
	compiled, err := compileExperiment(&exp)
	if err != nil {
		return nil, err
	}

	rows, err := uc.goals.GetGoalAggregates(ctx, ports.GoalsFilter{
		ExperimentID: exp.ID,
		UnitType:     exp.UnitType,
		Goals:        compiled.goalNames(),
		DateFrom:     exp.DateFrom,
		DateTo:       exp.DateTo,
	})
	if err != nil {
		return nil, err
	}

	return compiled.evaluate(rows)
}

// Evaluate runs one experiment against an already loaded goal aggregate set.
// It is a pure function of its inputs and safe to call concurrently.
func Evaluate(exp domain.Experiment, rows []domain.GoalAggregate) (*domain.Evaluation, error) {
	compiled, err := compileExperiment(&exp)
	if err != nil {
		return nil, err
	}
	return compiled.evaluate(rows)
}

type compiledMetric struct {
	metric          domain.Metric
	nominator       *expr.Expression
	denominator     *expr.Expression
	dims            []string
	confidenceLevel float64
}

type compiledCheck struct {
	check           domain.Check
	nominator       *expr.Expression // SumRatio only
	denominator     *expr.Expression
	dims            []string
	confidenceLevel float64
}

type compiledExperiment struct {
	exp      *domain.Experiment
	metrics  []compiledMetric
	checks   []compiledCheck
	exposure *expr.Expression
}

// compileExperiment validates the definition, fills in defaulted confidence
// levels (sequentially adjusted when an experiment period is declared) and
// parses every expression once.
func compileExperiment(exp *domain.Experiment) (*compiledExperiment, error) {
	if exp.ID == "" || exp.ControlVariantID == "" || exp.UnitType == "" {
		return nil, fmt.Errorf("%w: id, control variant and unit type are required", ErrInvalidExperiment)
	}

	seen := make(map[int64]bool, len(exp.Metrics))
	for _, m := range exp.Metrics {
		if seen[m.ID] {
			return nil, fmt.Errorf("%w: metric id %d", ErrDuplicateMetricID, m.ID)
		}
		seen[m.ID] = true
	}

	expLevel := exp.ConfidenceLevel
	if expLevel == 0 {
		expLevel = domain.DefaultConfidenceLevel
	}

	actualDay, totalLength, err := experimentDays(exp)
	if err != nil {
		return nil, err
	}

	c := &compiledExperiment{exp: exp}

	for _, m := range exp.Metrics {
		nom, err := expr.Parse(m.Nominator)
		if err != nil {
			return nil, fmt.Errorf("metric %q nominator: %w", m.Name, err)
		}
		den, err := expr.Parse(m.Denominator)
		if err != nil {
			return nil, fmt.Errorf("metric %q denominator: %w", m.Name, err)
		}

		level := m.ConfidenceLevel
		if level == 0 {
			level = expLevel
		}
		if totalLength > 0 {
			level, err = stats.SequentialConfidenceLevel(level, actualDay, totalLength)
			if err != nil {
				return nil, err
			}
		}

		c.metrics = append(c.metrics, compiledMetric{
			metric:          m,
			nominator:       nom,
			denominator:     den,
			dims:            unionDims(nom, den),
			confidenceLevel: level,
		})
	}

	for _, ch := range exp.Checks {
		den, err := expr.Parse(ch.Denominator)
		if err != nil {
			return nil, fmt.Errorf("check %q denominator: %w", ch.Name, err)
		}
		cc := compiledCheck{check: ch, denominator: den, confidenceLevel: ch.ConfidenceLevel}
		if cc.confidenceLevel == 0 {
			cc.confidenceLevel = domain.DefaultCheckConfidenceLevel
		}
		if ch.Type == domain.CheckTypeSumRatio {
			nom, err := expr.Parse(ch.Nominator)
			if err != nil {
				return nil, fmt.Errorf("check %q nominator: %w", ch.Name, err)
			}
			cc.nominator = nom
		}
		cc.dims = unionDims(cc.nominator, cc.denominator)
		c.checks = append(c.checks, cc)
	}

	exposure, err := expr.Parse(fmt.Sprintf("count(%s.global.exposure)", exp.UnitType))
	if err != nil {
		return nil, fmt.Errorf("%w: unit type %q", ErrInvalidExperiment, exp.UnitType)
	}
	c.exposure = exposure

	return c, nil
}

// experimentDays derives the sequential-testing day counts from the declared
// experiment period. Evaluations after the declared end clamp to the full
// length so they use the nominal confidence level.
func experimentDays(exp *domain.Experiment) (actualDay, totalLength int, err error) {
	if exp.DateFrom == "" || exp.DateTo == "" {
		return 0, 0, nil
	}
	from, err := time.Parse(dateLayout, exp.DateFrom)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: date_from: %v", ErrInvalidExperiment, err)
	}
	to, err := time.Parse(dateLayout, exp.DateTo)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: date_to: %v", ErrInvalidExperiment, err)
	}
	forStr := exp.DateFor
	if forStr == "" {
		forStr = time.Now().UTC().Format(dateLayout)
	}
	dateFor, err := time.Parse(dateLayout, forStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: date_for: %v", ErrInvalidExperiment, err)
	}

	totalLength = int(to.Sub(from).Hours()/24) + 1
	actualDay = int(dateFor.Sub(from).Hours()/24) + 1
	if actualDay > totalLength {
		actualDay = totalLength
	}
	return actualDay, totalLength, nil
}

func unionDims(exprs ...*expr.Expression) []string {
	seen := map[string]bool{}
	var dims []string
	for _, e := range exprs {
		if e == nil {
			continue
		}
		for _, d := range e.DimensionNames() {
			if !seen[d] {
				seen[d] = true
				dims = append(dims, d)
			}
		}
	}
	sort.Strings(dims)
	return dims
}

func (c *compiledExperiment) goalNames() []string {
	seen := map[string]bool{}
	var names []string
	add := func(e *expr.Expression) {
		if e == nil {
			return
		}
		for _, g := range e.Goals() {
			if !seen[g.Goal] {
				seen[g.Goal] = true
				names = append(names, g.Goal)
			}
		}
	}
	for _, m := range c.metrics {
		add(m.nominator)
		add(m.denominator)
	}
	for _, ch := range c.checks {
		add(ch.nominator)
		add(ch.denominator)
	}
	add(c.exposure)
	sort.Strings(names)
	return names
}

func (c *compiledExperiment) evaluate(rows []domain.GoalAggregate) (*domain.Evaluation, error) {
	exp := c.exp

	variants := exp.Variants
	if len(variants) == 0 {
		seen := map[string]bool{}
		for _, r := range rows {
			if !seen[r.VariantID] {
				seen[r.VariantID] = true
				variants = append(variants, r.VariantID)
			}
		}
	}
	variants = append([]string(nil), variants...)
	sort.Strings(variants)

	controlIndex := -1
	for i, v := range variants {
		if v == exp.ControlVariantID {
			controlIndex = i
		}
	}
	if controlIndex < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingControlVariant, exp.ControlVariantID)
	}

	byVariant := make(map[string][]domain.GoalAggregate, len(variants))
	for _, r := range rows {
		byVariant[r.VariantID] = append(byVariant[r.VariantID], r)
	}

	ev := &domain.Evaluation{}
	ev.Metrics = c.evaluateMetrics(variants, controlIndex, byVariant)
	ev.Exposures = c.evaluateExposures(variants, byVariant)
	ev.Checks = c.evaluateChecks(variants, byVariant)
	return ev, nil
}

// evaluateMetrics resolves every metric side per variant into one flat grid
// and runs the batched t-test over it, with the Holm-Bonferroni correction
// when the experiment has more than one treatment variant.
func (c *compiledExperiment) evaluateMetrics(variants []string, controlIndex int, byVariant map[string][]domain.GoalAggregate) []domain.MetricRow {
	if len(c.metrics) == 0 {
		return nil
	}

	grid := stats.Grid{
		Metrics:      len(c.metrics),
		Variants:     len(variants),
		ControlIndex: controlIndex,

		Count:           make([]float64, len(c.metrics)*len(variants)),
		SumValue:        make([]float64, len(c.metrics)*len(variants)),
		SumSqrValue:     make([]float64, len(c.metrics)*len(variants)),
		ConfidenceLevel: make([]float64, len(c.metrics)),
	}

	for m, cm := range c.metrics {
		grid.ConfidenceLevel[m] = cm.confidenceLevel
		for v, variant := range variants {
			i := m*len(variants) + v
			vRows := byVariant[variant]
			nom := cm.nominator.Evaluate(vRows, cm.dims)
			den := cm.denominator.Evaluate(vRows, cm.dims)
			grid.Count[i] = den.Value
			grid.SumValue[i] = nom.Value
			grid.SumSqrValue[i] = nom.Sqr
		}
	}

	cells := stats.WelchTTest(grid)
	if len(variants) > 2 {
		stats.ApplyHolmCorrection(grid, cells)
	}

	out := make([]domain.MetricRow, 0, len(cells))
	for m, cm := range c.metrics {
		control := cells[m*len(variants)+controlIndex]
		for v, variant := range variants {
			cell := cells[m*len(variants)+v]
			minimumEffect, sampleSize, requiredSampleSize := requiredSampleSizeColumns(
				cm, cell, control, v == controlIndex, len(variants))
			out = append(out, domain.MetricRow{
				ExperimentID: c.exp.ID,
				MetricID:     cm.metric.ID,
				MetricName:   cm.metric.Name,
				VariantID:    variant,

				Count:           cell.Count,
				Mean:            cell.Mean,
				Std:             cell.Std,
				SumValue:        cell.SumValue,
				ConfidenceLevel: cell.ConfidenceLevel,

				Diff:               cell.Diff,
				TestStat:           cell.TestStat,
				PValue:             cell.PValue,
				ConfidenceInterval: cell.ConfidenceInterval,
				StandardError:      cell.StandardError,
				DegreesOfFreedom:   cell.DegreesOfFreedom,

				MinimumEffect:      minimumEffect,
				SampleSize:         sampleSize,
				RequiredSampleSize: requiredSampleSize,
			})
		}
	}
	return out
}

// requiredSampleSizeColumns enriches one metric cell with the sample size it
// has and the sample size it would need to detect the metric's minimum effect
// on the control mean at the row's confidence level and default power.
func requiredSampleSizeColumns(cm compiledMetric, cell, control stats.CellResult, isControl bool, variants int) (minimumEffect, sampleSize, requiredSampleSize float64) {
	sampleSize = cell.Count
	if strings.HasPrefix(strings.TrimSpace(cm.metric.Denominator), "value(") {
		// a value() denominator is a sum, not a number of units
		sampleSize = math.NaN()
	}

	if isControl || cm.metric.MinimumEffect <= 0 {
		return math.NaN(), sampleSize, math.NaN()
	}

	required, err := stats.RequiredSampleSizePerVariant(stats.SampleSizeInput{
		Variants:        variants,
		MinimumEffect:   cm.metric.MinimumEffect,
		Mean:            control.Mean,
		Std:             control.Std,
		Std2:            cell.Std,
		ConfidenceLevel: cell.ConfidenceLevel,
		Power:           stats.DefaultPower,
	})
	if err != nil {
		required = math.NaN()
	}
	return cm.metric.MinimumEffect, sampleSize, required
}

func (c *compiledExperiment) evaluateExposures(variants []string, byVariant map[string][]domain.GoalAggregate) []domain.ExposureRow {
	out := make([]domain.ExposureRow, 0, len(variants))
	for _, variant := range variants {
		agg := c.exposure.Evaluate(byVariant[variant], nil)
		out = append(out, domain.ExposureRow{
			ExperimentID: c.exp.ID,
			VariantID:    variant,
			Exposures:    agg.Value,
		})
	}
	return out
}

// evaluateChecks runs the data quality checks. Checks are advisory: a check
// that cannot be computed is logged and skipped, it never fails the
// evaluation.
func (c *compiledExperiment) evaluateChecks(variants []string, byVariant map[string][]domain.GoalAggregate) []domain.CheckRow {
	var out []domain.CheckRow
	for _, cc := range c.checks {
		rows, err := c.evaluateCheck(cc, variants, byVariant)
		if err != nil {
			log.Printf("experiment %s: check %q skipped: %v", c.exp.ID, cc.check.Name, err)
			continue
		}
		out = append(out, rows...)
	}
	return out
}

func (c *compiledExperiment) evaluateCheck(cc compiledCheck, variants []string, byVariant map[string][]domain.GoalAggregate) ([]domain.CheckRow, error) {
	row := func(variable string, value float64) domain.CheckRow {
		return domain.CheckRow{
			ExperimentID: c.exp.ID,
			CheckID:      cc.check.ID,
			CheckName:    cc.check.Name,
			VariableID:   variable,
			Value:        value,
		}
	}

	switch cc.check.Type {
	case domain.CheckTypeSRM, "":
		observed := make([]float64, len(variants))
		for i, variant := range variants {
			observed[i] = cc.denominator.Evaluate(byVariant[variant], cc.dims).Value
		}
		stat, pValue, err := stats.ChiSquare(observed, nil)
		if err != nil {
			return nil, err
		}
		return []domain.CheckRow{
			row("p_value", pValue),
			row("test_stat", stat),
			row("confidence_level", cc.confidenceLevel),
		}, nil

	case domain.CheckTypeSumRatio:
		var nomSum, denSum float64
		for _, variant := range variants {
			nomSum += cc.nominator.Evaluate(byVariant[variant], cc.dims).Value
			denSum += cc.denominator.Evaluate(byVariant[variant], cc.dims).Value
		}
		ratio := nomSum / denSum
		if math.IsInf(ratio, 0) {
			ratio = math.NaN()
		}
		return []domain.CheckRow{row("sum_ratio", ratio)}, nil

	default:
		return nil, fmt.Errorf("unknown check type %q", cc.check.Type)
	}
}
