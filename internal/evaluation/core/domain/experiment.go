package domain

const (
	AggTypeUnit   = "unit"
	AggTypeGlobal = "global"

	DefaultConfidenceLevel      = 0.95
	DefaultCheckConfidenceLevel = 0.999
)

// GoalAggregate holds first and second moment sufficient statistics for one
// goal slice of one experiment variant. Rows are produced by the data-access
// layer and are read-only during evaluation.
type GoalAggregate struct {
	ExpID      string
	VariantID  string
	UnitType   string
	AggType    string // "unit" or "global"
	Goal       string
	Dimensions map[string]string // empty or nil when the slice is not dimensional

	Count       float64
	SumSqrCount float64
	SumValue    float64
	SumSqrValue float64
	CountUnique float64
}

// Dimension returns the value of the named dimension, "" when absent.
func (g GoalAggregate) Dimension(name string) string {
	if g.Dimensions == nil {
		return ""
	}
	return g.Dimensions[name]
}

type Metric struct {
	ID          int64
	Name        string
	Nominator   string
	Denominator string

	// MinimumEffect is the relative effect of interest used for the required
	// sample size; non-positive means not set.
	MinimumEffect float64

	// ConfidenceLevel overrides the experiment-wide level when > 0.
	ConfidenceLevel float64
}

const (
	CheckTypeSRM      = "SRM"
	CheckTypeSumRatio = "SumRatio"
)

// Check is a data quality check evaluated alongside the metrics. The SRM
// check tests the denominator counts per variant, the SumRatio check reports
// the ratio of nominator to denominator counts summed across variants.
type Check struct {
	ID          int64
	Name        string
	Type        string
	Nominator   string // used by SumRatio only
	Denominator string

	ConfidenceLevel float64
}

type Experiment struct {
	ID               string
	ControlVariantID string
	UnitType         string
	Metrics          []Metric
	Checks           []Check

	// Variants restricts evaluation to the listed variant ids. When empty,
	// all variants present in the goal data are evaluated.
	Variants []string

	// DateFrom/DateTo declare the experiment period ("2006-01-02"). When both
	// are set, confidence levels are adjusted for sequential evaluation as of
	// DateFor (today when empty).
	DateFrom string
	DateTo   string
	DateFor  string

	ConfidenceLevel float64
}

type ExposureRow struct {
	ExperimentID string
	VariantID    string
	Exposures    float64
}

// MetricRow is one cell of the metric evaluation grid. Comparison fields
// (Diff through DegreesOfFreedom) are NaN on the control variant row.
type MetricRow struct {
	ExperimentID string
	MetricID     int64
	MetricName   string
	VariantID    string

	Count           float64
	Mean            float64
	Std             float64
	SumValue        float64
	ConfidenceLevel float64

	Diff               float64
	TestStat           float64
	PValue             float64
	ConfidenceInterval float64
	StandardError      float64
	DegreesOfFreedom   float64

	// MinimumEffect and RequiredSampleSize are NaN on control rows and when
	// the metric declares no minimum effect. SampleSize is NaN for metrics
	// whose denominator is a value() expression, since their count is not a
	// number of units.
	MinimumEffect      float64
	SampleSize         float64
	RequiredSampleSize float64
}

type CheckRow struct {
	ExperimentID string
	CheckID      int64
	CheckName    string
	VariableID   string
	Value        float64
}

// Evaluation is the three-table result of one experiment evaluation,
// constructed fresh per call and never mutated after return.
type Evaluation struct {
	Exposures []ExposureRow
	Metrics   []MetricRow
	Checks    []CheckRow
}
