package fiber

// MetricRequest defines one metric of the experiment as a
// nominator/denominator pair of goal expressions.
type MetricRequest struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Nominator       string   `json:"nominator" example:"count(session.unit.click)"`
	Denominator     string   `json:"denominator" example:"count(session.global.exposure)"`
	MinimumEffect   *float64 `json:"minimum_effect,omitempty"`
	ConfidenceLevel float64  `json:"confidence_level,omitempty"`
}

// CheckRequest defines one data quality check. Type is SRM (default) or
// SumRatio; nominator is required by SumRatio only.
type CheckRequest struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"type,omitempty" example:"SRM"`
	Nominator       string  `json:"nominator,omitempty"`
	Denominator     string  `json:"denominator" example:"count(session.global.exposure)"`
	ConfidenceLevel float64 `json:"confidence_level,omitempty"`
}

type EvaluateRequest struct {
	ID               string          `json:"id"`
	ControlVariantID string          `json:"control_variant_id"`
	UnitType         string          `json:"unit_type"`
	Variants         []string        `json:"variants,omitempty"`
	Metrics          []MetricRequest `json:"metrics"`
	Checks           []CheckRequest  `json:"checks,omitempty"`
	DateFrom         string          `json:"date_from,omitempty" example:"2026-08-01"`
	DateTo           string          `json:"date_to,omitempty" example:"2026-08-14"`
	DateFor          string          `json:"date_for,omitempty" example:"2026-08-07"`
	ConfidenceLevel  float64         `json:"confidence_level,omitempty"`
}

type ExposureRowResponse struct {
	ExperimentID string  `json:"experiment_id"`
	VariantID    string  `json:"variant_id"`
	Exposures    float64 `json:"exposures"`
}

// MetricRowResponse is one cell of the metric grid. Undefined statistics
// (control rows, zero denominators) are omitted rather than sent as NaN.
type MetricRowResponse struct {
	ExperimentID string `json:"experiment_id"`
	MetricID     int64  `json:"metric_id"`
	MetricName   string `json:"metric_name"`
	VariantID    string `json:"variant_id"`

	Count           float64  `json:"count"`
	Mean            *float64 `json:"mean,omitempty"`
	Std             *float64 `json:"std,omitempty"`
	SumValue        float64  `json:"sum_value"`
	ConfidenceLevel float64  `json:"confidence_level"`

	Diff               *float64 `json:"diff,omitempty"`
	TestStat           *float64 `json:"test_stat,omitempty"`
	PValue             *float64 `json:"p_value,omitempty"`
	ConfidenceInterval *float64 `json:"confidence_interval,omitempty"`
	StandardError      *float64 `json:"standard_error,omitempty"`
	DegreesOfFreedom   *float64 `json:"degrees_of_freedom,omitempty"`

	MinimumEffect      *float64 `json:"minimum_effect,omitempty"`
	SampleSize         *float64 `json:"sample_size,omitempty"`
	RequiredSampleSize *float64 `json:"required_sample_size,omitempty"`
}

type CheckRowResponse struct {
	ExperimentID string   `json:"experiment_id"`
	CheckID      int64    `json:"check_id"`
	CheckName    string   `json:"check_name"`
	VariableID   string   `json:"variable_id"`
	Value        *float64 `json:"value,omitempty"`
}

type EvaluateResponse struct {
	ID        string                `json:"id"`
	Exposures []ExposureRowResponse `json:"exposures"`
	Metrics   []MetricRowResponse   `json:"metrics"`
	Checks    []CheckRowResponse    `json:"checks"`
}

// SampleSizeRequest asks for the per-variant sample size required to detect
// minimum_effect. Omitting std switches to the binary-goal form with mean as
// the control conversion rate.
type SampleSizeRequest struct {
	Variants        int      `json:"n_variants"`
	MinimumEffect   float64  `json:"minimum_effect"`
	Mean            float64  `json:"mean"`
	Std             *float64 `json:"std,omitempty"`
	ConfidenceLevel float64  `json:"confidence_level,omitempty"`
	Power           float64  `json:"power,omitempty"`
}

type SampleSizeResponse struct {
	SampleSizePerVariant float64 `json:"sample_size_per_variant"`
}

type ErrorResponse struct {
	Error   string `json:"error" example:"invalid_experiment"`
	Message string `json:"message" example:"Experiment definition is invalid"`
}
