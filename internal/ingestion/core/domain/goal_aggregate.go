package domain

// GoalAggregate is one daily increment of sufficient statistics for a goal
// slice, as delivered by upstream aggregation jobs. Increments for the same
// slice and day accumulate in the store.
type GoalAggregate struct {
	Date       string // "2006-01-02"
	ExpID      string
	VariantID  string
	UnitType   string
	AggType    string // "unit" or "global"
	Goal       string
	Dimensions map[string]string

	Count       float64
	SumSqrCount float64
	SumValue    float64
	SumSqrValue float64
	CountUnique float64
}
