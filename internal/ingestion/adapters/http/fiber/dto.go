package fiber

// StoreGoalAggregateRequest is one daily goal aggregate increment
// @Description Goal aggregate ingestion DTO
type StoreGoalAggregateRequest struct {
	Date       string            `json:"date" example:"2026-08-24"`
	ExpID      string            `json:"exp_id"`
	VariantID  string            `json:"variant_id"`
	UnitType   string            `json:"unit_type"`
	AggType    string            `json:"agg_type" example:"global"`
	Goal       string            `json:"goal" example:"exposure"`
	Dimensions map[string]string `json:"dimensions,omitempty"`

	Count       float64 `json:"count"`
	SumSqrCount float64 `json:"sum_sqr_count"`
	SumValue    float64 `json:"sum_value"`
	SumSqrValue float64 `json:"sum_sqr_value"`
	CountUnique float64 `json:"count_unique"`
}

type StoreGoalAggregateResponse struct {
	Status string `json:"status"`
}

type BulkStoreGoalAggregatesRequest struct {
	Aggregates []StoreGoalAggregateRequest `json:"aggregates"`
}

type BulkStoreGoalAggregatesResponse struct {
	Stored int `json:"stored"`
}

type ErrorResponse struct {
	Error   string `json:"error" example:"invalid_goal_aggregate"`
	Message string `json:"message" example:"Goal aggregate payload is invalid"`
}
