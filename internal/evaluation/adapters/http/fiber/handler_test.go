package fiber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"experiment-stats-service/internal/evaluation/core/domain"
	"experiment-stats-service/internal/evaluation/core/expr"
	"experiment-stats-service/internal/evaluation/core/stats"
	"experiment-stats-service/internal/evaluation/core/usecase"

	"github.com/gofiber/fiber/v2"
)

type fakeEvaluateUseCase struct {
	ExecuteFunc func(ctx context.Context, exp domain.Experiment) (*domain.Evaluation, error)
	LastInput   domain.Experiment
}

func (f *fakeEvaluateUseCase) Execute(ctx context.Context, exp domain.Experiment) (*domain.Evaluation, error) {
	f.LastInput = exp
	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, exp)
	}
	return &domain.Evaluation{}, nil
}

type fakeSampleSizeUseCase struct {
	ExecuteFunc func(ctx context.Context, in usecase.CalculateSampleSizeInput) (float64, error)
	LastInput   usecase.CalculateSampleSizeInput
}

func (f *fakeSampleSizeUseCase) Execute(ctx context.Context, in usecase.CalculateSampleSizeInput) (float64, error) {
	f.LastInput = in
	if f.ExecuteFunc != nil {
		return f.ExecuteFunc(ctx, in)
	}
	return 0, nil
}

// helper: create fiber app and routes
func setupTestApp(evaluateUC EvaluateExperimentUseCase, sampleSizeUC CalculateSampleSizeUseCase) *fiber.App {
	app := fiber.New()
	h := NewEvaluationHandler(evaluateUC, sampleSizeUC)

	app.Post("/evaluate", h.Evaluate)
	app.Post("/sample-size-calculation", h.CalculateSampleSize)

	return app
}

// helper: send request
func doRequest(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		buf = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func evaluateRequest() EvaluateRequest {
	return EvaluateRequest{
		ID:               "test-exp",
		ControlVariantID: "a",
		UnitType:         "session",
		Metrics: []MetricRequest{{
			ID:          1,
			Name:        "Click-through Rate",
			Nominator:   "count(session.unit.click)",
			Denominator: "count(session.global.exposure)",
		}},
	}
}

// ------------------------------------------------------------
// EVALUATE
// ------------------------------------------------------------

func TestEvaluate_Success(t *testing.T) {
	fakeUC := &fakeEvaluateUseCase{
		ExecuteFunc: func(ctx context.Context, exp domain.Experiment) (*domain.Evaluation, error) {
			return &domain.Evaluation{
				Exposures: []domain.ExposureRow{
					{ExperimentID: "test-exp", VariantID: "a", Exposures: 21},
					{ExperimentID: "test-exp", VariantID: "b", Exposures: 26},
				},
				Metrics: []domain.MetricRow{
					{
						ExperimentID: "test-exp", MetricID: 1, MetricName: "Click-through Rate", VariantID: "a",
						Count: 21, Mean: 0.238095, Std: 0.436436, SumValue: 5, ConfidenceLevel: 0.95,
						Diff: math.NaN(), TestStat: math.NaN(), PValue: math.NaN(),
						ConfidenceInterval: math.NaN(), StandardError: math.NaN(), DegreesOfFreedom: math.NaN(),
						MinimumEffect: math.NaN(), SampleSize: 21, RequiredSampleSize: math.NaN(),
					},
					{
						ExperimentID: "test-exp", MetricID: 1, MetricName: "Click-through Rate", VariantID: "b",
						Count: 26, Mean: 0.269231, Std: 0.452344, SumValue: 7, ConfidenceLevel: 0.95,
						Diff: 0.130769, TestStat: 0.223152, PValue: 0.82446,
						ConfidenceInterval: 1.181558, StandardError: 0.586008, DegreesOfFreedom: 43.5401,
						MinimumEffect: 0.10, SampleSize: 26, RequiredSampleSize: 5471,
					},
				},
			}, nil
		},
	}

	app := setupTestApp(fakeUC, &fakeSampleSizeUseCase{})
	resp, body := doRequest(t, app, http.MethodPost, "/evaluate", evaluateRequest())

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d (body: %s)", http.StatusOK, resp.StatusCode, string(body))
	}

	var respJSON EvaluateResponse
	if err := json.Unmarshal(body, &respJSON); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}

	if respJSON.ID != "test-exp" || len(respJSON.Exposures) != 2 || len(respJSON.Metrics) != 2 {
		t.Fatalf("unexpected response shape: %+v", respJSON)
	}

	control := respJSON.Metrics[0]
	if control.PValue != nil || control.Diff != nil {
		t.Fatalf("control row must omit undefined statistics: %+v", control)
	}
	if control.Mean == nil || math.Abs(*control.Mean-0.238095) > 1e-6 {
		t.Fatalf("unexpected control mean: %v", control.Mean)
	}

	treatment := respJSON.Metrics[1]
	if treatment.PValue == nil || math.Abs(*treatment.PValue-0.82446) > 1e-6 {
		t.Fatalf("unexpected treatment p-value: %v", treatment.PValue)
	}
	if treatment.RequiredSampleSize == nil || *treatment.RequiredSampleSize != 5471 {
		t.Fatalf("unexpected required sample size: %v", treatment.RequiredSampleSize)
	}
	if control.RequiredSampleSize != nil || control.MinimumEffect != nil {
		t.Fatalf("control row must omit the required sample size: %+v", control)
	}

	if fakeUC.LastInput.ID != "test-exp" || fakeUC.LastInput.ControlVariantID != "a" {
		t.Fatalf("unexpected usecase input: %+v", fakeUC.LastInput)
	}
	if fakeUC.LastInput.Metrics[0].MinimumEffect != -1 {
		t.Fatalf("omitted minimum effect must map to -1, got %v", fakeUC.LastInput.Metrics[0].MinimumEffect)
	}
}

func TestEvaluate_InvalidJSON(t *testing.T) {
	app := setupTestApp(&fakeEvaluateUseCase{}, &fakeSampleSizeUseCase{})

	req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestEvaluate_DefinitionErrorsMapTo400(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid_experiment", usecase.ErrInvalidExperiment},
		{"duplicate_metric_id", usecase.ErrDuplicateMetricID},
		{"missing_control_variant", usecase.ErrMissingControlVariant},
		{"elapsed_fraction", stats.ErrElapsedFraction},
		{"parse_error", &expr.ParseError{Offset: 3, Expected: "identifier"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeUC := &fakeEvaluateUseCase{
				ExecuteFunc: func(ctx context.Context, exp domain.Experiment) (*domain.Evaluation, error) {
					return nil, tt.err
				},
			}
			app := setupTestApp(fakeUC, &fakeSampleSizeUseCase{})

			resp, body := doRequest(t, app, http.MethodPost, "/evaluate", evaluateRequest())
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d (body: %s)", http.StatusBadRequest, resp.StatusCode, string(body))
			}

			var respJSON ErrorResponse
			if err := json.Unmarshal(body, &respJSON); err != nil {
				t.Fatalf("invalid json response: %v", err)
			}
			if respJSON.Error != "invalid_experiment" {
				t.Fatalf("expected invalid_experiment, got %s", respJSON.Error)
			}
		})
	}
}

func TestEvaluate_UnexpectedErrorMapsTo500(t *testing.T) {
	fakeUC := &fakeEvaluateUseCase{
		ExecuteFunc: func(ctx context.Context, exp domain.Experiment) (*domain.Evaluation, error) {
			return nil, errors.New("connection refused")
		},
	}
	app := setupTestApp(fakeUC, &fakeSampleSizeUseCase{})

	resp, body := doRequest(t, app, http.MethodPost, "/evaluate", evaluateRequest())
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d (body: %s)", http.StatusInternalServerError, resp.StatusCode, string(body))
	}

	var respJSON ErrorResponse
	if err := json.Unmarshal(body, &respJSON); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if respJSON.Error != "internal_server_error" {
		t.Fatalf("expected internal_server_error, got %s", respJSON.Error)
	}
}

// ------------------------------------------------------------
// SAMPLE SIZE
// ------------------------------------------------------------

func TestCalculateSampleSize_Success(t *testing.T) {
	fakeUC := &fakeSampleSizeUseCase{
		ExecuteFunc: func(ctx context.Context, in usecase.CalculateSampleSizeInput) (float64, error) {
			return 9490, nil
		},
	}
	app := setupTestApp(&fakeEvaluateUseCase{}, fakeUC)

	resp, body := doRequest(t, app, http.MethodPost, "/sample-size-calculation", SampleSizeRequest{
		Variants:      2,
		MinimumEffect: 0.05,
		Mean:          0.4,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d (body: %s)", http.StatusOK, resp.StatusCode, string(body))
	}

	var respJSON SampleSizeResponse
	if err := json.Unmarshal(body, &respJSON); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if respJSON.SampleSizePerVariant != 9490 {
		t.Fatalf("expected 9490, got %v", respJSON.SampleSizePerVariant)
	}

	if fakeUC.LastInput.Variants != 2 || fakeUC.LastInput.Std != nil {
		t.Fatalf("unexpected usecase input: %+v", fakeUC.LastInput)
	}
}

func TestCalculateSampleSize_InvalidQuery(t *testing.T) {
	fakeUC := &fakeSampleSizeUseCase{
		ExecuteFunc: func(ctx context.Context, in usecase.CalculateSampleSizeInput) (float64, error) {
			return 0, usecase.ErrInvalidSampleSizeQuery
		},
	}
	app := setupTestApp(&fakeEvaluateUseCase{}, fakeUC)

	resp, body := doRequest(t, app, http.MethodPost, "/sample-size-calculation", SampleSizeRequest{Variants: 1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d (body: %s)", http.StatusBadRequest, resp.StatusCode, string(body))
	}

	var respJSON ErrorResponse
	if err := json.Unmarshal(body, &respJSON); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if respJSON.Error != "invalid_sample_size_query" {
		t.Fatalf("expected invalid_sample_size_query, got %s", respJSON.Error)
	}
}
