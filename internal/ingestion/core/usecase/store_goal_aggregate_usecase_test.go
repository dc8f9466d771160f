package usecase_test

import (
	"context"
	"errors"
	"testing"

	"experiment-stats-service/internal/ingestion/core/domain"
	"experiment-stats-service/internal/ingestion/core/usecase"
)

// ------------------------------------------------------------
// FAKES
// ------------------------------------------------------------

type fakeGoalAggregateRepo struct {
	UpsertFn func(ctx context.Context, g *domain.GoalAggregate) error
	stored   []*domain.GoalAggregate
}

func (f *fakeGoalAggregateRepo) UpsertGoalAggregate(ctx context.Context, g *domain.GoalAggregate) error {
	f.stored = append(f.stored, g)
	if f.UpsertFn != nil {
		return f.UpsertFn(ctx, g)
	}
	return nil
}

func validInput() usecase.StoreGoalAggregateInput {
	return usecase.StoreGoalAggregateInput{
		Date:      "2026-08-24",
		ExpID:     "test-exp",
		VariantID: "a",
		UnitType:  "session",
		AggType:   "global",
		Goal:      "exposure",

		Count:       21,
		SumSqrCount: 21,
	}
}

// ------------------------------------------------------------
// SINGLE STORE
// ------------------------------------------------------------

func TestStoreGoalAggregate_Success(t *testing.T) {
	repo := &fakeGoalAggregateRepo{}
	uc := usecase.NewStoreGoalAggregateUseCase(repo)

	if err := uc.Execute(context.Background(), validInput()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.stored) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(repo.stored))
	}
	g := repo.stored[0]
	if g.ExpID != "test-exp" || g.VariantID != "a" || g.Goal != "exposure" || g.Count != 21 {
		t.Fatalf("unexpected aggregate: %+v", g)
	}
	if g.Dimensions == nil {
		t.Fatalf("expected nil dimensions to be normalized to an empty map")
	}
}

func TestStoreGoalAggregate_RepoErrorPropagates(t *testing.T) {
	repoErr := errors.New("insert failed")
	repo := &fakeGoalAggregateRepo{
		UpsertFn: func(ctx context.Context, g *domain.GoalAggregate) error {
			return repoErr
		},
	}
	uc := usecase.NewStoreGoalAggregateUseCase(repo)

	if err := uc.Execute(context.Background(), validInput()); !errors.Is(err, repoErr) {
		t.Fatalf("expected repo error, got %v", err)
	}
}

// ------------------------------------------------------------
// VALIDATION
// ------------------------------------------------------------

func TestStoreGoalAggregate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *usecase.StoreGoalAggregateInput)
		wantErr error
	}{
		{"missing_exp_id", func(in *usecase.StoreGoalAggregateInput) { in.ExpID = "" }, usecase.ErrInvalidGoalAggregate},
		{"missing_variant", func(in *usecase.StoreGoalAggregateInput) { in.VariantID = "" }, usecase.ErrInvalidGoalAggregate},
		{"missing_goal", func(in *usecase.StoreGoalAggregateInput) { in.Goal = "" }, usecase.ErrInvalidGoalAggregate},
		{"bad_agg_type", func(in *usecase.StoreGoalAggregateInput) { in.AggType = "weekly" }, usecase.ErrInvalidGoalAggregate},
		{"negative_count", func(in *usecase.StoreGoalAggregateInput) { in.Count = -1 }, usecase.ErrInvalidGoalAggregate},
		{"negative_count_unique", func(in *usecase.StoreGoalAggregateInput) { in.CountUnique = -1 }, usecase.ErrInvalidGoalAggregate},
		{"bad_date", func(in *usecase.StoreGoalAggregateInput) { in.Date = "24.08.2026" }, usecase.ErrInvalidGoalAggregate},
		{"future_date", func(in *usecase.StoreGoalAggregateInput) { in.Date = "2100-01-01" }, usecase.ErrFutureDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeGoalAggregateRepo{}
			uc := usecase.NewStoreGoalAggregateUseCase(repo)

			in := validInput()
			tt.mutate(&in)

			if err := uc.Execute(context.Background(), in); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(repo.stored) != 0 {
				t.Fatalf("invalid input must not reach the repository")
			}
		})
	}
}

func TestStoreGoalAggregate_NegativeSumValueAllowed(t *testing.T) {
	repo := &fakeGoalAggregateRepo{}
	uc := usecase.NewStoreGoalAggregateUseCase(repo)

	in := validInput()
	in.SumValue = -42.5

	if err := uc.Execute(context.Background(), in); err != nil {
		t.Fatalf("negative goal values are legal, got %v", err)
	}
}

// ------------------------------------------------------------
// BULK STORE
// ------------------------------------------------------------

func TestBulkStoreGoalAggregates_Success(t *testing.T) {
	repo := &fakeGoalAggregateRepo{}
	uc := usecase.NewStoreGoalAggregateUseCase(repo)

	second := validInput()
	second.VariantID = "b"

	res, err := uc.BulkStoreGoalAggregates(context.Background(), usecase.BulkStoreGoalAggregatesInput{
		Aggregates: []usecase.StoreGoalAggregateInput{validInput(), second},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stored != 2 {
		t.Fatalf("expected 2 stored, got %d", res.Stored)
	}
	if len(repo.stored) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(repo.stored))
	}
}

func TestBulkStoreGoalAggregates_ValidatesBeforeStoring(t *testing.T) {
	repo := &fakeGoalAggregateRepo{}
	uc := usecase.NewStoreGoalAggregateUseCase(repo)

	bad := validInput()
	bad.AggType = "weekly"

	res, err := uc.BulkStoreGoalAggregates(context.Background(), usecase.BulkStoreGoalAggregatesInput{
		Aggregates: []usecase.StoreGoalAggregateInput{validInput(), bad},
	})
	if !errors.Is(err, usecase.ErrInvalidGoalAggregate) {
		t.Fatalf("expected ErrInvalidGoalAggregate, got %v", err)
	}
	if res.Stored != 0 || len(repo.stored) != 0 {
		t.Fatalf("a bad batch must not be partially stored, stored=%d", len(repo.stored))
	}
}
