package ranking

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kalambet/slotwise/internal/features"
)

type mockSource struct {
	currentFn func(ctx context.Context) (*Model, error)
}

func (m *mockSource) Current(ctx context.Context) (*Model, error) {
	return m.currentFn(ctx)
}

func slotID(v int64) *int64 { return &v }

func sampleRows() []features.Row {
	return []features.Row{
		{SlotID: slotID(1), SlotIsFree: 1, HourDiff: 999, DaysSinceLast: 999},
		{SlotID: slotID(2), SlotIsFree: 1, SameHour: 1, SameDOW: 1, HourDiff: 168, DaysSinceLast: 7, RecentCount: 3},
		{SlotID: slotID(3), SlotIsFree: 0, SameHour: 1, HourDiff: 2, DaysSinceLast: 0},
		{SlotID: slotID(4), SlotIsFree: 1, SameDOW: 1, HourDiff: 24, DaysSinceLast: 1, RecentCount: 1},
	}
}

func ruleOnly(r features.Row) float64 {
	return 0.3*RuleScore(r) + 0.1*DecayScore(r)
}

func assertSorted(t *testing.T, got []ScoredCandidate) {
	t.Helper()
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("not sorted at %d: %v > %v", i, got[i].Score, got[i-1].Score)
		}
	}
}

func TestScore_SortedDescending(t *testing.T) {
	s := NewScorer(nil, nil)
	got := s.Score(context.Background(), sampleRows())

	if len(got) != 4 {
		t.Fatalf("got %d candidates, want 4", len(got))
	}
	assertSorted(t, got)
	if *got[0].SlotID != 2 {
		t.Errorf("top candidate = %d, want 2", *got[0].SlotID)
	}
}

func TestScore_StableForTies(t *testing.T) {
	rows := make([]features.Row, 6)
	for i := range rows {
		rows[i] = features.Row{SlotID: slotID(int64(i + 1)), SlotIsFree: 1, HourDiff: 999, DaysSinceLast: 999}
	}
	// One better row in the middle must not disturb the order of the rest.
	rows[3].SameHour = 1

	got := NewScorer(nil, nil).Score(context.Background(), rows)
	want := []int64{4, 1, 2, 3, 5, 6}
	for i, id := range want {
		if *got[i].SlotID != id {
			t.Errorf("position %d: slot %d, want %d", i, *got[i].SlotID, id)
		}
	}
}

func TestScore_Empty(t *testing.T) {
	got := NewScorer(nil, nil).Score(context.Background(), nil)
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestScore_DegradesWithoutRaising(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.json")
	os.WriteFile(corrupt, []byte("{not json"), 0o644)

	tests := []struct {
		name   string
		source ModelSource
	}{
		{"nil source", nil},
		{"no model", &mockSource{currentFn: func(context.Context) (*Model, error) { return nil, nil }}},
		{"load error", &mockSource{currentFn: func(context.Context) (*Model, error) { return nil, errors.New("disk gone") }}},
		{"corrupt artifact", NewCachedSource(NewFileStore(corrupt), 0)},
		{"missing artifact", NewCachedSource(NewFileStore(filepath.Join(dir, "missing.json")), 0)},
		{"width mismatch", &mockSource{currentFn: func(context.Context) (*Model, error) {
			return &Model{Columns: features.Columns, Weights: []float64{1, 1}, Means: []float64{0, 0}, Scales: []float64{1, 1}}, nil
		}}},
		{"reordered columns", &mockSource{currentFn: func(context.Context) (*Model, error) {
			return &Model{
				Columns:   []string{"same_hour", "slot_is_free", "same_dow", "hour_diff", "days_since_last", "recent_count"},
				Weights:   []float64{0, 2, 0, 0, 0, 0},
				Intercept: -1,
				Means:     make([]float64, 6),
				Scales:    []float64{1, 1, 1, 1, 1, 1},
			}, nil
		}}},
		{"no columns", &mockSource{currentFn: func(context.Context) (*Model, error) {
			return &Model{
				Weights:   []float64{0, 2, 0, 0, 0, 0},
				Intercept: -1,
				Means:     make([]float64, 6),
				Scales:    []float64{1, 1, 1, 1, 1, 1},
			}, nil
		}}},
		{"non-finite", &mockSource{currentFn: func(context.Context) (*Model, error) {
			return &Model{
				Columns:   features.Columns,
				Weights:   []float64{1, 1, 1, 1, 1, 1},
				Intercept: math.NaN(),
				Means:     make([]float64, 6),
				Scales:    []float64{1, 1, 1, 1, 1, 1},
			}, nil
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := sampleRows()
			got := NewScorer(tt.source, nil).Score(context.Background(), rows)
			if len(got) != len(rows) {
				t.Fatalf("got %d candidates, want %d", len(got), len(rows))
			}
			assertSorted(t, got)
			for _, c := range got {
				if want := ruleOnly(c.Row); math.Abs(c.Score-want) > 1e-12 {
					t.Errorf("slot %d: score %v, want rule+decay only %v", *c.SlotID, c.Score, want)
				}
			}
		})
	}
}

func TestScore_BlendsModelProbability(t *testing.T) {
	m := &Model{
		Columns:   features.Columns,
		Weights:   []float64{0, 2, 0, 0, 0, 0},
		Intercept: -1,
		Means:     make([]float64, 6),
		Scales:    []float64{1, 1, 1, 1, 1, 1},
	}
	src := &mockSource{currentFn: func(context.Context) (*Model, error) { return m, nil }}

	rows := sampleRows()
	got := NewScorer(src, nil).Score(context.Background(), rows)

	for _, c := range got {
		p, _ := m.Predict(c.Vector())
		want := 0.6*p + ruleOnly(c.Row)
		if math.Abs(c.Score-want) > 1e-12 {
			t.Errorf("slot %d: score %v, want %v", *c.SlotID, c.Score, want)
		}
	}
}

func TestScore_WeekLaterCandidate(t *testing.T) {
	row := features.Row{SlotIsFree: 1, SameHour: 1, SameDOW: 1, HourDiff: 168, DaysSinceLast: 7, RecentCount: 1}
	got := NewScorer(nil, nil).Score(context.Background(), []features.Row{row})

	want := 0.3*(0.5+0.3+0.2+0.05) + 0.1*math.Exp(-7)
	if math.Abs(got[0].Score-want) > 1e-12 {
		t.Errorf("score = %v, want %v", got[0].Score, want)
	}
}

func TestScore_UsesCachedSourceAfterTraining(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "model.json"))
	src := NewCachedSourceWithClock(store, &mockClock{now: time.Now()}, time.Minute)
	s := NewScorer(src, nil)

	rows := sampleRows()
	before := s.Score(context.Background(), rows)
	for _, c := range before {
		if math.Abs(c.Score-ruleOnly(c.Row)) > 1e-12 {
			t.Fatalf("expected rule-only scores before training")
		}
	}

	tr := NewTrainer(store, nil)
	if _, err := tr.Train(context.Background(), separableExamples()); err != nil {
		t.Fatalf("Train: %v", err)
	}
	src.Invalidate()

	after := s.Score(context.Background(), rows)
	changed := false
	for _, c := range after {
		if math.Abs(c.Score-ruleOnly(c.Row)) > 1e-9 {
			changed = true
		}
	}
	if !changed {
		t.Error("expected learned term to contribute after retrain + invalidate")
	}
}
