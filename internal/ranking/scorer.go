// Package ranking scores candidate slots and trains the model behind the
// learned part of the score.
package ranking

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/kalambet/slotwise/internal/features"
	"github.com/kalambet/slotwise/internal/metrics"
)

// Blend weights. score = learned*wLearned + rule*wRule + decay*wDecay.
const (
	wLearned = 0.6
	wRule    = 0.3
	wDecay   = 0.1

	ruleSameHour    = 0.5
	ruleSameDOW     = 0.3
	ruleFree        = 0.2
	ruleRecentCount = 0.05

	decayHours = 24.0
)

// ScoredCandidate is a feature row with its blended score.
type ScoredCandidate struct {
	features.Row
	Score float64
}

// Scorer blends the model probability with rule and recency terms.
type Scorer struct {
	models ModelSource
	logger *slog.Logger
}

// NewScorer returns a Scorer. models may be nil, in which case only the rule
// and decay terms contribute.
func NewScorer(models ModelSource, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{models: models, logger: logger.With("component", "scorer")}
}

// Score returns rows ordered by score descending. Rows with equal scores keep
// their input order. Model problems never surface as errors: the learned term
// is zero for every row instead.
func (s *Scorer) Score(ctx context.Context, rows []features.Row) []ScoredCandidate {
	out := make([]ScoredCandidate, len(rows))
	if len(rows) == 0 {
		return out
	}

	learned := s.learned(ctx, rows)
	for i, r := range rows {
		out[i] = ScoredCandidate{
			Row:   r,
			Score: wLearned*learned[i] + wRule*RuleScore(r) + wDecay*DecayScore(r),
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// RuleScore is the hand-authored part of the score.
func RuleScore(r features.Row) float64 {
	return ruleSameHour*float64(r.SameHour) +
		ruleSameDOW*float64(r.SameDOW) +
		ruleFree*float64(r.SlotIsFree) +
		ruleRecentCount*float64(r.RecentCount)
}

// DecayScore is exp(-hour_diff/24).
func DecayScore(r features.Row) float64 {
	return math.Exp(-r.HourDiff / decayHours)
}

func (s *Scorer) learned(ctx context.Context, rows []features.Row) []float64 {
	probs := make([]float64, len(rows))
	if s.models == nil {
		s.degraded("no_model", nil)
		return probs
	}

	m, err := s.models.Current(ctx)
	if err != nil {
		s.degraded("load_error", err)
		return probs
	}
	if m == nil {
		s.degraded("no_model", nil)
		return probs
	}
	if err := m.CheckColumns(features.Columns); err != nil {
		s.degraded("column_mismatch", err)
		return probs
	}

	for i, r := range rows {
		p, err := m.Predict(r.Vector())
		if err != nil {
			s.degraded("width_mismatch", err)
			return make([]float64, len(rows))
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			s.degraded("non_finite", nil)
			return make([]float64, len(rows))
		}
		probs[i] = p
	}
	return probs
}

func (s *Scorer) degraded(reason string, err error) {
	metrics.ScoringDegraded.WithLabelValues(reason).Inc()
	if err != nil {
		s.logger.Debug("learned score unavailable", "reason", reason, "error", err)
		return
	}
	s.logger.Debug("learned score unavailable", "reason", reason)
}
