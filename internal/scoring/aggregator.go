// Package scoring aggregates policy rule contributions into a bounded
// risk score.
package scoring

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Scoring contract constants. The blend weighting is frozen: changing
// it changes every blended decision, so it is part of the policy
// contract, not a tuning knob.
const (
	// Baseline is the starting score before any rule contribution.
	Baseline = 0

	// RuleWeight and AuxWeight define the ML_PLUS_RULES blend:
	// final = round(RuleWeight*ruleScore + AuxWeight*round(aux*100)).
	RuleWeight = 0.6
	AuxWeight  = 0.4

	// MinScore and MaxScore bound the final score. Clamping is
	// saturating.
	MinScore = 0
	MaxScore = 100
)

// Evaluator produces fired rules for a request. Satisfied by
// *policy.Engine and *policy.Catalog.
type Evaluator interface {
	Evaluate(req *domain.AdvanceRequest) ([]domain.FiredRule, error)
}

// Aggregator combines rule contributions, and under ML_PLUS_RULES the
// auxiliary signal, into one clamped score. Stateless per call.
type Aggregator struct {
	evaluator Evaluator
}

// NewAggregator creates an aggregator over the given rule evaluator.
func NewAggregator(evaluator Evaluator) *Aggregator {
	return &Aggregator{evaluator: evaluator}
}

// Result holds one aggregation outcome.
type Result struct {
	// RiskScore is the final score, clamped to [MinScore, MaxScore].
	RiskScore int

	// Fired lists the triggered rules in ascending priority order.
	Fired []domain.FiredRule

	// AuxScore is set only under ML_PLUS_RULES.
	AuxScore *float64

	// RuleScore is the clamped rule-only score, before any blend.
	RuleScore int
}

// Aggregate evaluates the catalog against the request, applies each
// fired delta in priority order, blends in the auxiliary score when
// the mode asks for it, and clamps. Deterministic: identical input
// and mode always produce an identical result.
func (a *Aggregator) Aggregate(req *domain.AdvanceRequest, mode domain.Mode) (*Result, error) {
	fired, err := a.evaluator.Evaluate(req)
	if err != nil {
		return nil, err
	}

	ruleScore := Baseline
	for _, f := range fired {
		ruleScore += f.ScoreDelta
	}
	ruleScore = clamp(ruleScore)

	res := &Result{
		Fired:     fired,
		RuleScore: ruleScore,
		RiskScore: ruleScore,
	}

	switch mode {
	case domain.ModeRulesOnly:
		// Rule score stands alone; the auxiliary source is never
		// invoked.
	case domain.ModeMLPlusRules:
		aux := AuxiliaryScore(req)
		aux100 := math.Round(aux * 100)
		blended := math.Round(RuleWeight*float64(ruleScore) + AuxWeight*aux100)
		res.RiskScore = clamp(int(blended))
		res.AuxScore = &aux
	default:
		return nil, fmt.Errorf("unrecognized scoring mode %q", mode)
	}

	return res, nil
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
