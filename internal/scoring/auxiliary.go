package scoring

import "github.com/opensource-finance/kestrel/internal/domain"

// Auxiliary score bounds. The placeholder never reports certainty in
// either direction.
const (
	auxFloor   = 0.01
	auxCeiling = 0.95
)

// AuxiliaryScore is a deterministic stand-in for a future trained
// model. It returns a probability-like adverse-outcome signal in
// [0.01, 0.95] computed from the request alone: no randomness, no
// wall clock, no I/O, so tests can assert exact values.
func AuxiliaryScore(req *domain.AdvanceRequest) float64 {
	prob := 0.15

	if req.Amount >= 2000 {
		prob += 0.20
	}
	if req.TenureMonths < 3 {
		prob += 0.25
	}
	if req.RepaymentHistoryScore < 580 {
		prob += 0.25
	}
	if req.PayFrequency == domain.PayWeekly {
		prob += 0.10
	}

	if prob < auxFloor {
		return auxFloor
	}
	if prob > auxCeiling {
		return auxCeiling
	}
	return prob
}
