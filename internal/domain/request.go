// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"math"
	"strings"
)

// PayFrequency is the closed set of supported pay cycles.
type PayFrequency string

const (
	PayWeekly   PayFrequency = "weekly"
	PayBiweekly PayFrequency = "biweekly"
	PayMonthly  PayFrequency = "monthly"
)

// Mode selects the scoring strategy for a decision.
type Mode string

const (
	// ModeRulesOnly scores from the policy catalog alone.
	ModeRulesOnly Mode = "RULES_ONLY"

	// ModeMLPlusRules blends the auxiliary score into the rule score.
	ModeMLPlusRules Mode = "ML_PLUS_RULES"
)

// ParseMode converts a wire-format mode string to a Mode.
// Unrecognized values are a validation failure at the boundary,
// never a silent fallthrough inside the engine.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeRulesOnly:
		return ModeRulesOnly, true
	case ModeMLPlusRules:
		return ModeMLPlusRules, true
	default:
		return "", false
	}
}

// Declared field ranges for AdvanceRequest.
const (
	MinEmployerLen  = 2
	MaxTenureMonths = 480
	MinHistoryScore = 300
	MaxHistoryScore = 850
)

// AdvanceRequest is a salary-advance application to be scored.
// The engine treats it as immutable input; all fields must pass
// Validate before scoring.
type AdvanceRequest struct {
	Amount                float64      `json:"amount"`
	Employer              string       `json:"employer"`
	PayFrequency          PayFrequency `json:"pay_frequency"`
	TenureMonths          int          `json:"tenure_months"`
	RepaymentHistoryScore int          `json:"repayment_history_score"`
}

// Validate checks every declared field range and collects all
// violations into a single ValidationError. Out-of-range values are
// rejected, never clamped.
func (r *AdvanceRequest) Validate() error {
	var verr ValidationError

	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		verr.Add("amount", "must be a finite number")
	} else if r.Amount < 0 {
		verr.Add("amount", "must be non-negative")
	}

	if len(strings.TrimSpace(r.Employer)) < MinEmployerLen {
		verr.Add("employer", "must be at least 2 characters")
	}

	switch r.PayFrequency {
	case PayWeekly, PayBiweekly, PayMonthly:
	default:
		verr.Add("pay_frequency", "must be one of weekly, biweekly, monthly")
	}

	if r.TenureMonths < 0 || r.TenureMonths > MaxTenureMonths {
		verr.Add("tenure_months", "must be between 0 and 480")
	}

	if r.RepaymentHistoryScore < MinHistoryScore || r.RepaymentHistoryScore > MaxHistoryScore {
		verr.Add("repayment_history_score", "must be between 300 and 850")
	}

	if len(verr.Violations) > 0 {
		return &verr
	}
	return nil
}

// NormalizePayFrequency canonicalizes free-form pay-frequency input.
// Belongs to the boundary layer; the engine only sees canonical values.
func NormalizePayFrequency(s string) PayFrequency {
	return PayFrequency(strings.ToLower(strings.TrimSpace(s)))
}
