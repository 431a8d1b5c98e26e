package domain

// Band is a discrete risk category derived from the numeric score.
type Band string

const (
	BandGreen Band = "Green"
	BandAmber Band = "Amber"
	BandRed   Band = "Red"
)

// Action is the recommended handling for a scored request.
type Action string

const (
	ActionApprove Action = "Approve"
	ActionReview  Action = "Request Documents / Manual Review"
	ActionDecline Action = "Decline / Escalate"
)

// DefaultCitation is returned when no policy rule fires. This is a
// defined outcome, not an error.
const DefaultCitation = "PX-ADV-00: no policy clause triggered"

// DecisionRecord is the immutable result of scoring one advance
// request. Created once by the assembler and never mutated.
type DecisionRecord struct {
	RequestID string `json:"request_id"`
	TenantID  string `json:"tenantId,omitempty"`
	Mode      Mode   `json:"mode"`

	// RiskScore is the final blended, clamped score in [0,100].
	RiskScore int `json:"risk_score"`

	RiskBand          Band   `json:"risk_band"`
	RecommendedAction Action `json:"recommended_action"`

	// TopDrivers holds the rendered driver text of every fired rule,
	// highest-priority (lowest value) first.
	TopDrivers []string `json:"top_drivers"`

	// PolicyCitation is the policy_id of the highest-priority fired
	// rule, or DefaultCitation when nothing fired.
	PolicyCitation string `json:"policy_citation"`

	// MLScore is present only under ML_PLUS_RULES. No timestamp is
	// recorded on the record itself: identical input and mode must
	// produce byte-identical output.
	MLScore *float64 `json:"ml_score,omitempty"`
}

// Alerting returns true when the decision warrants human attention.
func (d *DecisionRecord) Alerting() bool {
	return d.RecommendedAction != ActionApprove
}
