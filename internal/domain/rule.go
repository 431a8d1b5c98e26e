package domain

// RuleConfig defines one policy rule in the scoring catalog.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// Priority orders evaluation and citation: lower values are
	// evaluated first and win the policy citation among fired rules.
	// Explicit on every rule so reordering the catalog source cannot
	// change driver or citation order.
	Priority int `json:"priority"`

	// Expression is a CEL predicate over the advance request.
	// It must evaluate to bool; a true result fires the rule.
	Expression string `json:"expression"`

	// ScoreDelta is the signed contribution applied when the rule
	// fires. Positive deltas increase risk.
	ScoreDelta int `json:"scoreDelta"`

	// DriverText is the human-readable explanation template. It may
	// embed request values via {amount}, {employer}, {pay_frequency},
	// {tenure_months}, {repayment_history_score} placeholders.
	DriverText string `json:"driverText"`

	// PolicyID is the policy clause cited when this rule drives the
	// decision, e.g. "PX-ADV-01".
	PolicyID string `json:"policyId"`

	// Whether the rule is active.
	Enabled bool `json:"enabled"`
}

// FiredRule is one triggered rule for one request: the rendered driver
// text and the delta that was applied. Created during aggregation,
// consumed by the explanation builder, not persisted by the core.
type FiredRule struct {
	RuleID     string `json:"ruleId"`
	Priority   int    `json:"priority"`
	ScoreDelta int    `json:"scoreDelta"`
	Driver     string `json:"driver"`
	PolicyID   string `json:"policyId"`
}
