package policy

import "github.com/opensource-finance/kestrel/internal/domain"

// DefaultCatalogVersion labels the built-in rule set.
const DefaultCatalogVersion = "px-adv-2024.1"

// DefaultRules returns the built-in salary-advance policy catalog.
// Rules are grouped by dimension (amount, tenure, repayment history,
// pay frequency) but the catalog is flat: every matching rule
// contributes. Within a dimension the predicates are mutually
// exclusive, so exactly one rule per dimension fires for any valid
// request. Boundary convention: inclusive lower bound (>=),
// exclusive upper bound (<).
func DefaultRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:         "amount-high",
			Name:       "High advance amount",
			Version:    DefaultCatalogVersion,
			Priority:   100,
			Expression: "amount >= 2000.0",
			ScoreDelta: 35,
			DriverText: "High advance amount (>= 2000): requested {amount}",
			PolicyID:   "PX-ADV-01",
			Enabled:    true,
		},
		{
			ID:         "amount-medium",
			Name:       "Medium advance amount",
			Version:    DefaultCatalogVersion,
			Priority:   110,
			Expression: "amount >= 1000.0 && amount < 2000.0",
			ScoreDelta: 20,
			DriverText: "Medium advance amount (>= 1000): requested {amount}",
			PolicyID:   "PX-ADV-02",
			Enabled:    true,
		},
		{
			ID:         "amount-low",
			Name:       "Low advance amount",
			Version:    DefaultCatalogVersion,
			Priority:   120,
			Expression: "amount < 1000.0",
			ScoreDelta: 10,
			DriverText: "Low advance amount (< 1000): requested {amount}",
			PolicyID:   "PX-ADV-03",
			Enabled:    true,
		},
		{
			ID:         "tenure-low",
			Name:       "Low tenure",
			Version:    DefaultCatalogVersion,
			Priority:   200,
			Expression: "tenure_months < 3",
			ScoreDelta: 30,
			DriverText: "Low tenure (< 3 months): {tenure_months} months",
			PolicyID:   "PX-ADV-04",
			Enabled:    true,
		},
		{
			ID:         "tenure-moderate",
			Name:       "Moderate tenure",
			Version:    DefaultCatalogVersion,
			Priority:   210,
			Expression: "tenure_months >= 3 && tenure_months < 12",
			ScoreDelta: 15,
			DriverText: "Moderate tenure (< 12 months): {tenure_months} months",
			PolicyID:   "PX-ADV-05",
			Enabled:    true,
		},
		{
			ID:         "tenure-established",
			Name:       "Established tenure",
			Version:    DefaultCatalogVersion,
			Priority:   220,
			Expression: "tenure_months >= 12",
			ScoreDelta: 5,
			DriverText: "Established tenure (>= 12 months): {tenure_months} months",
			PolicyID:   "PX-ADV-06",
			Enabled:    true,
		},
		{
			ID:         "history-weak",
			Name:       "Weak repayment history",
			Version:    DefaultCatalogVersion,
			Priority:   300,
			Expression: "repayment_history_score < 580",
			ScoreDelta: 35,
			DriverText: "Weak repayment history (score < 580): {repayment_history_score}",
			PolicyID:   "PX-ADV-07",
			Enabled:    true,
		},
		{
			ID:         "history-average",
			Name:       "Average repayment history",
			Version:    DefaultCatalogVersion,
			Priority:   310,
			Expression: "repayment_history_score >= 580 && repayment_history_score < 650",
			ScoreDelta: 20,
			DriverText: "Average repayment history (score < 650): {repayment_history_score}",
			PolicyID:   "PX-ADV-08",
			Enabled:    true,
		},
		{
			ID:         "history-strong",
			Name:       "Strong repayment history",
			Version:    DefaultCatalogVersion,
			Priority:   320,
			Expression: "repayment_history_score >= 650",
			ScoreDelta: 5,
			DriverText: "Strong repayment history (score >= 650): {repayment_history_score}",
			PolicyID:   "PX-ADV-09",
			Enabled:    true,
		},
		{
			ID:         "payfreq-weekly",
			Name:       "Weekly pay cycle",
			Version:    DefaultCatalogVersion,
			Priority:   400,
			Expression: "pay_frequency == 'weekly'",
			ScoreDelta: 15,
			DriverText: "High-frequency pay cycle (weekly)",
			PolicyID:   "PX-ADV-10",
			Enabled:    true,
		},
		{
			ID:         "payfreq-biweekly",
			Name:       "Biweekly pay cycle",
			Version:    DefaultCatalogVersion,
			Priority:   410,
			Expression: "pay_frequency == 'biweekly'",
			ScoreDelta: 10,
			DriverText: "Biweekly pay cycle",
			PolicyID:   "PX-ADV-11",
			Enabled:    true,
		},
		{
			ID:         "payfreq-monthly",
			Name:       "Monthly pay cycle",
			Version:    DefaultCatalogVersion,
			Priority:   420,
			Expression: "pay_frequency == 'monthly'",
			ScoreDelta: 5,
			DriverText: "Monthly pay cycle",
			PolicyID:   "PX-ADV-12",
			Enabled:    true,
		},
	}
}
