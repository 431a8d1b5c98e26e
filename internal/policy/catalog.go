// Package policy provides the CEL-Go based policy rule catalog.
package policy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// CompiledRule pairs a rule configuration with its pre-compiled CEL
// predicate.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// Catalog is an immutable, validated set of policy rules ordered by
// ascending priority. Built once, never mutated; reloads construct a
// fresh catalog and swap it atomically.
type Catalog struct {
	rules   []*CompiledRule
	version string
}

// NewEnv creates the CEL environment exposing the advance request
// fields to rule expressions.
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("employer", cel.StringType),
		cel.Variable("pay_frequency", cel.StringType),
		cel.Variable("tenure_months", cel.IntType),
		cel.Variable("repayment_history_score", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewCatalog compiles and validates a rule set. Disabled rules are
// skipped. Returns a ConfigurationError on duplicate ids, duplicate
// priorities, missing policy ids, or predicates that do not evaluate
// to bool.
func NewCatalog(env *cel.Env, configs []*domain.RuleConfig, version string) (*Catalog, error) {
	seenIDs := make(map[string]bool, len(configs))
	seenPriorities := make(map[int]string, len(configs))

	rules := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		if cfg.ID == "" {
			return nil, &domain.ConfigurationError{Component: "rule catalog", Reason: "rule with empty id"}
		}
		if seenIDs[cfg.ID] {
			return nil, &domain.ConfigurationError{Component: "rule catalog", Reason: "duplicate rule id " + cfg.ID}
		}
		seenIDs[cfg.ID] = true

		if prev, ok := seenPriorities[cfg.Priority]; ok {
			return nil, &domain.ConfigurationError{
				Component: "rule catalog",
				Reason:    fmt.Sprintf("rules %s and %s share priority %d", prev, cfg.ID, cfg.Priority),
			}
		}
		seenPriorities[cfg.Priority] = cfg.ID

		if cfg.PolicyID == "" {
			return nil, &domain.ConfigurationError{Component: "rule catalog", Reason: "rule " + cfg.ID + " has no policy id"}
		}

		compiled, err := compileRule(env, cfg)
		if err != nil {
			return nil, err
		}
		rules = append(rules, compiled)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Config.Priority < rules[j].Config.Priority
	})

	return &Catalog{rules: rules, version: version}, nil
}

func compileRule(env *cel.Env, cfg *domain.RuleConfig) (*CompiledRule, error) {
	if strings.TrimSpace(cfg.Expression) == "" {
		return nil, &domain.ConfigurationError{Component: "rule catalog", Reason: "rule " + cfg.ID + " has empty expression"}
	}

	ast, issues := env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, &domain.ConfigurationError{
			Component: "rule catalog",
			Reason:    fmt.Sprintf("rule %s failed to compile: %v", cfg.ID, issues.Err()),
		}
	}

	if ast.OutputType() != cel.BoolType {
		return nil, &domain.ConfigurationError{
			Component: "rule catalog",
			Reason:    fmt.Sprintf("rule %s: predicate must return bool, got %s", cfg.ID, ast.OutputType()),
		}
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, &domain.ConfigurationError{
			Component: "rule catalog",
			Reason:    fmt.Sprintf("rule %s: failed to create program: %v", cfg.ID, err),
		}
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}

// Evaluate runs every predicate exactly once against the request and
// returns the fired rules in ascending priority order. Pure: no rule
// outcome depends on another rule's outcome.
func (c *Catalog) Evaluate(req *domain.AdvanceRequest) ([]domain.FiredRule, error) {
	activation := map[string]any{
		"amount":                  req.Amount,
		"employer":                req.Employer,
		"pay_frequency":           string(req.PayFrequency),
		"tenure_months":           req.TenureMonths,
		"repayment_history_score": req.RepaymentHistoryScore,
	}

	var fired []domain.FiredRule
	for _, rule := range c.rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("rule %s evaluation failed: %w", rule.Config.ID, err)
		}

		b, ok := out.(types.Bool)
		if !ok {
			return nil, &domain.InvariantError{
				Invariant: "bool predicate",
				Detail:    fmt.Sprintf("rule %s produced non-bool value %v", rule.Config.ID, out),
			}
		}
		if !bool(b) {
			continue
		}

		fired = append(fired, domain.FiredRule{
			RuleID:     rule.Config.ID,
			Priority:   rule.Config.Priority,
			ScoreDelta: rule.Config.ScoreDelta,
			Driver:     renderDriver(rule.Config.DriverText, req),
			PolicyID:   rule.Config.PolicyID,
		})
	}

	return fired, nil
}

// Rules returns the catalog's rule configurations in priority order.
func (c *Catalog) Rules() []*domain.RuleConfig {
	out := make([]*domain.RuleConfig, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Config
	}
	return out
}

// Rule returns the rule with the given id, if present.
func (c *Catalog) Rule(id string) (*domain.RuleConfig, bool) {
	for _, r := range c.rules {
		if r.Config.ID == id {
			return r.Config, true
		}
	}
	return nil, false
}

// Len returns the number of active rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Version returns the catalog version label.
func (c *Catalog) Version() string {
	return c.version
}

// renderDriver substitutes request values into a driver template.
func renderDriver(tmpl string, req *domain.AdvanceRequest) string {
	r := strings.NewReplacer(
		"{amount}", strconv.FormatFloat(req.Amount, 'f', -1, 64),
		"{employer}", req.Employer,
		"{pay_frequency}", string(req.PayFrequency),
		"{tenure_months}", strconv.Itoa(req.TenureMonths),
		"{repayment_history_score}", strconv.Itoa(req.RepaymentHistoryScore),
	)
	return r.Replace(tmpl)
}
