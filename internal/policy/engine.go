package policy

import (
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine holds the live catalog and supports hot reload by atomic
// swap. Every decision reads one consistent catalog version; the
// catalog itself is never mutated in place.
type Engine struct {
	mu      sync.RWMutex
	env     *cel.Env
	catalog *Catalog
}

// NewEngine creates an engine with the given initial rule set.
func NewEngine(configs []*domain.RuleConfig, version string) (*Engine, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}

	catalog, err := NewCatalog(env, configs, version)
	if err != nil {
		return nil, err
	}

	return &Engine{env: env, catalog: catalog}, nil
}

// Evaluate evaluates the current catalog against one request.
func (e *Engine) Evaluate(req *domain.AdvanceRequest) ([]domain.FiredRule, error) {
	return e.Snapshot().Evaluate(req)
}

// Snapshot returns the current immutable catalog.
func (e *Engine) Snapshot() *Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	_, err := compileRule(e.env, cfg)
	return err
}

// Reload builds a fresh catalog from the given configs and swaps it
// in atomically. On validation failure the previous catalog stays
// active.
func (e *Engine) Reload(configs []*domain.RuleConfig, version string) error {
	catalog, err := NewCatalog(e.env, configs, version)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.catalog = catalog
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of active rules.
func (e *Engine) RulesCount() int {
	return e.Snapshot().Len()
}
