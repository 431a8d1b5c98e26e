// Package history provides employer-level decision history lookups.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Service answers boundary-layer questions about past decisions for an
// employer: recent records for audit review and request-rate counters
// for operational dashboards. The scoring core never consults it.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new history service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// EmployerDecisions returns decision records for an employer within
// the trailing window.
func (s *Service) EmployerDecisions(ctx context.Context, tenantID, employer string, window time.Duration) ([]*domain.DecisionRecord, error) {
	if tenantID == "" || employer == "" {
		return nil, fmt.Errorf("tenantID and employer are required")
	}
	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-window)
	return s.repo.ListDecisionsByEmployer(ctx, tenantID, employer, since)
}

// EmployerDecisionCount returns the number of decisions recorded for
// an employer within the trailing window.
func (s *Service) EmployerDecisionCount(ctx context.Context, tenantID, employer string, window time.Duration) (int64, error) {
	if tenantID == "" || employer == "" {
		return 0, fmt.Errorf("tenantID and employer are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-window)
	return s.repo.CountDecisionsByEmployer(ctx, tenantID, employer, since)
}

// TrackRequest bumps the employer request counter in cache and
// returns the count within the current window. Best-effort: a nil
// cache reports zero without error.
func (s *Service) TrackRequest(ctx context.Context, tenantID, employer string, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, tenantID, "employer:"+employer, window)
}
