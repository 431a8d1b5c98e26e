package domain

import (
	"context"
	"time"
)

// Repository defines the interface for boundary-layer persistence.
// The scoring core never reads it; audit storage of requests and
// decisions is a collaborator concern. All methods require tenantID
// for strict multi-tenancy isolation.
type Repository interface {
	// Advance request audit trail
	SaveAdvanceRequest(ctx context.Context, tenantID string, requestID string, req *AdvanceRequest) error
	GetAdvanceRequest(ctx context.Context, tenantID string, requestID string) (*AdvanceRequest, error)

	// Rule configuration operations
	SaveRuleConfig(ctx context.Context, tenantID string, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context, tenantID string) ([]*RuleConfig, error)

	// Decision records. The employer is stored alongside the record
	// to support per-employer history queries.
	SaveDecision(ctx context.Context, tenantID string, employer string, rec *DecisionRecord) error
	GetDecision(ctx context.Context, tenantID string, requestID string) (*DecisionRecord, error)
	ListDecisionsByEmployer(ctx context.Context, tenantID string, employer string, since time.Time) ([]*DecisionRecord, error)
	CountDecisionsByEmployer(ctx context.Context, tenantID string, employer string, since time.Time) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
