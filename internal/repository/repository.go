// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAdvanceRequest stores an advance request with tenant isolation.
func (r *SQLRepository) SaveAdvanceRequest(ctx context.Context, tenantID string, requestID string, req *domain.AdvanceRequest) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO advance_requests (
			id, tenant_id, amount, employer, pay_frequency,
			tenure_months, repayment_history_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		requestID, tenantID, req.Amount, req.Employer,
		string(req.PayFrequency), req.TenureMonths,
		req.RepaymentHistoryScore, time.Now().UTC(),
	)
	return err
}

// GetAdvanceRequest retrieves an advance request by ID with tenant isolation.
func (r *SQLRepository) GetAdvanceRequest(ctx context.Context, tenantID string, requestID string) (*domain.AdvanceRequest, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT amount, employer, pay_frequency, tenure_months, repayment_history_score
		FROM advance_requests
		WHERE tenant_id = ? AND id = ?
	`

	var req domain.AdvanceRequest
	var payFreq string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, requestID).Scan(
		&req.Amount, &req.Employer, &payFreq,
		&req.TenureMonths, &req.RepaymentHistoryScore,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	req.PayFrequency = domain.PayFrequency(payFreq)
	return &req, nil
}

// SaveRuleConfig stores a rule configuration with tenant isolation.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, tenantID string, rule *domain.RuleConfig) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, tenant_id, name, description, version, priority,
			expression, score_delta, driver_text, policy_id, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			priority = excluded.priority,
			expression = excluded.expression,
			score_delta = excluded.score_delta,
			driver_text = excluded.driver_text,
			policy_id = excluded.policy_id,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Priority, rule.Expression,
		rule.ScoreDelta, rule.DriverText, rule.PolicyID, enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves a rule configuration with tenant isolation.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, tenantID string, ruleID string) (*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, priority,
			   expression, score_delta, driver_text, policy_id, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Priority, &cfg.Expression,
		&cfg.ScoreDelta, &cfg.DriverText, &cfg.PolicyID, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	return &cfg, nil
}

// ListRuleConfigs retrieves all active rule configurations for a tenant,
// ordered by priority.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context, tenantID string) ([]*domain.RuleConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, priority,
			   expression, score_delta, driver_text, policy_id, enabled
		FROM rule_configs
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY priority
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.TenantID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Priority, &cfg.Expression,
			&cfg.ScoreDelta, &cfg.DriverText, &cfg.PolicyID, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// SaveDecision stores a decision record with tenant isolation.
func (r *SQLRepository) SaveDecision(ctx context.Context, tenantID string, employer string, rec *domain.DecisionRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	drivers, _ := json.Marshal(rec.TopDrivers)

	var mlScore sql.NullFloat64
	if rec.MLScore != nil {
		mlScore = sql.NullFloat64{Float64: *rec.MLScore, Valid: true}
	}

	query := `
		INSERT INTO decisions (
			request_id, tenant_id, mode, risk_score, risk_band,
			recommended_action, top_drivers, policy_citation, ml_score,
			employer, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.RequestID, tenantID, string(rec.Mode), rec.RiskScore,
		string(rec.RiskBand), string(rec.RecommendedAction),
		string(drivers), rec.PolicyCitation, mlScore,
		employer, time.Now().UTC(),
	)
	return err
}

// GetDecision retrieves a decision record by request ID with tenant isolation.
func (r *SQLRepository) GetDecision(ctx context.Context, tenantID string, requestID string) (*domain.DecisionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT request_id, tenant_id, mode, risk_score, risk_band,
			   recommended_action, top_drivers, policy_citation, ml_score
		FROM decisions
		WHERE tenant_id = ? AND request_id = ?
	`

	rec, err := r.scanDecision(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListDecisionsByEmployer retrieves decisions for an employer since the
// given time, newest first.
func (r *SQLRepository) ListDecisionsByEmployer(ctx context.Context, tenantID string, employer string, since time.Time) ([]*domain.DecisionRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT request_id, tenant_id, mode, risk_score, risk_band,
			   recommended_action, top_drivers, policy_citation, ml_score
		FROM decisions
		WHERE tenant_id = ? AND employer = ? AND created_at >= ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, employer, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.DecisionRecord
	for rows.Next() {
		rec, err := r.scanDecision(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountDecisionsByEmployer counts decisions for an employer since the
// given time.
func (r *SQLRepository) CountDecisionsByEmployer(ctx context.Context, tenantID string, employer string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM decisions
		WHERE tenant_id = ? AND employer = ? AND created_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, employer, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanDecision(row rowScanner) (*domain.DecisionRecord, error) {
	var rec domain.DecisionRecord
	var mode, band, action, drivers string
	var mlScore sql.NullFloat64

	err := row.Scan(
		&rec.RequestID, &rec.TenantID, &mode, &rec.RiskScore, &band,
		&action, &drivers, &rec.PolicyCitation, &mlScore,
	)
	if err != nil {
		return nil, err
	}

	rec.Mode = domain.Mode(mode)
	rec.RiskBand = domain.Band(band)
	rec.RecommendedAction = domain.Action(action)
	if err := json.Unmarshal([]byte(drivers), &rec.TopDrivers); err != nil {
		return nil, fmt.Errorf("failed to parse decision drivers: %w", err)
	}
	if mlScore.Valid {
		rec.MLScore = &mlScore.Float64
	}

	return &rec, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
