package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaAdvanceRequests = `
CREATE TABLE IF NOT EXISTS advance_requests (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    amount REAL NOT NULL,
    employer TEXT NOT NULL,
    pay_frequency TEXT NOT NULL,
    tenure_months INTEGER NOT NULL,
    repayment_history_score INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_advance_requests_tenant ON advance_requests(tenant_id);
CREATE INDEX IF NOT EXISTS idx_advance_requests_employer ON advance_requests(tenant_id, employer);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    priority INTEGER NOT NULL,
    expression TEXT NOT NULL,
    score_delta INTEGER NOT NULL,
    driver_text TEXT NOT NULL,
    policy_id TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    request_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    mode TEXT NOT NULL,
    risk_score INTEGER NOT NULL,
    risk_band TEXT NOT NULL,
    recommended_action TEXT NOT NULL,
    top_drivers TEXT NOT NULL,
    policy_citation TEXT NOT NULL,
    ml_score REAL,
    employer TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (request_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_decisions_tenant ON decisions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_decisions_employer ON decisions(tenant_id, employer);
CREATE INDEX IF NOT EXISTS idx_decisions_band ON decisions(tenant_id, risk_band);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(tenant_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAdvanceRequests,
		schemaRuleConfigs,
		schemaDecisions,
	}
}
