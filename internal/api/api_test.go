package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	engine, err := policy.NewEngine(policy.DefaultRules(), policy.DefaultCatalogVersion)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	bands, err := decision.NewBandTable(decision.DefaultBandRanges())
	if err != nil {
		t.Fatalf("failed to create band table: %v", err)
	}

	assembler := decision.NewAssembler(scoring.NewAggregator(engine), bands)
	lru := cache.NewLRUCache(100)
	hist := history.NewService(nil, lru)

	cfg := domain.ServerConfig{Host: "127.0.0.1", Port: 0, ReadTimeout: 5, WriteTimeout: 5}

	return NewServer(cfg, nil, lru, nil, engine, assembler, bands, hist, "test", domain.ModeMLPlusRules)
}

// newTestServerWithRepo backs the server with a real sqlite repository
// so persistence-dependent routes can be exercised.
func newTestServerWithRepo(t *testing.T) *Server {
	t.Helper()

	engine, err := policy.NewEngine(policy.DefaultRules(), policy.DefaultCatalogVersion)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	bands, err := decision.NewBandTable(decision.DefaultBandRanges())
	if err != nil {
		t.Fatalf("failed to create band table: %v", err)
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	assembler := decision.NewAssembler(scoring.NewAggregator(engine), bands)
	lru := cache.NewLRUCache(100)
	hist := history.NewService(repo, lru)

	cfg := domain.ServerConfig{Host: "127.0.0.1", Port: 0, ReadTimeout: 5, WriteTimeout: 5}

	return NewServer(cfg, repo, lru, nil, engine, assembler, bands, hist, "test", domain.ModeMLPlusRules)
}

func doRequest(t *testing.T, server *Server, method, path string, body any, tenantID string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if tenantID != "" {
		req.Header.Set(TenantIDHeader, tenantID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestScoreEndpoint(t *testing.T) {
	server := newTestServer(t)
	tenantID := "tenant-001"

	t.Run("RequiresTenantHeader", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/score", ScoreRequest{}, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without tenant header, got %d", rec.Code)
		}
	})

	t.Run("RulesOnly", func(t *testing.T) {
		body := ScoreRequest{
			Amount:                1500,
			Employer:              "Acme Corp",
			PayFrequency:          "biweekly",
			TenureMonths:          8,
			RepaymentHistoryScore: 620,
			Mode:                  "RULES_ONLY",
			RequestID:             "req-rules-only",
		}

		rec := doRequest(t, server, http.MethodPost, "/score", body, tenantID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var result domain.DecisionRecord
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if result.RequestID != "req-rules-only" {
			t.Errorf("expected request id to be echoed, got %s", result.RequestID)
		}
		// 20 (amount) + 15 (tenure) + 20 (history) + 10 (biweekly) = 65
		if result.RiskScore != 65 {
			t.Errorf("expected risk score 65, got %d", result.RiskScore)
		}
		if result.RiskBand != domain.BandRed {
			t.Errorf("expected band Red at the 65 boundary, got %s", result.RiskBand)
		}
		if result.MLScore != nil {
			t.Error("expected no ml score under RULES_ONLY")
		}
		if len(result.TopDrivers) != 4 {
			t.Errorf("expected 4 drivers, got %d", len(result.TopDrivers))
		}
	})

	t.Run("MLPlusRules", func(t *testing.T) {
		body := ScoreRequest{
			Amount:                1500,
			Employer:              "Acme Corp",
			PayFrequency:          "biweekly",
			TenureMonths:          8,
			RepaymentHistoryScore: 620,
			Mode:                  "ML_PLUS_RULES",
		}

		rec := doRequest(t, server, http.MethodPost, "/score", body, tenantID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var result domain.DecisionRecord
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		// rule score 65, aux 0.15: round(0.6*65 + 0.4*15) = 45
		if result.RiskScore != 45 {
			t.Errorf("expected blended risk score 45, got %d", result.RiskScore)
		}
		if result.RiskBand != domain.BandAmber {
			t.Errorf("expected band Amber, got %s", result.RiskBand)
		}
		if result.MLScore == nil || *result.MLScore != 0.15 {
			t.Errorf("expected ml score 0.15, got %v", result.MLScore)
		}
	})

	t.Run("QueryModeOverridesBody", func(t *testing.T) {
		body := ScoreRequest{
			Amount:                1500,
			Employer:              "Acme Corp",
			PayFrequency:          "biweekly",
			TenureMonths:          8,
			RepaymentHistoryScore: 620,
			Mode:                  "ML_PLUS_RULES",
		}

		rec := doRequest(t, server, http.MethodPost, "/score?mode=RULES_ONLY", body, tenantID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var result domain.DecisionRecord
		json.Unmarshal(rec.Body.Bytes(), &result)

		if result.Mode != domain.ModeRulesOnly {
			t.Errorf("expected query mode to win, got %s", result.Mode)
		}
	})

	t.Run("UnknownMode", func(t *testing.T) {
		body := ScoreRequest{
			Amount:                100,
			Employer:              "Acme Corp",
			PayFrequency:          "weekly",
			TenureMonths:          5,
			RepaymentHistoryScore: 700,
			Mode:                  "HYBRID",
		}

		rec := doRequest(t, server, http.MethodPost, "/score", body, tenantID)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for unknown mode, got %d", rec.Code)
		}
	})

	t.Run("ValidationCollectsAllViolations", func(t *testing.T) {
		body := ScoreRequest{
			Amount:                -50,
			Employer:              "X",
			PayFrequency:          "daily",
			TenureMonths:          -2,
			RepaymentHistoryScore: 200,
		}

		rec := doRequest(t, server, http.MethodPost, "/score", body, tenantID)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}

		var resp struct {
			Error      string                  `json:"error"`
			Violations []domain.FieldViolation `json:"violations"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if len(resp.Violations) != 5 {
			t.Errorf("expected 5 violations, got %d: %+v", len(resp.Violations), resp.Violations)
		}
	})

	t.Run("NormalizesPayFrequency", func(t *testing.T) {
		body := ScoreRequest{
			Amount:                500,
			Employer:              "Acme Corp",
			PayFrequency:          "  Monthly ",
			TenureMonths:          24,
			RepaymentHistoryScore: 720,
		}

		rec := doRequest(t, server, http.MethodPost, "/score", body, tenantID)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 for mixed-case pay frequency, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		body := ScoreRequest{
			Amount:                2000,
			Employer:              "Globex",
			PayFrequency:          "weekly",
			TenureMonths:          12,
			RepaymentHistoryScore: 650,
			RequestID:             "req-deterministic",
		}

		rec1 := doRequest(t, server, http.MethodPost, "/score", body, tenantID)
		rec2 := doRequest(t, server, http.MethodPost, "/score", body, tenantID)

		if rec1.Code != http.StatusOK || rec2.Code != http.StatusOK {
			t.Fatalf("expected 200s, got %d and %d", rec1.Code, rec2.Code)
		}

		if !bytes.Equal(rec1.Body.Bytes(), rec2.Body.Bytes()) {
			t.Errorf("expected byte-identical responses for identical input:\n%s\n%s",
				rec1.Body.String(), rec2.Body.String())
		}
	})
}

func TestDecisionRetrieval(t *testing.T) {
	server := newTestServer(t)
	tenantID := "tenant-001"

	body := ScoreRequest{
		Amount:                800,
		Employer:              "Initech",
		PayFrequency:          "monthly",
		TenureMonths:          36,
		RepaymentHistoryScore: 700,
		RequestID:             "req-cached",
	}

	rec := doRequest(t, server, http.MethodPost, "/score", body, tenantID)
	if rec.Code != http.StatusOK {
		t.Fatalf("score failed: %d", rec.Code)
	}

	t.Run("FromCache", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/decisions/req-cached", nil, tenantID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var result domain.DecisionRecord
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if result.RequestID != "req-cached" {
			t.Errorf("expected req-cached, got %s", result.RequestID)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/decisions/req-cached", nil, "tenant-other")
		if rec.Code == http.StatusOK {
			t.Error("expected decision to be invisible to another tenant")
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server := newTestServer(t)
	tenantID := "tenant-001"

	t.Run("ListRules", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/rules", nil, tenantID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Rules   []domain.RuleConfig `json:"rules"`
			Count   int                 `json:"count"`
			Version string              `json:"version"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Count != 12 {
			t.Errorf("expected 12 default rules, got %d", resp.Count)
		}
		if resp.Version != policy.DefaultCatalogVersion {
			t.Errorf("expected version %s, got %s", policy.DefaultCatalogVersion, resp.Version)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/rules/amount-high", nil, tenantID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var rule domain.RuleConfig
		if err := json.Unmarshal(rec.Body.Bytes(), &rule); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if rule.PolicyID != "PX-ADV-01" {
			t.Errorf("expected PX-ADV-01, got %s", rule.PolicyID)
		}
	})

	t.Run("GetRuleNotFound", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/rules/no-such-rule", nil, tenantID)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("CreateRuleBadExpression", func(t *testing.T) {
		body := CreateRuleRequest{
			ID:         "bad-rule",
			Name:       "Bad Rule",
			Expression: "amount +", // does not compile
			PolicyID:   "PX-ADV-99",
			Priority:   900,
			Enabled:    true,
		}

		rec := doRequest(t, server, http.MethodPost, "/rules", body, tenantID)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad expression, got %d", rec.Code)
		}
	})

	t.Run("CreateRuleNonBoolExpression", func(t *testing.T) {
		body := CreateRuleRequest{
			ID:         "non-bool-rule",
			Name:       "Non Bool Rule",
			Expression: "amount + 1.0",
			PolicyID:   "PX-ADV-98",
			Priority:   910,
			Enabled:    true,
		}

		rec := doRequest(t, server, http.MethodPost, "/rules", body, tenantID)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for non-bool expression, got %d", rec.Code)
		}
	})

	t.Run("ReloadWithoutRepository", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/rules/reload", nil, tenantID)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503 without repository, got %d", rec.Code)
		}
	})
}

func TestBandEndpoint(t *testing.T) {
	server := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/bands", nil, "tenant-001")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Bands []decision.BandRange `json:"bands"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if len(resp.Bands) != 3 {
		t.Fatalf("expected 3 bands, got %d", len(resp.Bands))
	}
	if resp.Bands[0].Band != domain.BandGreen || resp.Bands[0].Max != 34 {
		t.Errorf("unexpected first band: %+v", resp.Bands[0])
	}
	if resp.Bands[2].Band != domain.BandRed || resp.Bands[2].Min != 65 {
		t.Errorf("unexpected last band: %+v", resp.Bands[2])
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/health", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp map[string]string
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", resp["status"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/ready", nil, "")
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200 with a loaded catalog, got %d", rec.Code)
		}
	})

	t.Run("NotReadyWithoutRules", func(t *testing.T) {
		engine, err := policy.NewEngine(nil, "empty")
		if err != nil {
			t.Fatalf("failed to create empty engine: %v", err)
		}

		bands, _ := decision.NewBandTable(decision.DefaultBandRanges())
		assembler := decision.NewAssembler(scoring.NewAggregator(engine), bands)
		cfg := domain.ServerConfig{Host: "127.0.0.1", Port: 0}
		empty := NewServer(cfg, nil, nil, nil, engine, assembler, bands, nil, "test", domain.ModeMLPlusRules)

		rec := doRequest(t, empty, http.MethodGet, "/ready", nil, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503 with no rules loaded, got %d", rec.Code)
		}
	})
}

func TestEmployerDecisionsEndpoint(t *testing.T) {
	server := newTestServerWithRepo(t)
	tenantID := "tenant-001"

	score := func(t *testing.T, employer string) {
		t.Helper()
		body := ScoreRequest{
			Amount:                500,
			Employer:              employer,
			PayFrequency:          "monthly",
			TenureMonths:          24,
			RepaymentHistoryScore: 720,
		}
		rec := doRequest(t, server, http.MethodPost, "/score", body, tenantID)
		if rec.Code != http.StatusOK {
			t.Fatalf("score failed: %d: %s", rec.Code, rec.Body.String())
		}
	}

	score(t, "Acme Corp")
	score(t, "Acme Corp")
	score(t, "Globex")

	t.Run("ListForEmployer", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/employers/Acme%20Corp/decisions", nil, tenantID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Employer  string                  `json:"employer"`
			Decisions []domain.DecisionRecord `json:"decisions"`
			Count     int                     `json:"count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Employer != "Acme Corp" {
			t.Errorf("expected employer to be echoed, got %q", resp.Employer)
		}
		if resp.Count != 2 || len(resp.Decisions) != 2 {
			t.Errorf("expected 2 decisions for Acme Corp, got count=%d len=%d", resp.Count, len(resp.Decisions))
		}
	})

	t.Run("ExplicitWindow", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/employers/Globex/decisions?window_hours=48", nil, tenantID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 decision for Globex, got %d", resp.Count)
		}
	})

	t.Run("BadWindowRejected", func(t *testing.T) {
		for _, param := range []string{"abc", "0", "-3"} {
			rec := doRequest(t, server, http.MethodGet, "/employers/Acme%20Corp/decisions?window_hours="+param, nil, tenantID)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("window_hours=%s: expected 400, got %d", param, rec.Code)
			}
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/employers/Acme%20Corp/decisions", nil, "other-tenant")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Count != 0 {
			t.Errorf("expected no decisions for other tenant, got %d", resp.Count)
		}
	})

	t.Run("NoRepository", func(t *testing.T) {
		bare := newTestServer(t)
		rec := doRequest(t, bare, http.MethodGet, "/employers/Acme%20Corp/decisions", nil, tenantID)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500 without a repository, got %d", rec.Code)
		}
	})
}
