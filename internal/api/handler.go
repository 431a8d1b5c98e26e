package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// decisionCacheTTL bounds how long a scored decision stays in cache.
const decisionCacheTTL = 15 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	engine      *policy.Engine
	assembler   *decision.Assembler
	bands       *decision.BandTable
	history     *history.Service
	version     string
	defaultMode domain.Mode
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *policy.Engine, assembler *decision.Assembler, bands *decision.BandTable, hist *history.Service, version string, defaultMode domain.Mode) *Handler {
	return &Handler{
		repo:        repo,
		cache:       cache,
		bus:         bus,
		engine:      engine,
		assembler:   assembler,
		bands:       bands,
		history:     hist,
		version:     version,
		defaultMode: defaultMode,
	}
}

// ScoreRequest is the request body for POST /score.
type ScoreRequest struct {
	Amount                float64 `json:"amount"`
	Employer              string  `json:"employer"`
	PayFrequency          string  `json:"pay_frequency"`
	TenureMonths          int     `json:"tenure_months"`
	RepaymentHistoryScore int     `json:"repayment_history_score"`

	// Mode overrides the server default; the ?mode= query parameter
	// overrides both.
	Mode string `json:"mode,omitempty"`

	// RequestID is echoed back when supplied, generated otherwise.
	RequestID string `json:"request_id,omitempty"`
}

// Score handles POST /score requests: validate, score, classify,
// explain, persist, publish.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var body ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	mode := h.defaultMode
	modeParam := r.URL.Query().Get("mode")
	if modeParam == "" {
		modeParam = body.Mode
	}
	if modeParam != "" {
		parsed, ok := domain.ParseMode(modeParam)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "validation failed",
				"violations": []domain.FieldViolation{
					{Field: "mode", Constraint: "must be one of RULES_ONLY, ML_PLUS_RULES"},
				},
			})
			return
		}
		mode = parsed
	}

	req := &domain.AdvanceRequest{
		Amount:                body.Amount,
		Employer:              body.Employer,
		PayFrequency:          domain.NormalizePayFrequency(body.PayFrequency),
		TenureMonths:          body.TenureMonths,
		RepaymentHistoryScore: body.RepaymentHistoryScore,
	}

	rec, err := h.assembler.Decide(ctx, tenantID, req, mode, body.RequestID)
	if err != nil {
		h.writeDecisionError(w, err)
		return
	}

	// Audit trail and cache are best-effort: the decision is already
	// made and must be returned either way.
	if h.repo != nil {
		if err := h.repo.SaveAdvanceRequest(ctx, tenantID, rec.RequestID, req); err != nil {
			slog.Error("failed to save advance request", "request_id", rec.RequestID, "error", err)
		}
		if err := h.repo.SaveDecision(ctx, tenantID, req.Employer, rec); err != nil {
			slog.Error("failed to save decision", "request_id", rec.RequestID, "error", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.SetDecision(ctx, tenantID, rec.RequestID, rec, decisionCacheTTL); err != nil {
			slog.Error("failed to cache decision", "request_id", rec.RequestID, "error", err)
		}
	}
	if h.history != nil {
		if _, err := h.history.TrackRequest(ctx, tenantID, req.Employer, time.Hour); err != nil {
			slog.Error("failed to track employer request", "employer", req.Employer, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(rec)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicDecision, payload); err != nil {
			slog.Error("failed to publish decision", "request_id", rec.RequestID, "error", err)
		}
		if rec.Alerting() {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicReview, payload); err != nil {
				slog.Error("failed to publish review event", "request_id", rec.RequestID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, rec)
}

// writeDecisionError maps the decision error taxonomy to HTTP status
// codes. Validation details go to the caller; configuration and
// invariant details stay in the logs.
func (h *Handler) writeDecisionError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "validation failed",
			"violations": verr.Violations,
		})
		return
	}

	var cerr *domain.ConfigurationError
	if errors.As(err, &cerr) {
		slog.Error("policy configuration error", "error", cerr)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "policy configuration unavailable",
		})
		return
	}

	var ierr *domain.InvariantError
	if errors.As(err, &ierr) {
		slog.Error("scoring invariant violated", "error", ierr)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
		return
	}

	slog.Error("scoring failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}

// GetDecision retrieves a decision record by request ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	requestID := chi.URLParam(r, "id")

	if requestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "request id is required",
		})
		return
	}

	// Cache first, then repository
	if h.cache != nil {
		if rec, err := h.cache.GetDecision(ctx, tenantID, requestID); err == nil && rec != nil {
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetDecision(ctx, tenantID, requestID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get decision", "id", requestID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetAdvanceRequest retrieves a stored advance request by ID.
func (h *Handler) GetAdvanceRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	requestID := chi.URLParam(r, "id")

	if requestID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "request id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	req, err := h.repo.GetAdvanceRequest(ctx, tenantID, requestID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get advance request", "id", requestID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "advance request not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// ListEmployerDecisions returns recent decisions for an employer.
// Window defaults to 24 hours and is adjustable via ?window_hours=.
func (h *Handler) ListEmployerDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	employer := chi.URLParam(r, "employer")

	if employer == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "employer is required",
		})
		return
	}

	window := 24 * time.Hour
	if param := r.URL.Query().Get("window_hours"); param != "" {
		hours, err := strconv.Atoi(param)
		if err != nil || hours <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "window_hours must be a positive integer",
			})
			return
		}
		window = time.Duration(hours) * time.Hour
	}

	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "history service not available",
		})
		return
	}

	records, err := h.history.EmployerDecisions(ctx, tenantID, employer, window)
	if err != nil {
		slog.Error("failed to list employer decisions", "employer", employer, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list decisions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"employer":  employer,
		"decisions": records,
		"count":     len(records),
	})
}

// ListRules returns the active rule catalog.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	catalog := h.engine.Snapshot()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":   catalog.Rules(),
		"count":   catalog.Len(),
		"version": catalog.Version(),
	})
}

// GetRule retrieves a rule by ID from the active catalog.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if rule, ok := h.engine.Snapshot().Rule(ruleID); ok {
		writeJSON(w, http.StatusOK, rule)
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	Expression  string `json:"expression"`
	ScoreDelta  int    `json:"scoreDelta"`
	DriverText  string `json:"driverText"`
	PolicyID    string `json:"policyId"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule validates and saves a new rule to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /rules/reload to hot-reload the catalog.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" || req.PolicyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, expression, and policyId are required",
		})
		return
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Priority:    req.Priority,
		Expression:  req.Expression,
		ScoreDelta:  req.ScoreDelta,
		DriverText:  req.DriverText,
		PolicyID:    req.PolicyID,
		Enabled:     req.Enabled,
	}

	// Compile the predicate before accepting it
	if err := h.engine.ValidateRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "name", ruleConfig.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    ruleConfig,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules rebuilds the catalog from the database and swaps it in
// atomically. On validation failure the previous catalog stays active.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	version := "db"
	if len(dbRules) > 0 && dbRules[0].Version != "" {
		version = dbRules[0].Version
	}

	if err := h.engine.Reload(dbRules, version); err != nil {
		slog.Error("failed to reload rule catalog", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rule catalog reloaded", "count", h.engine.RulesCount(), "version", version)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
		"version": version,
	})
}

// ListBands returns the score-to-band mapping table.
func (h *Handler) ListBands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"bands": h.bands.Ranges(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to score requests: the
// rule catalog and band table must both be loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil || h.engine.RulesCount() == 0 || h.bands == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
