// Package worker provides async advance processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker processes advance requests asynchronously from the EventBus.
type Worker struct {
	bus         domain.EventBus
	repo        domain.Repository
	assembler   *decision.Assembler
	defaultMode domain.Mode

	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount caps concurrent in-flight messages across all
	// subscriptions. Zero or negative falls back to the default.
	WorkerCount int
}

// DefaultWorkerCount is used when Config.WorkerCount is unset.
const DefaultWorkerCount = 5

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, assembler *decision.Assembler, defaultMode domain.Mode) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:         bus,
		repo:        repo,
		assembler:   assembler,
		defaultMode: defaultMode,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	count := cfg.WorkerCount
	if count <= 0 {
		count = DefaultWorkerCount
	}
	w.sem = make(chan struct{}, count)

	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicAdvanceReceived, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAdvanceReceived, func(ctx context.Context, msg *domain.Message) error {
		return w.processAdvance(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicAdvanceReceived,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processAdvance(ctx, msg.TenantID, msg)
}

// AdvanceMessage is the message payload for async advance scoring.
type AdvanceMessage struct {
	RequestID string                `json:"requestId"`
	TenantID  string                `json:"tenantId"`
	Mode      string                `json:"mode,omitempty"`
	Request   domain.AdvanceRequest `json:"request"`
}

// processAdvance scores an advance request through the pipeline.
// A semaphore caps concurrent in-flight messages; Stop waits for them
// to drain before returning.
func (w *Worker) processAdvance(ctx context.Context, tenantID string, msg *domain.Message) error {
	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}
	w.wg.Add(1)
	defer func() {
		<-w.sem
		w.wg.Done()
	}()

	start := time.Now()

	var advMsg AdvanceMessage
	if err := json.Unmarshal(msg.Payload, &advMsg); err != nil {
		slog.Error("failed to parse advance message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if advMsg.TenantID != "" {
		tenantID = advMsg.TenantID
	}

	mode := w.defaultMode
	if advMsg.Mode != "" {
		parsed, ok := domain.ParseMode(advMsg.Mode)
		if !ok {
			slog.Error("unrecognized scoring mode",
				"message_id", msg.ID,
				"mode", advMsg.Mode,
			)
			return nil // malformed message, nothing to retry
		}
		mode = parsed
	}

	slog.Debug("processing advance request",
		"request_id", advMsg.RequestID,
		"tenant_id", tenantID,
		"mode", mode,
	)

	rec, err := w.assembler.Decide(ctx, tenantID, &advMsg.Request, mode, advMsg.RequestID)
	if err != nil {
		slog.Error("advance scoring failed",
			"request_id", advMsg.RequestID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	// Persist request and decision for the audit trail
	if w.repo != nil {
		if err := w.repo.SaveAdvanceRequest(ctx, tenantID, rec.RequestID, &advMsg.Request); err != nil {
			slog.Error("failed to save advance request",
				"request_id", rec.RequestID,
				"error", err,
			)
		}
		if err := w.repo.SaveDecision(ctx, tenantID, advMsg.Request.Employer, rec); err != nil {
			slog.Error("failed to save decision",
				"request_id", rec.RequestID,
				"error", err,
			)
		}
	}

	// Publish result to decision topic
	resultPayload, _ := json.Marshal(rec)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicDecision, resultPayload); err != nil {
		slog.Error("failed to publish decision",
			"request_id", rec.RequestID,
			"error", err,
		)
	}

	// Non-approvals go to the review topic for human attention
	if rec.Alerting() {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicReview, resultPayload); err != nil {
			slog.Error("failed to publish review event",
				"request_id", rec.RequestID,
				"error", err,
			)
		}
	}

	slog.Info("advance request processed",
		"request_id", rec.RequestID,
		"tenant_id", tenantID,
		"risk_score", rec.RiskScore,
		"risk_band", rec.RiskBand,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
