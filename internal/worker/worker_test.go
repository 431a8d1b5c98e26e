package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

func newTestAssembler(t *testing.T) *decision.Assembler {
	t.Helper()

	engine, err := policy.NewEngine(policy.DefaultRules(), policy.DefaultCatalogVersion)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	bands, err := decision.NewBandTable(decision.DefaultBandRanges())
	if err != nil {
		t.Fatalf("failed to create band table: %v", err)
	}

	return decision.NewAssembler(scoring.NewAggregator(engine), bands)
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	assembler := newTestAssembler(t)

	worker := NewWorker(eventBus, nil, assembler, domain.ModeMLPlusRules)

	t.Run("StartAndStop", func(t *testing.T) {
		cfg := Config{
			TenantIDs:   []string{"tenant-001"},
			WorkerCount: 1,
		}

		err := worker.Start(cfg)
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := worker.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		err = worker.Stop()
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = worker.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessAdvance", func(t *testing.T) {
		w := NewWorker(eventBus, nil, assembler, domain.ModeMLPlusRules)

		cfg := Config{
			TenantIDs: []string{"tenant-test"},
		}
		w.Start(cfg)
		defer w.Stop()

		var decisionReceived atomic.Bool
		var decisionPayload []byte

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			decisionPayload = msg.Payload
			decisionReceived.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		advMsg := AdvanceMessage{
			RequestID: "req-001",
			TenantID:  "tenant-test",
			Mode:      "RULES_ONLY",
			Request: domain.AdvanceRequest{
				Amount:                500,
				Employer:              "Acme Corp",
				PayFrequency:          domain.PayMonthly,
				TenureMonths:          24,
				RepaymentHistoryScore: 720,
			},
		}

		payload, _ := json.Marshal(advMsg)
		err := eventBus.Publish(context.Background(), "tenant-test", domain.TopicAdvanceReceived, payload)
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		time.Sleep(100 * time.Millisecond)

		if !decisionReceived.Load() {
			t.Error("expected decision to be published")
		}

		if decisionPayload != nil {
			var rec domain.DecisionRecord
			if err := json.Unmarshal(decisionPayload, &rec); err != nil {
				t.Fatalf("failed to parse decision: %v", err)
			}

			if rec.RequestID != "req-001" {
				t.Errorf("expected requestID 'req-001', got '%s'", rec.RequestID)
			}
			if rec.Mode != domain.ModeRulesOnly {
				t.Errorf("expected mode RULES_ONLY, got '%s'", rec.Mode)
			}
			// 10 (amount) + 5 (tenure) + 5 (history) + 5 (monthly) = 25
			if rec.RiskScore != 25 {
				t.Errorf("expected risk score 25, got %d", rec.RiskScore)
			}
			if rec.RiskBand != domain.BandGreen {
				t.Errorf("expected band Green, got '%s'", rec.RiskBand)
			}
		}
	})

	t.Run("ReviewPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, assembler, domain.ModeMLPlusRules)

		cfg := Config{
			TenantIDs: []string{"tenant-review"},
		}
		w.Start(cfg)
		defer w.Stop()

		var reviewReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-review", domain.TopicReview, func(ctx context.Context, msg *domain.Message) error {
			reviewReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		// High-risk request: large amount, short tenure, weak history
		advMsg := AdvanceMessage{
			RequestID: "req-review",
			TenantID:  "tenant-review",
			Request: domain.AdvanceRequest{
				Amount:                2500,
				Employer:              "Globex",
				PayFrequency:          domain.PayWeekly,
				TenureMonths:          1,
				RepaymentHistoryScore: 540,
			},
		}

		payload, _ := json.Marshal(advMsg)
		eventBus.Publish(context.Background(), "tenant-review", domain.TopicAdvanceReceived, payload)

		time.Sleep(100 * time.Millisecond)

		if !reviewReceived.Load() {
			t.Error("expected review event for a non-approve decision")
		}
	})

	t.Run("InvalidRequestNotPublished", func(t *testing.T) {
		w := NewWorker(eventBus, nil, assembler, domain.ModeMLPlusRules)

		cfg := Config{
			TenantIDs: []string{"tenant-invalid"},
		}
		w.Start(cfg)
		defer w.Stop()

		var decisionReceived atomic.Bool

		eventBus.Subscribe(context.Background(), "tenant-invalid", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			decisionReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		advMsg := AdvanceMessage{
			RequestID: "req-bad",
			TenantID:  "tenant-invalid",
			Request: domain.AdvanceRequest{
				Amount:                -100,
				Employer:              "X",
				PayFrequency:          "daily",
				TenureMonths:          -1,
				RepaymentHistoryScore: 200,
			},
		}

		payload, _ := json.Marshal(advMsg)
		eventBus.Publish(context.Background(), "tenant-invalid", domain.TopicAdvanceReceived, payload)

		time.Sleep(100 * time.Millisecond)

		if decisionReceived.Load() {
			t.Error("expected no decision for an invalid request")
		}
	})

	t.Run("ConcurrencyCapDrainsBacklog", func(t *testing.T) {
		w := NewWorker(eventBus, nil, assembler, domain.ModeMLPlusRules)

		// Cap of one: messages queue behind the semaphore but all
		// must still be processed, and Stop must drain them.
		cfg := Config{
			TenantIDs:   []string{"tenant-cap"},
			WorkerCount: 1,
		}
		w.Start(cfg)
		defer w.Stop()

		var processed atomic.Int32

		eventBus.Subscribe(context.Background(), "tenant-cap", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
			processed.Add(1)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		for i := 0; i < 5; i++ {
			advMsg := AdvanceMessage{
				RequestID: "req-cap-" + string(rune('a'+i)),
				TenantID:  "tenant-cap",
				Mode:      "RULES_ONLY",
				Request: domain.AdvanceRequest{
					Amount:                500,
					Employer:              "Acme Corp",
					PayFrequency:          domain.PayMonthly,
					TenureMonths:          24,
					RepaymentHistoryScore: 720,
				},
			}
			payload, _ := json.Marshal(advMsg)
			if err := eventBus.Publish(context.Background(), "tenant-cap", domain.TopicAdvanceReceived, payload); err != nil {
				t.Fatalf("Publish failed: %v", err)
			}
		}

		time.Sleep(200 * time.Millisecond)

		if got := processed.Load(); got != 5 {
			t.Errorf("expected all 5 messages processed under cap 1, got %d", got)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, nil, assembler, domain.ModeMLPlusRules)

		cfg := Config{
			TenantIDs: []string{"tenant-a", "tenant-b"},
		}
		w.Start(cfg)
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestAdvanceMessageParsing(t *testing.T) {
	msg := AdvanceMessage{
		RequestID: "req-123",
		TenantID:  "tenant-001",
		Mode:      "ML_PLUS_RULES",
		Request: domain.AdvanceRequest{
			Amount:                1234.56,
			Employer:              "Initech",
			PayFrequency:          domain.PayBiweekly,
			TenureMonths:          18,
			RepaymentHistoryScore: 690,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed AdvanceMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.RequestID != msg.RequestID {
		t.Errorf("expected RequestID '%s', got '%s'", msg.RequestID, parsed.RequestID)
	}
	if parsed.Request.Amount != msg.Request.Amount {
		t.Errorf("expected Amount %.2f, got %.2f", msg.Request.Amount, parsed.Request.Amount)
	}
	if parsed.Request.PayFrequency != msg.Request.PayFrequency {
		t.Errorf("expected PayFrequency '%s', got '%s'", msg.Request.PayFrequency, parsed.Request.PayFrequency)
	}
}
