package decision

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

var tracer = otel.Tracer("kestrel-decision")

// Assembler orchestrates validation, aggregation, classification, and
// explanation into one immutable decision record per request.
// Stateless per call and safely reentrant: concurrent invocations
// share only the immutable catalog and band table.
type Assembler struct {
	aggregator *scoring.Aggregator
	bands      *BandTable
}

// NewAssembler creates an assembler over a validated aggregator and
// band table.
func NewAssembler(aggregator *scoring.Aggregator, bands *BandTable) *Assembler {
	return &Assembler{aggregator: aggregator, bands: bands}
}

// Decide scores one advance request. requestID is echoed when
// supplied and generated otherwise. Returns a ValidationError for
// out-of-range input; configuration and invariant failures propagate
// typed, never logged-and-swallowed.
func (a *Assembler) Decide(ctx context.Context, tenantID string, req *domain.AdvanceRequest, mode domain.Mode, requestID string) (*domain.DecisionRecord, error) {
	_, span := tracer.Start(ctx, "decision.Decide",
		trace.WithAttributes(
			attribute.String("mode", string(mode)),
			attribute.String("tenant.id", tenantID),
		),
	)
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if requestID == "" {
		requestID = uuid.New().String()
	}

	result, err := a.aggregator.Aggregate(req, mode)
	if err != nil {
		return nil, err
	}

	band, action, err := a.bands.Classify(result.RiskScore)
	if err != nil {
		return nil, err
	}

	drivers, citation := Explain(result.Fired)

	return &domain.DecisionRecord{
		RequestID:         requestID,
		TenantID:          tenantID,
		Mode:              mode,
		RiskScore:         result.RiskScore,
		RiskBand:          band,
		RecommendedAction: action,
		TopDrivers:        drivers,
		PolicyCitation:    citation,
		MLScore:           result.AuxScore,
	}, nil
}
