// Package decision maps risk scores to bands and assembles decision
// records.
package decision

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// BandRange maps an inclusive integer score range to a band and its
// recommended action.
type BandRange struct {
	Band   domain.Band   `json:"band"`
	Action domain.Action `json:"action"`
	Min    int           `json:"min"`
	Max    int           `json:"max"`
}

// BandTable is the single source of truth for score-to-band mapping.
// Validated at construction: the ranges must partition
// [MinScore, MaxScore] exactly, no gap, no overlap.
type BandTable struct {
	ranges []BandRange
}

// DefaultBandRanges returns the standard advance-policy thresholds.
func DefaultBandRanges() []BandRange {
	return []BandRange{
		{Band: domain.BandGreen, Action: domain.ActionApprove, Min: 0, Max: 34},
		{Band: domain.BandAmber, Action: domain.ActionReview, Min: 35, Max: 64},
		{Band: domain.BandRed, Action: domain.ActionDecline, Min: 65, Max: 100},
	}
}

// NewBandTable validates the ranges and returns an immutable table.
// Returns a ConfigurationError when the ranges fail to partition the
// score domain.
func NewBandTable(ranges []BandRange) (*BandTable, error) {
	if len(ranges) == 0 {
		return nil, &domain.ConfigurationError{Component: "band table", Reason: "no band ranges"}
	}

	if ranges[0].Min != scoring.MinScore {
		return nil, &domain.ConfigurationError{
			Component: "band table",
			Reason:    fmt.Sprintf("first range starts at %d, want %d", ranges[0].Min, scoring.MinScore),
		}
	}
	if ranges[len(ranges)-1].Max != scoring.MaxScore {
		return nil, &domain.ConfigurationError{
			Component: "band table",
			Reason:    fmt.Sprintf("last range ends at %d, want %d", ranges[len(ranges)-1].Max, scoring.MaxScore),
		}
	}

	for i, r := range ranges {
		if r.Min > r.Max {
			return nil, &domain.ConfigurationError{
				Component: "band table",
				Reason:    fmt.Sprintf("band %s has inverted range [%d,%d]", r.Band, r.Min, r.Max),
			}
		}
		if i > 0 && r.Min != ranges[i-1].Max+1 {
			return nil, &domain.ConfigurationError{
				Component: "band table",
				Reason: fmt.Sprintf("gap or overlap between %s (ends %d) and %s (starts %d)",
					ranges[i-1].Band, ranges[i-1].Max, r.Band, r.Min),
			}
		}
	}

	out := make([]BandRange, len(ranges))
	copy(out, ranges)
	return &BandTable{ranges: out}, nil
}

// Classify maps a score to its band and action. A score outside
// [MinScore, MaxScore] is a logic defect upstream (the aggregator
// clamps), reported as an InvariantError.
func (t *BandTable) Classify(score int) (domain.Band, domain.Action, error) {
	if score < scoring.MinScore || score > scoring.MaxScore {
		return "", "", &domain.InvariantError{
			Invariant: "score range",
			Detail:    fmt.Sprintf("score %d outside [%d,%d]", score, scoring.MinScore, scoring.MaxScore),
		}
	}

	for _, r := range t.ranges {
		if score >= r.Min && score <= r.Max {
			return r.Band, r.Action, nil
		}
	}

	// Unreachable when construction validated the partition.
	return "", "", &domain.InvariantError{
		Invariant: "band partition",
		Detail:    fmt.Sprintf("no band covers score %d", score),
	}
}

// Ranges returns a copy of the table's ranges.
func (t *BandTable) Ranges() []BandRange {
	out := make([]BandRange, len(t.ranges))
	copy(out, t.ranges)
	return out
}
