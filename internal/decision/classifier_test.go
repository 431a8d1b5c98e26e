package decision

import (
	"errors"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestDefaultBandTable(t *testing.T) {
	table, err := NewBandTable(DefaultBandRanges())
	if err != nil {
		t.Fatalf("NewBandTable failed: %v", err)
	}

	t.Run("EveryScoreCovered", func(t *testing.T) {
		// Exhaustive: all 101 scores map to exactly one band.
		for score := 0; score <= 100; score++ {
			band, action, err := table.Classify(score)
			if err != nil {
				t.Fatalf("Classify(%d) failed: %v", score, err)
			}

			var want domain.Band
			var wantAction domain.Action
			switch {
			case score <= 34:
				want, wantAction = domain.BandGreen, domain.ActionApprove
			case score <= 64:
				want, wantAction = domain.BandAmber, domain.ActionReview
			default:
				want, wantAction = domain.BandRed, domain.ActionDecline
			}

			if band != want {
				t.Errorf("Classify(%d) = %s, want %s", score, band, want)
			}
			if action != wantAction {
				t.Errorf("Classify(%d) action = %s, want %s", score, action, wantAction)
			}
		}
	})

	t.Run("Boundaries", func(t *testing.T) {
		cases := []struct {
			score int
			band  domain.Band
		}{
			{0, domain.BandGreen},
			{34, domain.BandGreen},
			{35, domain.BandAmber},
			{64, domain.BandAmber},
			{65, domain.BandRed},
			{100, domain.BandRed},
		}

		for _, c := range cases {
			band, _, err := table.Classify(c.score)
			if err != nil {
				t.Fatalf("Classify(%d) failed: %v", c.score, err)
			}
			if band != c.band {
				t.Errorf("Classify(%d) = %s, want %s", c.score, band, c.band)
			}
		}
	})

	t.Run("OutOfRangeIsInvariantError", func(t *testing.T) {
		for _, score := range []int{-1, 101, 500} {
			_, _, err := table.Classify(score)
			if err == nil {
				t.Errorf("expected error for score %d", score)
				continue
			}
			var ierr *domain.InvariantError
			if !errors.As(err, &ierr) {
				t.Errorf("expected InvariantError for score %d, got %T", score, err)
			}
		}
	})
}

func TestNewBandTableValidation(t *testing.T) {
	cases := []struct {
		name   string
		ranges []BandRange
	}{
		{
			name:   "Empty",
			ranges: nil,
		},
		{
			name: "GapAtStart",
			ranges: []BandRange{
				{Band: domain.BandGreen, Action: domain.ActionApprove, Min: 1, Max: 100},
			},
		},
		{
			name: "ShortAtEnd",
			ranges: []BandRange{
				{Band: domain.BandGreen, Action: domain.ActionApprove, Min: 0, Max: 99},
			},
		},
		{
			name: "GapBetween",
			ranges: []BandRange{
				{Band: domain.BandGreen, Action: domain.ActionApprove, Min: 0, Max: 34},
				{Band: domain.BandRed, Action: domain.ActionDecline, Min: 36, Max: 100},
			},
		},
		{
			name: "Overlap",
			ranges: []BandRange{
				{Band: domain.BandGreen, Action: domain.ActionApprove, Min: 0, Max: 40},
				{Band: domain.BandRed, Action: domain.ActionDecline, Min: 35, Max: 100},
			},
		},
		{
			name: "Inverted",
			ranges: []BandRange{
				{Band: domain.BandGreen, Action: domain.ActionApprove, Min: 0, Max: 34},
				{Band: domain.BandAmber, Action: domain.ActionReview, Min: 64, Max: 35},
				{Band: domain.BandRed, Action: domain.ActionDecline, Min: 65, Max: 100},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewBandTable(c.ranges)
			if err == nil {
				t.Fatal("expected configuration error")
			}
			var cerr *domain.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Errorf("expected ConfigurationError, got %T: %v", err, err)
			}
		})
	}
}

func TestExplain(t *testing.T) {
	t.Run("EmptyFiredIsDefaultCitation", func(t *testing.T) {
		drivers, citation := Explain(nil)
		if len(drivers) != 0 {
			t.Errorf("expected no drivers, got %v", drivers)
		}
		if citation != domain.DefaultCitation {
			t.Errorf("expected default citation, got %q", citation)
		}
	})

	t.Run("OrderedByPriority", func(t *testing.T) {
		fired := []domain.FiredRule{
			{RuleID: "c", Priority: 300, Driver: "third", PolicyID: "PX-ADV-07"},
			{RuleID: "a", Priority: 100, Driver: "first", PolicyID: "PX-ADV-01"},
			{RuleID: "b", Priority: 200, Driver: "second", PolicyID: "PX-ADV-04"},
		}

		drivers, citation := Explain(fired)

		want := []string{"first", "second", "third"}
		for i, d := range want {
			if drivers[i] != d {
				t.Errorf("drivers[%d] = %q, want %q", i, drivers[i], d)
			}
		}
		if citation != "PX-ADV-01" {
			t.Errorf("expected citation from lowest priority value, got %s", citation)
		}
	})

	t.Run("DoesNotMutateInput", func(t *testing.T) {
		fired := []domain.FiredRule{
			{RuleID: "b", Priority: 200},
			{RuleID: "a", Priority: 100},
		}

		Explain(fired)

		if fired[0].RuleID != "b" {
			t.Error("expected input slice to be untouched")
		}
	})
}
