package decision

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Explain converts fired rules into the ordered driver list and the
// single policy citation. Drivers follow ascending rule priority, not
// score magnitude and not evaluation insertion order. The citation is
// the policy id of the fired rule with the lowest priority value; an
// empty fired list yields the default citation and no drivers, which
// is a defined outcome, not an error.
func Explain(fired []domain.FiredRule) (drivers []string, citation string) {
	if len(fired) == 0 {
		return nil, domain.DefaultCitation
	}

	ordered := make([]domain.FiredRule, len(fired))
	copy(ordered, fired)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	drivers = make([]string, len(ordered))
	for i, f := range ordered {
		drivers[i] = f.Driver
	}

	return drivers, ordered[0].PolicyID
}
