package quote

// AvailabilityPolicy decides the final availability of a quote from the
// normalized vendor fragment. The vendor under-reports availability, so the
// orchestrator applies a policy instead of trusting the fragment blindly.
type AvailabilityPolicy interface {
	Apply(unitName string, frag Fragment) bool
}

// PricedPolicy promotes priced quotes to available. Units listed in
// AlwaysAvailable are promoted whenever the vendor said no; other units only
// when the vendor gave no availability signal at all.
type PricedPolicy struct {
	AlwaysAvailable map[string]struct{}
}

// NewPricedPolicy returns a PricedPolicy for the given always-available units.
func NewPricedPolicy(alwaysAvailable ...string) PricedPolicy {
	set := make(map[string]struct{}, len(alwaysAvailable))
	for _, u := range alwaysAvailable {
		set[u] = struct{}{}
	}
	return PricedPolicy{AlwaysAvailable: set}
}

func (p PricedPolicy) Apply(unitName string, frag Fragment) bool {
	if frag.Available {
		return true
	}
	if frag.Rate == nil || *frag.Rate <= 0 {
		return false
	}
	if _, ok := p.AlwaysAvailable[unitName]; ok {
		return true
	}
	return !frag.Signalled
}

// NoOverride reports the vendor's availability unchanged.
type NoOverride struct{}

func (NoOverride) Apply(_ string, frag Fragment) bool {
	return frag.Available
}
