package quote

import (
	"encoding/json"
	"strings"
)

// DefaultCurrency is used unless the vendor names one.
const DefaultCurrency = "NAD"

// Vendor field names.
const (
	fieldErrorCode   = "Error Code"
	fieldTotalCharge = "Total Charge"
	fieldDailyRate   = "Effective Average Daily Rate"
	fieldLegs        = "Legs"
	fieldCurrency    = "Currency"
)

// minorUnitThreshold is the magnitude from which vendor amounts are read as
// cents and divided by 100. Changing it changes every displayed price.
const minorUnitThreshold = 1000

// Fragment is the part of a Quote derived from the vendor response.
type Fragment struct {
	Rate      *float64
	Currency  string
	Available bool
	// Signalled is false when no availability field, error code, positive
	// charge or legs were found and Available is only the fallback.
	Signalled bool
	Raw       any
}

// Normalize reduces a vendor body to a quote fragment. An unpriced response is
// never available.
func Normalize(b Body) Fragment {
	frag := Fragment{Currency: DefaultCurrency, Raw: b.raw()}

	cand, ok := SelectCandidate(b)
	if !ok {
		return frag
	}
	frag.Raw = cand.raw()
	frag.Available, frag.Signalled = availability(cand)

	if c, ok := cand[fieldCurrency].(string); ok && strings.TrimSpace(c) != "" {
		frag.Currency = strings.ToUpper(strings.TrimSpace(c))
	}

	rate, ok := extractRate(cand)
	if !ok {
		frag.Available = false
		return frag
	}
	frag.Rate = &rate
	return frag
}

// availability applies the vendor signals in priority order: explicit flag,
// error code, positive total charge, then any available leg.
func availability(cand Object) (available, signalled bool) {
	for _, key := range []string{"available", "availability"} {
		if v, ok := cand[key].(bool); ok {
			return v, true
		}
	}
	if code, ok := cand[fieldErrorCode]; ok {
		return zeroCode(code), true
	}
	if total, ok := number(cand[fieldTotalCharge]); ok && total > 0 {
		return true, true
	}
	if legs, ok := legsOf(cand); ok {
		for _, leg := range legs {
			if legAvailable(leg) {
				return true, true
			}
		}
		return false, true
	}
	return false, false
}

func legAvailable(leg Object) bool {
	if code, ok := leg[fieldErrorCode]; ok && zeroCode(code) {
		return true
	}
	total, ok := number(leg[fieldTotalCharge])
	return ok && total > 0
}

// zeroCode accepts numeric 0 and the string "0".
func zeroCode(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "0"
	case json.Number, float64, float32, int, int64:
		f, ok := number(t)
		return ok && f == 0
	}
	return false
}

// extractRate resolves the stay total in major units.
func extractRate(cand Object) (float64, bool) {
	amount, ok := number(cand[fieldTotalCharge])
	if !ok {
		amount, ok = number(cand[fieldDailyRate])
	}

	if legs, found := legsOf(cand); found {
		var sum float64
		for _, leg := range legs {
			if v, numeric := number(leg[fieldTotalCharge]); numeric {
				sum += v
			}
		}
		if sum > 0 {
			amount, ok = sum, true
		}
	}

	if !ok {
		return 0, false
	}
	return toMajorUnits(amount), true
}

func toMajorUnits(v float64) float64 {
	if v >= minorUnitThreshold {
		return v / 100
	}
	return v
}

func legsOf(cand Object) ([]Object, bool) {
	v, ok := cand[fieldLegs]
	if !ok {
		return nil, false
	}
	seq, ok := classify(v).(Sequence)
	if !ok {
		return nil, false
	}
	legs := make([]Object, 0, len(seq))
	for _, item := range seq {
		if obj, ok := item.(Object); ok {
			legs = append(legs, obj)
		}
	}
	return legs, true
}
