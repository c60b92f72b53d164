package quote

import (
	"strings"
	"time"
)

const maxAge = 150

var requiredFields = []string{FieldUnitName, FieldArrival, FieldDeparture, FieldOccupants, FieldAges}

// Validator checks raw quote requests against the unit catalog.
type Validator struct {
	Catalog Catalog
}

// Validate returns every rule violation in raw; an empty result means valid.
func (v Validator) Validate(raw map[string]any) []string {
	_, errs := v.Parse(raw)
	return errs
}

// Parse validates raw and returns the typed request. The request is only
// meaningful when the returned error list is empty.
func (v Validator) Parse(raw map[string]any) (Request, []string) {
	var (
		req  Request
		errs []string
	)

	for _, field := range requiredFields {
		if blank(raw[field]) {
			errs = append(errs, field+" is required")
		}
	}

	if name := raw[FieldUnitName]; !blank(name) {
		s, ok := name.(string)
		switch {
		case !ok:
			errs = append(errs, "Unit Name must be a string")
		case !v.Catalog.Has(s):
			errs = append(errs, "Unit Name must be one of: "+strings.Join(v.Catalog.Names(), ", "))
		default:
			req.UnitName = s
		}
	}

	var arrivalOK, departureOK bool
	req.ArrivalText, req.Arrival, arrivalOK = dateField(raw, FieldArrival, &errs)
	req.DepartureText, req.Departure, departureOK = dateField(raw, FieldDeparture, &errs)
	if arrivalOK && departureOK && !req.Departure.After(req.Arrival) {
		errs = append(errs, "Departure date must be after arrival date")
	}

	occupantsOK := false
	if occ := raw[FieldOccupants]; !blank(occ) {
		n, ok := integer(occ)
		if !ok || n <= 0 {
			errs = append(errs, "Occupants must be a positive integer")
		} else {
			req.Occupants = n
			occupantsOK = true
		}
	}

	if ages := raw[FieldAges]; !blank(ages) {
		list, ok := ages.([]any)
		if !ok {
			errs = append(errs, "Ages must be an array")
		} else {
			req.Ages = make([]int, 0, len(list))
			for _, a := range list {
				f, ok := number(a)
				if !ok || f < 0 || f > maxAge {
					errs = append(errs, "All ages must be between 0 and 150")
					break
				}
				req.Ages = append(req.Ages, int(f))
			}
			if occupantsOK && len(list) != req.Occupants {
				errs = append(errs, "Number of ages must match number of occupants")
			}
		}
	}

	return req, errs
}

func dateField(raw map[string]any, field string, errs *[]string) (string, time.Time, bool) {
	v := raw[field]
	if blank(v) {
		return "", time.Time{}, false
	}
	s, _ := v.(string)
	t, err := ParseDisplayDate(s)
	if err != nil {
		*errs = append(*errs, field+" date must be in dd/mm/yyyy format")
		return "", time.Time{}, false
	}
	return s, t, true
}

// blank reports whether a required value is missing, null, empty or an empty list.
func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}
