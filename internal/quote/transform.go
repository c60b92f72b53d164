package quote

import "github.com/alex-user-go/rates/internal/vendor"

// AdultAge is the age from which a guest counts as an adult.
const AdultAge = 18

// Transform converts a validated request into the vendor payload. Guests keep
// the order of the request ages. A unit missing from the catalog falls back to
// the first declared unit.
func Transform(req Request, catalog Catalog) vendor.Request {
	code, ok := catalog.Lookup(req.UnitName)
	if !ok {
		if first, found := catalog.First(); found {
			code = first.Code
		}
	}

	guests := make([]vendor.Guest, 0, len(req.Ages))
	for _, age := range req.Ages {
		group := vendor.AgeGroupChild
		if age >= AdultAge {
			group = vendor.AgeGroupAdult
		}
		guests = append(guests, vendor.Guest{AgeGroup: group})
	}

	return vendor.Request{
		UnitTypeID: code,
		Arrival:    FormatVendorDate(req.Arrival),
		Departure:  FormatVendorDate(req.Departure),
		Guests:     guests,
	}
}
