package quote

import (
	"fmt"
	"time"
)

const (
	// DisplayLayout is the dd/mm/yyyy form used by the booking widget.
	DisplayLayout = "02/01/2006"
	// VendorLayout is the ISO date form the vendor expects.
	VendorLayout = "2006-01-02"
)

// ParseDisplayDate parses a dd/mm/yyyy date. Values that do not format back to
// the exact input (out-of-range days, missing zero padding) are rejected.
func ParseDisplayDate(s string) (time.Time, error) {
	t, err := time.Parse(DisplayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if t.Format(DisplayLayout) != s {
		return time.Time{}, fmt.Errorf("parse %q: not a calendar date in dd/mm/yyyy form", s)
	}
	return t, nil
}

// FormatVendorDate renders t as yyyy-mm-dd.
func FormatVendorDate(t time.Time) string {
	return t.Format(VendorLayout)
}
