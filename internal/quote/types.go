package quote

import "time"

// Request field names as sent by the booking widget.
const (
	FieldUnitName  = "Unit Name"
	FieldArrival   = "Arrival"
	FieldDeparture = "Departure"
	FieldOccupants = "Occupants"
	FieldAges      = "Ages"
)

// Request is a validated quote request.
type Request struct {
	UnitName string
	// ArrivalText and DepartureText keep the dd/mm/yyyy form for echoing back.
	ArrivalText   string
	DepartureText string
	Arrival       time.Time
	Departure     time.Time
	Occupants     int
	Ages          []int
}

// DateRange echoes the requested stay in display form.
type DateRange struct {
	Arrival   string `json:"arrival"`
	Departure string `json:"departure"`
}

// Quote is the canonical availability and price answer for one unit.
type Quote struct {
	UnitName     string    `json:"unit_name"`
	Rate         *float64  `json:"rate"`
	Currency     string    `json:"currency"`
	Availability bool      `json:"availability"`
	DateRange    DateRange `json:"date_range"`
	RawResponse  any       `json:"original_response"`
}
