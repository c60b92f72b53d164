package quote_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/alex-user-go/rates/internal/quote"
	"github.com/alex-user-go/rates/internal/vendor"
)

func TestTransform(t *testing.T) {
	arrival := time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)
	departure := time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		unit       string
		ages       []int
		wantCode   int64
		wantGuests []vendor.Guest
	}{
		{
			name:     "adults and children keep order",
			unit:     "Deluxe Unit",
			ages:     []int{25, 17, 18, 0},
			wantCode: -2147483456,
			wantGuests: []vendor.Guest{
				{AgeGroup: "Adult"},
				{AgeGroup: "Child"},
				{AgeGroup: "Adult"},
				{AgeGroup: "Child"},
			},
		},
		{
			name:       "unknown unit falls back to first declared",
			unit:       "Penthouse",
			ages:       []int{40},
			wantCode:   -2147483637,
			wantGuests: []vendor.Guest{{AgeGroup: "Adult"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quote.Transform(quote.Request{
				UnitName:  tt.unit,
				Arrival:   arrival,
				Departure: departure,
				Occupants: len(tt.ages),
				Ages:      tt.ages,
			}, quote.DefaultCatalog())

			want := vendor.Request{
				UnitTypeID: tt.wantCode,
				Arrival:    "2024-01-25",
				Departure:  "2024-01-28",
				Guests:     tt.wantGuests,
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("Transform() = %+v, want %+v", got, want)
			}
		})
	}
}
