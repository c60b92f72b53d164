package quote_test

import (
	"reflect"
	"testing"

	"github.com/alex-user-go/rates/internal/quote"
)

func ptr(f float64) *float64 { return &f }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantRate      *float64
		wantCurrency  string
		wantAvailable bool
		wantSignalled bool
	}{
		{
			name:          "flat object",
			body:          `{"Error Code":0,"Total Charge":130000}`,
			wantRate:      ptr(1300),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "array with leading token",
			body:          `["token",{"Error Code":0,"Total Charge":50000}]`,
			wantRate:      ptr(500),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "index-keyed object behaves like a list",
			body:          `{"0":"token","1":{"Error Code":0,"Total Charge":50000}}`,
			wantRate:      ptr(500),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "last object wins when scanning from the end",
			body:          `[{"Error Code":0,"Total Charge":20000},{"Error Code":0,"Total Charge":40000},"tail"]`,
			wantRate:      ptr(400),
			wantAvailable: true,
			wantSignalled: true,
		},
		{name: "bare string", body: `"ERROR"`},
		{name: "not json", body: `<html>bad gateway</html>`},
		{name: "null", body: `null`},
		{name: "number", body: `42`},
		{name: "empty object", body: `{}`},
		{name: "empty list", body: `[]`},
		{name: "list of scalars", body: `["a","b"]`},
		{
			name:          "error code wins over positive charge",
			body:          `{"Error Code":1,"Total Charge":5000}`,
			wantRate:      ptr(50),
			wantAvailable: false,
			wantSignalled: true,
		},
		{
			name:          "zero code with zero charge",
			body:          `{"Error Code":0,"Total Charge":0}`,
			wantRate:      ptr(0),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "string zero error code",
			body:          `{"Error Code":"0","Total Charge":"130000"}`,
			wantRate:      ptr(1300),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "explicit flag beats error code",
			body:          `{"available":false,"Error Code":0,"Total Charge":130000}`,
			wantRate:      ptr(1300),
			wantAvailable: false,
			wantSignalled: true,
		},
		{
			name:          "availability flag alias",
			body:          `{"availability":true,"Total Charge":900}`,
			wantRate:      ptr(900),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "unpriced available response is not available",
			body:          `{"available":true}`,
			wantAvailable: false,
			wantSignalled: true,
		},
		{
			name:          "positive charge without error code",
			body:          `{"Total Charge":250000}`,
			wantRate:      ptr(2500),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "daily rate fallback carries no signal",
			body:          `{"Effective Average Daily Rate":45000}`,
			wantRate:      ptr(450),
			wantAvailable: false,
			wantSignalled: false,
		},
		{
			name:          "non-numeric total falls back to daily rate",
			body:          `{"Error Code":0,"Total Charge":"n/a","Effective Average Daily Rate":"45000"}`,
			wantRate:      ptr(450),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "any available leg makes the stay available",
			body:          `{"Legs":[{"Error Code":1,"Total Charge":30000},{"Error Code":0,"Total Charge":20000}]}`,
			wantRate:      ptr(500),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "legs without availability",
			body:          `{"Legs":[{"Error Code":2},{"Error Code":"3"}]}`,
			wantAvailable: false,
			wantSignalled: true,
		},
		{
			name:          "leg sum supersedes top-level total",
			body:          `{"Total Charge":1000,"Legs":[{"Total Charge":20000},{"Total Charge":"10000"}]}`,
			wantRate:      ptr(300),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "zero leg sum keeps top-level total",
			body:          `{"Error Code":0,"Total Charge":70000,"Legs":[{"Total Charge":0}]}`,
			wantRate:      ptr(700),
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "vendor currency is upper-cased",
			body:          `{"Error Code":0,"Total Charge":130000,"Currency":"usd"}`,
			wantRate:      ptr(1300),
			wantCurrency:  "USD",
			wantAvailable: true,
			wantSignalled: true,
		},
		{
			name:          "flag that is not a bool is ignored",
			body:          `{"available":"yes","Error Code":0,"Total Charge":130000}`,
			wantRate:      ptr(1300),
			wantAvailable: true,
			wantSignalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quote.Normalize(quote.DecodeBody([]byte(tt.body)))

			if !reflect.DeepEqual(got.Rate, tt.wantRate) {
				t.Errorf("Rate = %v, want %v", deref(got.Rate), deref(tt.wantRate))
			}
			wantCurrency := tt.wantCurrency
			if wantCurrency == "" {
				wantCurrency = quote.DefaultCurrency
			}
			if got.Currency != wantCurrency {
				t.Errorf("Currency = %q, want %q", got.Currency, wantCurrency)
			}
			if got.Available != tt.wantAvailable {
				t.Errorf("Available = %v, want %v", got.Available, tt.wantAvailable)
			}
			if got.Signalled != tt.wantSignalled {
				t.Errorf("Signalled = %v, want %v", got.Signalled, tt.wantSignalled)
			}
		})
	}
}

func deref(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func TestNormalize_MinorUnitThreshold(t *testing.T) {
	tests := []struct {
		charge string
		want   float64
	}{
		{charge: "999", want: 999},
		{charge: "999.99", want: 999.99},
		{charge: "1000", want: 10},
		{charge: "1001", want: 10.01},
		{charge: "130000", want: 1300},
	}

	for _, tt := range tests {
		t.Run(tt.charge, func(t *testing.T) {
			got := quote.Normalize(quote.DecodeBody([]byte(`{"Error Code":0,"Total Charge":` + tt.charge + `}`)))
			if got.Rate == nil || *got.Rate != tt.want {
				t.Errorf("Rate = %v, want %v", deref(got.Rate), tt.want)
			}
		})
	}
}

func TestNormalize_FlatAndWrappedAgree(t *testing.T) {
	objects := []string{
		`{"Error Code":0,"Total Charge":130000}`,
		`{"Error Code":1,"Total Charge":5000}`,
		`{"Effective Average Daily Rate":45000,"Currency":"zar"}`,
		`{"Legs":[{"Error Code":0,"Total Charge":20000}]}`,
		`{"available":true}`,
	}

	for _, obj := range objects {
		t.Run(obj, func(t *testing.T) {
			flat := quote.Normalize(quote.DecodeBody([]byte(obj)))
			wrapped := quote.Normalize(quote.DecodeBody([]byte("[" + obj + "]")))

			if !reflect.DeepEqual(flat, wrapped) {
				t.Errorf("flat %+v != wrapped %+v", flat, wrapped)
			}
		})
	}
}

func TestNormalize_RawResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{name: "invalid json keeps text", body: `oops`, want: "oops"},
		{name: "bare string", body: `"ERROR"`, want: "ERROR"},
		{name: "candidate is echoed", body: `["t",{"Error Code":0}]`, want: map[string]any{"Error Code": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := quote.Normalize(quote.DecodeBody([]byte(tt.body)))
			if m, ok := got.Raw.(map[string]any); ok {
				// json.Number renders like the source text
				norm := make(map[string]any, len(m))
				for k, v := range m {
					norm[k] = stringify(v)
				}
				got.Raw = norm
			}
			if !reflect.DeepEqual(got.Raw, tt.want) {
				t.Errorf("Raw = %#v, want %#v", got.Raw, tt.want)
			}
		})
	}
}

func stringify(v any) any {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return v
}

func TestSelectCandidate(t *testing.T) {
	seq := quote.Sequence{
		quote.Object{"Total Charge": 1},
		quote.Object{},
		quote.Primitive{Value: "tail"},
	}
	cand, ok := quote.SelectCandidate(seq)
	if !ok {
		t.Fatal("SelectCandidate() found nothing")
	}
	if cand["Total Charge"] != 1 {
		t.Errorf("SelectCandidate() = %v", cand)
	}

	if _, ok := quote.SelectCandidate(quote.Primitive{Value: nil}); ok {
		t.Error("primitive yielded a candidate")
	}
}
