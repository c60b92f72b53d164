package quote_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alex-user-go/rates/internal/obs"
	"github.com/alex-user-go/rates/internal/quote"
	"github.com/alex-user-go/rates/internal/quote/cache"
	"github.com/alex-user-go/rates/internal/vendor"
)

type stubGateway struct {
	body  string
	err   error
	calls atomic.Int32
	last  vendor.Request
}

func (g *stubGateway) Name() string { return "stub" }

func (g *stubGateway) Call(_ context.Context, req vendor.Request) ([]byte, error) {
	g.calls.Add(1)
	g.last = req
	if g.err != nil {
		return nil, g.err
	}
	return []byte(g.body), nil
}

func newService(gw vendor.Gateway, bodyCache *cache.Cache[[]byte]) (*quote.Service, *obs.Metrics) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := obs.NewMetrics(logger)
	svc := quote.NewService(quote.DefaultCatalog(), gw, quote.NewPricedPolicy(), bodyCache, metrics, logger)
	return svc, metrics
}

func TestService_Quote(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantRate  *float64
		wantAvail bool
	}{
		{
			name:      "flat vendor response",
			body:      `{"Error Code":0,"Total Charge":130000}`,
			wantRate:  ptr(1300),
			wantAvail: true,
		},
		{
			name:      "ambiguous array response",
			body:      `["token",{"Error Code":0,"Total Charge":50000}]`,
			wantRate:  ptr(500),
			wantAvail: true,
		},
		{
			name:      "unparseable response degrades",
			body:      `"ERROR"`,
			wantRate:  nil,
			wantAvail: false,
		},
		{
			name:      "priced response without signal is promoted",
			body:      `{"Effective Average Daily Rate":45000}`,
			wantRate:  ptr(450),
			wantAvail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &stubGateway{body: tt.body}
			svc, _ := newService(gw, nil)

			res, err := svc.Quote(context.Background(), validRaw())
			if err != nil {
				t.Fatalf("Quote() error = %v", err)
			}
			if len(res.Quotes) != 1 {
				t.Fatalf("Quote() returned %d quotes, want 1", len(res.Quotes))
			}

			q := res.Quotes[0]
			if deref(q.Rate) != deref(tt.wantRate) {
				t.Errorf("Rate = %v, want %v", deref(q.Rate), deref(tt.wantRate))
			}
			if q.Availability != tt.wantAvail {
				t.Errorf("Availability = %v, want %v", q.Availability, tt.wantAvail)
			}
			if q.UnitName != "Standard Unit" || q.Currency != "NAD" {
				t.Errorf("quote = %+v", q)
			}
			if q.DateRange != (quote.DateRange{Arrival: "25/01/2024", Departure: "28/01/2024"}) {
				t.Errorf("DateRange = %+v", q.DateRange)
			}
			if res.Source != "stub" {
				t.Errorf("Source = %q", res.Source)
			}
			if gw.last.UnitTypeID != -2147483637 || gw.last.Arrival != "2024-01-25" {
				t.Errorf("vendor request = %+v", gw.last)
			}
		})
	}
}

func TestService_Quote_ValidationError(t *testing.T) {
	gw := &stubGateway{body: `{}`}
	svc, metrics := newService(gw, nil)

	_, err := svc.Quote(context.Background(), with(map[string]any{"Ages": nil, "Unit Name": "Penthouse"}))

	var verr *quote.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Quote() error = %v, want *ValidationError", err)
	}
	if len(verr.Details) != 2 {
		t.Errorf("Details = %v, want 2 entries", verr.Details)
	}
	if gw.calls.Load() != 0 {
		t.Error("vendor called for an invalid request")
	}
	if metrics.Snapshot().ValidationErrors != 1 {
		t.Error("validation error not counted")
	}
}

func TestService_Quote_TransportFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "typed failure passes through", err: &vendor.TransportFailure{StatusCode: 503, Err: errors.New("down")}},
		{name: "plain error is wrapped", err: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, metrics := newService(&stubGateway{err: tt.err}, nil)

			_, err := svc.Quote(context.Background(), validRaw())

			var failure *vendor.TransportFailure
			if !errors.As(err, &failure) {
				t.Fatalf("Quote() error = %v, want *TransportFailure", err)
			}
			if metrics.Snapshot().VendorErrors != 1 {
				t.Error("vendor error not counted")
			}
		})
	}
}

func TestService_Quote_Cache(t *testing.T) {
	bodyCache := cache.New[[]byte](time.Minute)
	defer bodyCache.Close()

	gw := &stubGateway{body: `{"Error Code":0,"Total Charge":130000}`}
	svc, metrics := newService(gw, bodyCache)

	first, err := svc.Quote(context.Background(), validRaw())
	if err != nil {
		t.Fatalf("first Quote() error = %v", err)
	}
	second, err := svc.Quote(context.Background(), validRaw())
	if err != nil {
		t.Fatalf("second Quote() error = %v", err)
	}

	if first.CacheHit || !second.CacheHit {
		t.Errorf("cache hits = %v/%v, want false/true", first.CacheHit, second.CacheHit)
	}
	if gw.calls.Load() != 1 {
		t.Errorf("vendor called %d times, want 1", gw.calls.Load())
	}
	if metrics.Snapshot().CacheHits != 1 {
		t.Error("cache hit not counted")
	}

	other := with(map[string]any{"Unit Name": "Deluxe Unit"})
	if _, err := svc.Quote(context.Background(), other); err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if gw.calls.Load() != 2 {
		t.Errorf("different payload reused a cached body")
	}
}

// blockingGateway holds every call until release is closed and fails when the
// call's context was cancelled meanwhile.
type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *blockingGateway) Name() string { return "stub" }

func (g *blockingGateway) Call(ctx context.Context, _ vendor.Request) ([]byte, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, &vendor.TransportFailure{Err: err}
	}
	return []byte(`{"Error Code":0,"Total Charge":130000}`), nil
}

func TestService_Quote_CollapsedCallSurvivesFirstCallerLeaving(t *testing.T) {
	bodyCache := cache.New[[]byte](time.Minute)
	defer bodyCache.Close()

	gw := &blockingGateway{entered: make(chan struct{}), release: make(chan struct{})}
	svc, _ := newService(gw, bodyCache)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.Quote(firstCtx, validRaw())
		firstDone <- err
	}()
	<-gw.entered

	secondDone := make(chan error, 1)
	go func() {
		res, err := svc.Quote(context.Background(), validRaw())
		if err == nil && (len(res.Quotes) != 1 || res.Quotes[0].Rate == nil || *res.Quotes[0].Rate != 1300) {
			err = errors.New("unexpected quote")
		}
		secondDone <- err
	}()

	// The first client disconnects while the vendor call is in flight.
	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(gw.release)

	if err := <-secondDone; err != nil {
		t.Errorf("waiting caller got %v, want the shared vendor result", err)
	}
	if err := <-firstDone; err != nil {
		t.Errorf("first caller got %v", err)
	}
	if gw.calls.Load() != 1 {
		t.Errorf("vendor called %d times, want 1", gw.calls.Load())
	}
}

func TestService_Inspect(t *testing.T) {
	svc, _ := newService(&stubGateway{}, nil)

	valid := svc.Inspect(validRaw())
	if !valid.Validation.Valid || len(valid.Validation.Errors) != 0 {
		t.Errorf("Inspect(valid) = %+v", valid.Validation)
	}
	if valid.Payload == nil || len(valid.Payload.Guests) != 2 {
		t.Errorf("Payload = %+v", valid.Payload)
	}

	invalid := svc.Inspect(map[string]any{})
	if invalid.Validation.Valid || len(invalid.Validation.Errors) != 5 {
		t.Errorf("Inspect(empty) = %+v", invalid.Validation)
	}
	if invalid.Payload != nil {
		t.Error("invalid request produced a payload")
	}
	if invalid.Validation.Errors == nil {
		t.Error("Errors must encode as a list, not null")
	}
}
