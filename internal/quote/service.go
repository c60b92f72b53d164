package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alex-user-go/rates/internal/obs"
	"github.com/alex-user-go/rates/internal/quote/cache"
	"github.com/alex-user-go/rates/internal/vendor"
)

// ValidationError carries every rule violation found in a request.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// Result is the outcome of a successful quote.
type Result struct {
	Quotes   []Quote
	Source   string
	CacheHit bool
}

// Diagnostics describes how a request would be processed without calling the vendor.
type Diagnostics struct {
	Validation ValidationReport `json:"validation"`
	Payload    *vendor.Request  `json:"transformed_payload,omitempty"`
}

// ValidationReport is the validator outcome in diagnostic form.
type ValidationReport struct {
	Valid  bool     `json:"is_valid"`
	Errors []string `json:"errors"`
}

// Service orchestrates validation, the vendor call and normalization.
type Service struct {
	catalog   Catalog
	validator Validator
	gateway   vendor.Gateway
	policy    AvailabilityPolicy
	cache     *cache.Cache[[]byte]
	metrics   *obs.Metrics
	logger    *slog.Logger
}

// NewService creates a new Service. bodyCache may be nil to disable caching.
func NewService(
	catalog Catalog,
	gateway vendor.Gateway,
	policy AvailabilityPolicy,
	bodyCache *cache.Cache[[]byte],
	metrics *obs.Metrics,
	logger *slog.Logger,
) *Service {
	if policy == nil {
		policy = NoOverride{}
	}
	return &Service{
		catalog:   catalog,
		validator: Validator{Catalog: catalog},
		gateway:   gateway,
		policy:    policy,
		cache:     bodyCache,
		metrics:   metrics,
		logger:    logger,
	}
}

// Source names the gateway answering quotes.
func (s *Service) Source() string {
	return s.gateway.Name()
}

// Quote runs the full pipeline for one raw request. It returns a
// *ValidationError for bad input and a *vendor.TransportFailure when the
// vendor cannot be reached. Unusable vendor bodies still produce a quote.
func (s *Service) Quote(ctx context.Context, raw map[string]any) (*Result, error) {
	req, errs := s.validator.Parse(raw)
	if len(errs) > 0 {
		s.metrics.IncValidationErrors()
		return nil, &ValidationError{Details: errs}
	}

	payload := Transform(req, s.catalog)

	body, hit, err := s.fetch(ctx, payload)
	if err != nil {
		s.metrics.IncVendorErrors()
		s.logger.Error("vendor call failed",
			"source", s.gateway.Name(),
			"unit", req.UnitName,
			"arrival", payload.Arrival,
			"departure", payload.Departure,
			"error", err,
		)
		var failure *vendor.TransportFailure
		if !errors.As(err, &failure) {
			err = &vendor.TransportFailure{Err: err}
		}
		return nil, err
	}
	if hit {
		s.metrics.IncCacheHits()
	}

	frag := Normalize(DecodeBody(body))
	if frag.Rate == nil {
		s.logger.Warn("vendor response carried no usable rate",
			"source", s.gateway.Name(),
			"unit", req.UnitName,
			"body_bytes", len(body),
		)
	}

	q := Quote{
		UnitName:     req.UnitName,
		Rate:         frag.Rate,
		Currency:     frag.Currency,
		Availability: s.policy.Apply(req.UnitName, frag),
		DateRange: DateRange{
			Arrival:   req.ArrivalText,
			Departure: req.DepartureText,
		},
		RawResponse: frag.Raw,
	}

	return &Result{
		Quotes:   []Quote{q},
		Source:   s.gateway.Name(),
		CacheHit: hit,
	}, nil
}

// Inspect validates raw and, when valid, returns the vendor payload it maps to.
func (s *Service) Inspect(raw map[string]any) Diagnostics {
	req, errs := s.validator.Parse(raw)
	d := Diagnostics{
		Validation: ValidationReport{
			Valid:  len(errs) == 0,
			Errors: append([]string{}, errs...),
		},
	}
	if d.Validation.Valid {
		payload := Transform(req, s.catalog)
		d.Payload = &payload
	}
	return d
}

// fetch calls the vendor, through the cache when one is configured. A cached
// call is shared by every collapsed waiter, so it runs detached from the
// leader's cancellation and is bounded by the gateway timeout instead.
func (s *Service) fetch(ctx context.Context, payload vendor.Request) ([]byte, bool, error) {
	if s.cache == nil {
		body, err := s.gateway.Call(ctx, payload)
		return body, false, err
	}

	key, err := cacheKey(s.gateway.Name(), payload)
	if err != nil {
		return nil, false, err
	}
	shared := context.WithoutCancel(ctx)
	return s.cache.GetOrFetch(ctx, key, func() ([]byte, error) {
		return s.gateway.Call(shared, payload)
	})
}

func cacheKey(source string, payload vendor.Request) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	return source + ":" + string(b), nil
}
