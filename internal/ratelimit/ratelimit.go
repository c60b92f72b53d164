package ratelimit

import (
	"context"
	"math"
	"time"
)

// Bucket is the persisted state of one identifier.
type Bucket struct {
	Tokens     float64 `json:"tokens"`
	LastRefill int64   `json:"last_refill"`
}

// Buckets maps identifiers to their buckets. It is loaded, mutated and saved
// as one unit.
type Buckets map[string]Bucket

// Store persists Buckets. Update and View hold an exclusive lock for the whole
// load-mutate-save cycle. Update may invoke fn more than once when the backend
// retries an optimistic transaction, so fn must only depend on its argument.
type Store interface {
	Update(ctx context.Context, fn func(Buckets) error) error
	View(ctx context.Context, fn func(Buckets) error) error
	Clear(ctx context.Context) error
}

// Decision is the outcome of Take.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until ResetAt, at least one.
func (d Decision) RetryAfter(now time.Time) int {
	return max(int(math.Ceil(d.ResetAt.Sub(now).Seconds())), 1)
}

// Limiter implements a stepped token bucket per identifier. A bucket holds up
// to capacity tokens and is refilled by capacity tokens for every whole window
// elapsed since its last refill.
type Limiter struct {
	store    Store
	capacity int
	window   int64 // seconds
	enabled  bool
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithEnabled turns the limiter on or off. A disabled limiter admits every
// request without touching the store.
func WithEnabled(enabled bool) Option {
	return func(l *Limiter) { l.enabled = enabled }
}

// New creates a new Limiter admitting capacity requests per window.
func New(store Store, capacity int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		capacity: capacity,
		window:   max(int64(window/time.Second), 1),
		enabled:  true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether requests are being limited.
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// Limit returns the bucket capacity.
func (l *Limiter) Limit() int {
	return l.capacity
}

// Window returns the refill window.
func (l *Limiter) Window() time.Duration {
	return time.Duration(l.window) * time.Second
}

// Take consumes a token for id when one is available and reports the header
// values in the same locked cycle.
func (l *Limiter) Take(ctx context.Context, id string) (Decision, error) {
	now := l.now()
	if !l.enabled {
		return Decision{Allowed: true, Limit: l.capacity, Remaining: l.capacity, ResetAt: now}, nil
	}

	ts := now.Unix()
	var dec Decision
	err := l.store.Update(ctx, func(buckets Buckets) error {
		l.collect(buckets, ts)

		b, ok := buckets[id]
		if !ok {
			b = Bucket{Tokens: float64(l.capacity), LastRefill: ts}
		}
		l.refill(&b, ts)

		allowed := b.Tokens >= 1
		if allowed {
			b.Tokens--
		}
		buckets[id] = b

		dec = Decision{
			Allowed:   allowed,
			Limit:     l.capacity,
			Remaining: remaining(b),
			ResetAt:   time.Unix(l.resetAt(b, ts), 0),
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return dec, nil
}

// IsAllowed consumes one token for id and reports whether it was available.
func (l *Limiter) IsAllowed(ctx context.Context, id string) (bool, error) {
	dec, err := l.Take(ctx, id)
	return dec.Allowed, err
}

// Remaining returns how many requests id may still make. It does not consume.
func (l *Limiter) Remaining(ctx context.Context, id string) (int, error) {
	if !l.enabled {
		return l.capacity, nil
	}

	ts := l.now().Unix()
	n := l.capacity
	err := l.store.View(ctx, func(buckets Buckets) error {
		b, ok := buckets[id]
		if !ok || l.expired(b, ts) {
			return nil
		}
		l.refill(&b, ts)
		n = remaining(b)
		return nil
	})
	return n, err
}

// ResetTime returns when id will next be admitted. It is now unless the bucket
// is exhausted.
func (l *Limiter) ResetTime(ctx context.Context, id string) (time.Time, error) {
	now := l.now()
	if !l.enabled {
		return now, nil
	}

	ts := now.Unix()
	at := ts
	err := l.store.View(ctx, func(buckets Buckets) error {
		b, ok := buckets[id]
		if !ok {
			return nil
		}
		l.refill(&b, ts)
		at = l.resetAt(b, ts)
		return nil
	})
	return time.Unix(at, 0), err
}

// Reset forgets id.
func (l *Limiter) Reset(ctx context.Context, id string) error {
	return l.store.Update(ctx, func(buckets Buckets) error {
		delete(buckets, id)
		return nil
	})
}

// ResetAll forgets every identifier.
func (l *Limiter) ResetAll(ctx context.Context) error {
	return l.store.Clear(ctx)
}

// Snapshot returns the stored bucket of id without refilling it.
func (l *Limiter) Snapshot(ctx context.Context, id string) (Bucket, bool, error) {
	var (
		b  Bucket
		ok bool
	)
	err := l.store.View(ctx, func(buckets Buckets) error {
		b, ok = buckets[id]
		return nil
	})
	return b, ok, err
}

// refill adds capacity tokens per whole elapsed window, capped at capacity.
// The refill clock moves to ts whenever any time has passed.
func (l *Limiter) refill(b *Bucket, ts int64) {
	elapsed := ts - b.LastRefill
	if elapsed <= 0 {
		return
	}
	added := min(float64(l.capacity), float64(elapsed/l.window)*float64(l.capacity))
	b.Tokens = min(float64(l.capacity), b.Tokens+added)
	b.LastRefill = ts
}

func (l *Limiter) resetAt(b Bucket, ts int64) int64 {
	if b.Tokens >= 1 {
		return ts
	}
	elapsed := max(ts-b.LastRefill, 0)
	return ts + (l.window - elapsed%l.window)
}

// collect drops buckets untouched for two windows.
func (l *Limiter) collect(buckets Buckets, ts int64) {
	for id, b := range buckets {
		if l.expired(b, ts) {
			delete(buckets, id)
		}
	}
}

func (l *Limiter) expired(b Bucket, ts int64) bool {
	return b.LastRefill <= ts-2*l.window
}

func remaining(b Bucket) int {
	return max(int(b.Tokens), 0)
}
