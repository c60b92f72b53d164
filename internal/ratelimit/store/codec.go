// Package store provides persistence backends for rate limiter buckets.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/alex-user-go/rates/internal/ratelimit"
)

// decode reads a serialized bucket map. Missing, empty or corrupt state is an
// empty map.
func decode(data []byte) ratelimit.Buckets {
	buckets := make(ratelimit.Buckets)
	if len(data) == 0 {
		return buckets
	}
	if err := json.Unmarshal(data, &buckets); err != nil || buckets == nil {
		return make(ratelimit.Buckets)
	}
	return buckets
}

func encode(buckets ratelimit.Buckets) ([]byte, error) {
	if buckets == nil {
		buckets = ratelimit.Buckets{}
	}
	data, err := json.Marshal(buckets)
	if err != nil {
		return nil, fmt.Errorf("encode buckets: %w", err)
	}
	return data, nil
}
