package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Cache is the byte oriented key value store behind the typed caches.
// Implementations must treat a missing key as (nil, false, nil).
type Cache interface {
	// Get retrieves a value and whether the key was found
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given expiration. Zero means no expiry.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete removes a key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// Cache key prefixes
const (
	PrefixSubscription = "subscription:v1:"
)

// GenerateKey creates a cache key from a prefix and a set of parameters
// It joins all parameters with a colon and appends them to the prefix
func GenerateKey(prefix string, params ...interface{}) string {
	parts := make([]string, len(params))
	for i, param := range params {
		parts[i] = fmt.Sprintf("%v", param)
	}
	return prefix + strings.Join(parts, ":")
}
