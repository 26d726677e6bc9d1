package cache

import (
	"context"
	"time"
)

// BytesCache stores raw bytes with a TTL. Used for short-lived opinion
// responses so repeated passes inside the TTL do not hit providers again.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
