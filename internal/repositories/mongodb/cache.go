package mongodb

import (
	"context"
	"time"
)

// CacheService is the slice of the redis cache the repositories use. Caching
// is strictly best effort: a miss or failure falls through to Mongo.
type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}
