package resource

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const cacheKeyPrefix = "resource:"

// CachedCatalog is a read-through Redis cache in front of another Catalog.
// Only display paths go through it. Admission reads the locked row in its
// own transaction, so a stale entry here can never admit a booking.
type CachedCatalog struct {
	Next  Catalog
	Redis *redis.Client
	TTL   time.Duration
	Log   logrus.FieldLogger
}

func (c *CachedCatalog) Get(ctx context.Context, ref Ref) (*Resource, error) {
	key := cacheKeyPrefix + ref.String()

	b, err := c.Redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var res Resource
		if jerr := json.Unmarshal(b, &res); jerr == nil {
			return &res, nil
		}
	case !errors.Is(err, redis.Nil):
		c.Log.WithError(err).WithField("key", key).Warn("resource cache read failed")
	}

	res, err := c.Next.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(res); err == nil {
		if err := c.Redis.Set(ctx, key, b, c.TTL).Err(); err != nil {
			c.Log.WithError(err).WithField("key", key).Warn("resource cache write failed")
		}
	}
	return res, nil
}

// List is not cached; listings are cheap and should reflect catalog edits immediately.
func (c *CachedCatalog) List(ctx context.Context, kind Kind) ([]Resource, error) {
	return c.Next.List(ctx, kind)
}

// Invalidate drops a cached entry after an out-of-band catalog edit.
func (c *CachedCatalog) Invalidate(ctx context.Context, ref Ref) error {
	return c.Redis.Del(ctx, cacheKeyPrefix+ref.String()).Err()
}
