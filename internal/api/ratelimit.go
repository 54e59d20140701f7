package api

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimit throttles a route per caller. rate uses limiter's format
// ("20-M" is 20 per minute). With a nil client counters live in process
// memory, which is only correct for a single instance.
func RateLimit(routeID, rate string, client *redis.Client, log logrus.FieldLogger) (func(http.Handler) http.Handler, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("rate for %s: %w", routeID, err)
	}

	opts := limiter.StoreOptions{Prefix: "rate_limiter:" + routeID, MaxRetry: 3}
	var store limiter.Store
	if client != nil {
		store, err = redisstore.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("redis limiter store for %s: %w", routeID, err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}

	mw := stdlib.NewMiddleware(limiter.New(store, r),
		stdlib.WithKeyGetter(callerKey),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, slow down")
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			if log != nil {
				log.WithError(err).WithField("route", routeID).Error("rate limiter unavailable")
			}
			WriteError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "please retry shortly")
		}),
	)
	return mw.Handler, nil
}

func callerKey(r *http.Request) string {
	if id := IdentityFromContext(r.Context()); id != nil {
		return "user:" + id.UserID
	}
	return "ip:" + r.RemoteAddr
}
