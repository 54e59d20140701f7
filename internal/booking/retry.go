package booking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// withRetry runs fn up to attempts times, backing off exponentially with
// jitter, but only while fn fails with ErrStorageUnavailable.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrStorageUnavailable) {
			return err
		}
		if i == attempts-1 {
			break
		}
		d := base << i
		if d > 0 {
			d += rand.N(d/2 + 1)
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return newError(KindStorageUnavailable, "gave up waiting for booking store", errors.Join(err, ctx.Err()))
		case <-t.C:
		}
	}
	return newError(KindStorageUnavailable, fmt.Sprintf("booking store unavailable after %d attempts", attempts), err)
}
