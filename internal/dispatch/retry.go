// Copyright 2025 James Ross
package dispatch

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// apiRetryBackOff implements cenkalti/backoff/v4's BackOff interface,
// reproducing spec §4.4's retry envelope: up to two retries (three
// attempts total), wait doubling from a 1s base but clamped to
// [4s, 10s] — so in practice both retries wait 4s, since 2^0 and 2^1
// seconds both fall below the floor.
type apiRetryBackOff struct {
	attempt    int
	maxRetries int
}

func newAPIRetryBackOff() *apiRetryBackOff {
	return &apiRetryBackOff{maxRetries: 2}
}

func (b *apiRetryBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.attempt > b.maxRetries {
		return backoff.Stop
	}
	wait := time.Duration(1<<uint(b.attempt-1)) * time.Second
	if wait < 4*time.Second {
		wait = 4 * time.Second
	}
	if wait > 10*time.Second {
		wait = 10 * time.Second
	}
	return wait
}

func (b *apiRetryBackOff) Reset() { b.attempt = 0 }
