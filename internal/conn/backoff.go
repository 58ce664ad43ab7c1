package conn

import (
	"math"
	"math/rand"
	"time"
)

// stableAfter is how long a connection must hold before the attempt counter
// resets, so a brief flap after hours of uptime starts from the base delay
// again.
const stableAfter = time.Minute

// backoff computes exponentially growing reconnect delays with jitter.
type backoff struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newBackoff(base, max time.Duration, maxAttempts int) *backoff {
	return &backoff{base: base, max: max, maxAttempts: maxAttempts}
}

// exhausted reports whether the attempt cap has been reached.
func (b *backoff) exhausted() bool {
	return b.maxAttempts > 0 && b.attempt >= b.maxAttempts
}

// markConnected records a successful connection.
func (b *backoff) markConnected() {
	b.connectedAt = time.Now()
}

// next returns the delay before the upcoming attempt and advances the
// counter. Delay is base*2^attempt plus up to 50% of base as jitter, capped
// at max.
func (b *backoff) next() time.Duration {
	if !b.connectedAt.IsZero() && time.Since(b.connectedAt) > stableAfter {
		b.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(b.base) * 0.5)
	delay := time.Duration(math.Min(
		float64(b.base)*math.Pow(2, float64(b.attempt))+float64(jitter),
		float64(b.max),
	))
	b.attempt++
	return delay
}
