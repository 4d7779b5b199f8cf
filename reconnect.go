package telemetry

import "time"

// maxBackoffExponent clamps the multiplier exponent; the delay cap applies
// well before this but the shift must not overflow on long outages.
const maxBackoffExponent = 10

// backoff implements attempt-counted exponential backoff with a maximum delay.
// The attempt counter doubles as the client's failed-connection count: it
// grows on every failure and resets to zero on a successful connect.
type backoff struct {
	base     time.Duration
	max      time.Duration
	attempts int
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max}
}

// next returns the delay for the current attempt count and then increments it.
func (b *backoff) next() time.Duration {
	exp := b.attempts
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	d := b.base * (1 << uint(exp))
	if d > b.max {
		d = b.max
	}
	b.attempts++
	return d
}

func (b *backoff) reset() {
	b.attempts = 0
}
