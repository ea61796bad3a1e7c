package connectivity

import (
	"math"
	"math/rand"
	"time"
)

// Backoff spaces reconnect attempts exponentially, with optional jitter so
// a store full of tills does not reconnect in lockstep.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// JitterFactor is the maximum jitter as a fraction of the delay (0 to 1).
	JitterFactor float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:      time.Second,
		Max:          30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.3,
	}
}

// Delay returns the wait before reconnect attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	mult := b.Multiplier
	if mult < 1 {
		mult = 2
	}
	delay := float64(b.Initial) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if b.JitterFactor > 0 {
		//nolint:gosec // jitter is not security sensitive
		delay += delay * b.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(b.Initial)
		}
	}
	return time.Duration(delay)
}
