package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: exponential growth from Initial by
// Multiplier, capped at Max, with downward jitter. Each delay falls in
// (base*(1-Jitter), base], so while Jitter < 0.5 and delays stay under Max,
// successive delays strictly increase. The worker waits max(Delay, hint)
// when the server sends a Retry-After hint, so a large hint on one attempt
// can make that wait longer than the next one.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64

	// rand returns a value in [0, 1). Defaults to math/rand/v2.
	rand func() float64
}

// DefaultBackoff provides sensible defaults.
var DefaultBackoff = Backoff{
	Initial:    1 * time.Second,
	Max:        60 * time.Second,
	Multiplier: 2.0,
	Jitter:     0.2,
}

// Delay returns the wait before the next attempt, given how many attempts
// have already been made (1 after the first failure).
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := float64(b.Initial) * math.Pow(multiplier, float64(attempts-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		random := rand.Float64
		if b.rand != nil {
			random = b.rand
		}
		delay -= delay * b.Jitter * random()
	}

	if delay < float64(time.Millisecond) {
		return time.Millisecond
	}
	return time.Duration(delay)
}
