package conn

import (
	"math/rand/v2"
	"time"
)

// backoff produces exponentially growing delays with equal jitter: each delay
// is half the current step plus a random share of the other half.
type backoff struct {
	initial time.Duration
	max     time.Duration
	attempt int
}

func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	if max < initial {
		max = initial
	}
	return &backoff{initial: initial, max: max}
}

func (b *backoff) Next() time.Duration {
	step := b.max
	if b.attempt < 30 {
		if d := b.initial << b.attempt; d > 0 && d < b.max {
			step = d
		}
	}
	b.attempt++
	half := step / 2
	return half + time.Duration(rand.Int64N(int64(step-half)+1))
}

func (b *backoff) Reset() {
	b.attempt = 0
}
