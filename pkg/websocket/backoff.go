package websocket

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff produces exponentially growing redial delays with jitter.
// Next returns the delay to wait before the upcoming attempt and
// advances the schedule. Reset is called after a successful dial.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction added on top, 0.2 means up to +20%

	mu      sync.Mutex
	current time.Duration
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current <= 0 {
		b.current = b.Initial
	}

	delay := b.current
	if b.Jitter > 0 {
		delay += time.Duration(rand.Float64() * b.Jitter * float64(delay))
	}

	b.current = time.Duration(float64(b.current) * b.Multiplier)
	if b.Max > 0 && b.current > b.Max {
		b.current = b.Max
	}
	return delay
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = b.Initial
	b.mu.Unlock()
}
