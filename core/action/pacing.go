package action

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Pacer is the delay inserted between two commands of the same plan.
type Pacer interface {
	Pause(ctx context.Context) error
}

type noPacing struct{}

func (noPacing) Pause(ctx context.Context) error {
	return ctx.Err()
}

// NoPacing never waits.
var NoPacing Pacer = noPacing{}

// RandomPacer waits a uniformly random duration in [Min, Max].
type RandomPacer struct {
	Min, Max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomPacer(min, max time.Duration) *RandomPacer {
	if max < min {
		max = min
	}
	return &RandomPacer{
		Min: min,
		Max: max,
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 42)),
	}
}

func (p *RandomPacer) next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	span := p.Max - p.Min
	if span <= 0 {
		return p.Min
	}
	return p.Min + time.Duration(p.rng.Int64N(int64(span)+1))
}

func (p *RandomPacer) Pause(ctx context.Context) error {
	timer := time.NewTimer(p.next())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
