package scheduler

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Option func(*options) error

type options struct {
	clock              func() time.Time
	rng                Rand
	privateProbability float64
	groupProbability   float64
	maxPrivate         int
	blockCooldown      time.Duration
	metrics            *Metrics
}

func defaultOptions() *options {
	return &options{
		clock:              time.Now,
		rng:                rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		privateProbability: 0.3,
		groupProbability:   0.15,
		maxPrivate:         2,
		blockCooldown:      time.Hour,
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) error {
		o.clock = clock
		return nil
	}
}

// WithRand replaces the random source. Ticks are serialized, so r does not
// need to be safe for concurrent use.
func WithRand(r Rand) Option {
	return func(o *options) error {
		o.rng = r
		return nil
	}
}

// WithWakeProbabilities sets the chance of a non-reactive private wake and
// of a group wake per tick.
func WithWakeProbabilities(private, group float64) Option {
	return func(o *options) error {
		if private < 0 || private > 1 || group < 0 || group > 1 {
			return fmt.Errorf("wake probabilities must be within [0,1], got %v and %v", private, group)
		}
		o.privateProbability, o.groupProbability = private, group
		return nil
	}
}

func WithMaxPrivateWakes(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return fmt.Errorf("max private wakes must not be negative, got %d", n)
		}
		o.maxPrivate = n
		return nil
	}
}

func WithBlockCooldown(d time.Duration) Option {
	return func(o *options) error {
		o.blockCooldown = d
		return nil
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// Metrics counts ticks and wakes. A nil *Metrics records nothing.
type Metrics struct {
	ticks prometheus.Counter
	wakes *prometheus.CounterVec
	skips *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "localcircle",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler ticks run.",
		}),
		wakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localcircle",
			Subsystem: "scheduler",
			Name:      "wakes_total",
			Help:      "Completed wakes by kind.",
		}, []string{"kind"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "localcircle",
			Subsystem: "scheduler",
			Name:      "skipped_total",
			Help:      "Wakes skipped because the model was busy or the wake failed.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.ticks, m.wakes, m.skips)
	return m
}

func (m *Metrics) tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) woke(kind string) {
	if m == nil {
		return
	}
	m.wakes.WithLabelValues(kind).Inc()
}

func (m *Metrics) skipped(kind string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(kind).Inc()
}
