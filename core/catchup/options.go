package catchup

import (
	"fmt"
	"time"
)

type Option func(*options) error

type options struct {
	clock       func() time.Time
	threshold   time.Duration
	retention   time.Duration
	maxEvents   int
	temperature float32
}

func defaultOptions() *options {
	return &options{
		clock:       time.Now,
		threshold:   time.Hour,
		retention:   7 * 24 * time.Hour,
		maxEvents:   3,
		temperature: 0.8,
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) error {
		o.clock = clock
		return nil
	}
}

// WithThreshold sets the minimum offline time that triggers a simulation.
func WithThreshold(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("invalid catch-up threshold %s", d)
		}
		o.threshold = d
		return nil
	}
}

func WithRetention(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("invalid summary retention %s", d)
		}
		o.retention = d
		return nil
	}
}

// WithMaxEvents caps both the events and the relationship updates a group
// pass keeps from the model.
func WithMaxEvents(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("max events must be positive, got %d", n)
		}
		o.maxEvents = n
		return nil
	}
}

func WithTemperature(t float32) Option {
	return func(o *options) error {
		o.temperature = t
		return nil
	}
}
