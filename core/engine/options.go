package engine

import (
	"time"

	"github.com/mudler/LocalCircle/core/action"
	"github.com/mudler/LocalCircle/core/catchup"
	"github.com/mudler/LocalCircle/core/events"
	"github.com/mudler/LocalCircle/core/gift"
	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/types"
)

type Option func(*options) error

type options struct {
	lock          *lock.Lock
	notifier      types.Notifier
	clock         func() time.Time
	pacer         action.Pacer
	rng           gift.Rand
	temperature   float32
	contextWindow int
	maxHistory    int
	maxPosts      int

	eventOptions   []events.Option
	catchUpOptions []catchup.Option
}

func defaultOptions() *options {
	return &options{
		notifier:      types.NopNotifier{},
		clock:         time.Now,
		pacer:         action.NoPacing,
		temperature:   0.7,
		contextWindow: 40,
		maxHistory:    500,
		maxPosts:      10,
	}
}

func newOptions(opts ...Option) (*options, error) {
	options := defaultOptions()
	for _, o := range opts {
		if err := o(options); err != nil {
			return nil, err
		}
	}
	if options.lock == nil {
		options.lock = lock.New()
	}
	if options.rng == nil {
		options.rng = action.NewRand()
	}
	return options, nil
}

// WithLock shares a resource lock with other model callers.
func WithLock(l *lock.Lock) Option {
	return func(o *options) error {
		o.lock = l
		return nil
	}
}

func WithNotifier(n types.Notifier) Option {
	return func(o *options) error {
		o.notifier = n
		return nil
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) error {
		o.clock = clock
		return nil
	}
}

func WithPacer(p action.Pacer) Option {
	return func(o *options) error {
		o.pacer = p
		return nil
	}
}

// WithRand sets the source for pooled red packet draws, for both agents and
// the user.
func WithRand(r gift.Rand) Option {
	return func(o *options) error {
		o.rng = r
		return nil
	}
}

func WithTemperature(t float32) Option {
	return func(o *options) error {
		o.temperature = t
		return nil
	}
}

// WithContextWindow sets how many recent messages are sent to the model.
func WithContextWindow(n int) Option {
	return func(o *options) error {
		o.contextWindow = n
		return nil
	}
}

func WithMaxHistory(n int) Option {
	return func(o *options) error {
		o.maxHistory = n
		return nil
	}
}

func WithEventOptions(opts ...events.Option) Option {
	return func(o *options) error {
		o.eventOptions = append(o.eventOptions, opts...)
		return nil
	}
}

func WithCatchUpOptions(opts ...catchup.Option) Option {
	return func(o *options) error {
		o.catchUpOptions = append(o.catchUpOptions, opts...)
		return nil
	}
}
