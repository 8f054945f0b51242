// Package lock arbitrates the single outbound model-call resource between
// live chat, catch-up and background work.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mudler/xlog"
)

// Priority identifies the class of caller holding or requesting the lock.
// Higher values win when several requesters wait at the same time.
type Priority int

const (
	Idle Priority = iota
	BackgroundTick
	CatchUp
	LiveChat
)

func (p Priority) String() string {
	switch p {
	case Idle:
		return "idle"
	case BackgroundTick:
		return "background_tick"
	case CatchUp:
		return "catch_up"
	case LiveChat:
		return "live_chat"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

var (
	// ErrTimeout means the holder did not release within the wait timeout.
	// Callers treat it as "resource busy, try next cycle".
	ErrTimeout = errors.New("resource lock: timed out waiting for release")
	// ErrBusy means a caller of the same class already holds the lock.
	ErrBusy = errors.New("resource lock: already held by the same class")
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultTimeout      = 2000 * time.Millisecond
)

// Lock is the priority state machine. The zero value is not usable; use New.
type Lock struct {
	mu      sync.Mutex
	holder  Priority
	since   time.Time
	waiting map[Priority]int

	pollInterval time.Duration
	timeout      time.Duration
	metrics      *Metrics
}

type Option func(*Lock)

func WithPollInterval(d time.Duration) Option {
	return func(l *Lock) { l.pollInterval = d }
}

func WithTimeout(d time.Duration) Option {
	return func(l *Lock) { l.timeout = d }
}

func WithMetrics(m *Metrics) Option {
	return func(l *Lock) { l.metrics = m }
}

func New(opts ...Option) *Lock {
	l := &Lock{
		holder:       Idle,
		waiting:      map[Priority]int{},
		pollInterval: DefaultPollInterval,
		timeout:      DefaultTimeout,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Holder returns the class currently owning the resource.
func (l *Lock) Holder() Priority {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// Acquire takes the lock for class p.
//
// A free lock is taken at once unless a higher class is already waiting for
// it. A lock held by the same class fails at once with ErrBusy. A lock held
// by any other class is polled until it frees up or the timeout elapses,
// in which case ErrTimeout is returned. Holders are never preempted.
func (l *Lock) Acquire(ctx context.Context, p Priority) error {
	if p <= Idle || p > LiveChat {
		return fmt.Errorf("resource lock: invalid priority %s", p)
	}

	start := time.Now()
	l.mu.Lock()
	if l.tryTake(p) {
		l.mu.Unlock()
		l.metrics.acquired(p, 0)
		return nil
	}
	if l.holder == p {
		l.mu.Unlock()
		l.metrics.busy(p)
		xlog.Debug("Resource lock busy", "requester", p)
		return ErrBusy
	}
	holder := l.holder
	l.waiting[p]++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.waiting[p]--
		l.mu.Unlock()
	}()

	xlog.Debug("Waiting for resource lock", "requester", p, "holder", holder)

	deadline := time.NewTimer(l.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			l.metrics.timeout(p)
			xlog.Info("Resource lock wait timed out", "requester", p, "holder", l.Holder(), "waited", time.Since(start))
			return ErrTimeout
		case <-ticker.C:
			l.mu.Lock()
			taken := l.tryTake(p)
			l.mu.Unlock()
			if taken {
				l.metrics.acquired(p, time.Since(start))
				return nil
			}
		}
	}
}

// tryTake must be called with mu held.
func (l *Lock) tryTake(p Priority) bool {
	if l.holder != Idle {
		return false
	}
	for w, n := range l.waiting {
		if w > p && n > 0 {
			return false
		}
	}
	l.holder = p
	l.since = time.Now()
	return true
}

// Release frees the lock if p holds it and reports whether it did.
func (l *Lock) Release(p Priority) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != p || p == Idle {
		return false
	}
	l.metrics.held(p, time.Since(l.since))
	l.holder = Idle
	return true
}

// Do runs fn while holding the lock for class p.
func (l *Lock) Do(ctx context.Context, p Priority, fn func(context.Context) error) error {
	if err := l.Acquire(ctx, p); err != nil {
		return err
	}
	defer l.Release(p)
	return fn(ctx)
}

// Skippable reports whether err only means the resource was unavailable.
func Skippable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrBusy)
}
