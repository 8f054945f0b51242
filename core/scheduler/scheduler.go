// Package scheduler wakes agents and groups in the background while the
// user is around but not talking to them.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/xlog"
	"github.com/robfig/cron/v3"
)

// Waker performs the model-backed work a tick decides on. Implementations
// take the resource lock themselves; errors for which lock.Skippable is
// true mean the cycle is skipped.
type Waker interface {
	WakePrivate(ctx context.Context, agent *types.Agent, reactive bool) error
	WakeGroup(ctx context.Context, group *types.Group, actor *types.Agent) error
	Reconcile(ctx context.Context, agent *types.Agent) error
}

type Repository interface {
	Agent(ctx context.Context, id string) (*types.Agent, error)
	Agents(ctx context.Context) ([]*types.Agent, error)
	SaveAgent(ctx context.Context, a *types.Agent) error
	Groups(ctx context.Context) ([]*types.Group, error)
	Members(ctx context.Context, groupID string) ([]*types.Agent, error)
}

// Rand is the randomness a tick draws from. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Report lists what a tick did, by agent or group id.
type Report struct {
	Private    []string
	Reactive   []string
	Groups     []string
	Reconciled []string
	Skipped    int
}

// Scheduler runs ticks on a cron schedule. Ticks never overlap.
type Scheduler struct {
	repo     Repository
	waker    Waker
	schedule cron.Schedule
	options  *options

	tickMu sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler parses spec with the standard cron parser, which also
// accepts descriptors such as "@every 60s".
func NewScheduler(repo Repository, waker Waker, spec string, opts ...Option) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid tick schedule %q: %w", spec, err)
	}
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &Scheduler{repo: repo, waker: waker, schedule: schedule, options: o}, nil
}

// Start begins the tick loop
func (s *Scheduler) Start(ctx context.Context) {
	if s.ctx != nil {
		xlog.Warn("Scheduler already started")
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
	xlog.Info("Tick scheduler started", "next", s.schedule.Next(s.options.clock()))
}

// Stop waits for an in-flight tick to finish
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	xlog.Info("Tick scheduler stopped")
	s.cancel = nil
	s.ctx = nil
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		now := s.options.clock()
		timer := time.NewTimer(s.schedule.Next(now).Sub(now))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.Tick(s.ctx); err != nil {
				xlog.Error("Tick failed", "error", err)
			}
		}
	}
}

// Tick runs one cycle: private wakes, group wakes, then reconciliation of
// agents whose block cooldown elapsed.
func (s *Scheduler) Tick(ctx context.Context) (*Report, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	agents, err := s.repo.Agents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	report := &Report{}
	s.options.metrics.tick()

	s.wakePrivate(ctx, agents, report)

	groups, err := s.repo.Groups(ctx)
	if err != nil {
		return report, fmt.Errorf("listing groups: %w", err)
	}
	s.wakeGroups(ctx, groups, report)

	s.reconcile(ctx, agents, report)

	xlog.Debug("Tick done",
		"private", len(report.Private), "reactive", len(report.Reactive),
		"groups", len(report.Groups), "reconciled", len(report.Reconciled), "skipped", report.Skipped)
	return report, nil
}

func (s *Scheduler) wakePrivate(ctx context.Context, agents []*types.Agent, report *Report) {
	var eligible []*types.Agent
	for _, a := range agents {
		if a.Awake() {
			eligible = append(eligible, a)
		}
	}
	s.options.rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	if len(eligible) > s.options.maxPrivate {
		eligible = eligible[:s.options.maxPrivate]
	}

	for _, a := range eligible {
		if ctx.Err() != nil {
			return
		}
		last := a.History.Last()
		reactive := last != nil && last.AwaitsReaction()
		if !reactive && s.options.rng.Float64() >= s.options.privateProbability {
			continue
		}

		kind := "private"
		if reactive {
			kind = "reactive"
		}
		xlog.Info("Waking agent", "agent", a.ID, "kind", kind)
		if !s.outcome(kind, a.ID, s.waker.WakePrivate(ctx, a, reactive), report) {
			continue
		}
		if reactive {
			report.Reactive = append(report.Reactive, a.ID)
		} else {
			report.Private = append(report.Private, a.ID)
		}
	}
}

func (s *Scheduler) wakeGroups(ctx context.Context, groups []*types.Group, report *Report) {
	for _, g := range groups {
		if ctx.Err() != nil {
			return
		}
		if s.options.rng.Float64() >= s.options.groupProbability {
			continue
		}
		members, err := s.repo.Members(ctx, g.ID)
		if err != nil {
			xlog.Error("Listing group members", "group", g.ID, "error", err)
			continue
		}
		if len(members) == 0 {
			continue
		}
		actor := members[s.options.rng.IntN(len(members))]
		xlog.Info("Waking group", "group", g.ID, "actor", actor.ID)
		if s.outcome("group", g.ID, s.waker.WakeGroup(ctx, g, actor), report) {
			report.Groups = append(report.Groups, g.ID)
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context, agents []*types.Agent, report *Report) {
	now := s.options.clock()
	for _, a := range agents {
		if ctx.Err() != nil {
			return
		}
		if !a.Block.Is(types.BlockedByUser) {
			continue
		}
		if now.Sub(time.UnixMilli(a.Block.Timestamp)) < s.options.blockCooldown {
			continue
		}
		// earlier wakes in this tick may have saved a newer copy
		a, err := s.repo.Agent(ctx, a.ID)
		if err != nil {
			xlog.Error("Reloading agent", "error", err)
			continue
		}
		if !a.Block.Is(types.BlockedByUser) {
			continue
		}

		a.Block = types.BlockStatus{State: types.PendingReflection, Timestamp: now.UnixMilli(), Reason: a.Block.Reason}
		if err := s.repo.SaveAgent(ctx, a); err != nil {
			xlog.Error("Moving agent to reflection", "agent", a.ID, "error", err)
			continue
		}
		xlog.Info("Block cooldown elapsed, agent reflecting", "agent", a.ID)
		if s.outcome("reconcile", a.ID, s.waker.Reconcile(ctx, a), report) {
			report.Reconciled = append(report.Reconciled, a.ID)
		}
	}
}

// outcome logs and counts the result of a wake and reports whether it ran.
func (s *Scheduler) outcome(kind, id string, err error, report *Report) bool {
	switch {
	case err == nil:
		s.options.metrics.woke(kind)
		return true
	case lock.Skippable(err):
		xlog.Info("Model busy, skipping wake", "kind", kind, "id", id, "error", err)
	default:
		xlog.Error("Wake failed", "kind", kind, "id", id, "error", err)
	}
	s.options.metrics.skipped(kind)
	report.Skipped++
	return false
}
