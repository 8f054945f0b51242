// Package catchup turns the time the user was away into group events and
// relationship changes.
package catchup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/LocalCircle/core/action"
	"github.com/mudler/LocalCircle/core/events"
	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/parser"
	"github.com/mudler/LocalCircle/core/prompt"
	"github.com/mudler/LocalCircle/core/relation"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/llm"
	"github.com/mudler/xlog"
)

const EventKind = "simulation"

type Repository interface {
	relation.Store
	Settings(ctx context.Context) (types.Settings, error)
	SaveSettings(ctx context.Context, s types.Settings) error
	Groups(ctx context.Context) ([]*types.Group, error)
	Members(ctx context.Context, groupID string) ([]*types.Agent, error)
	SaveSummary(ctx context.Context, s *types.Summary) error
	DeleteSummariesBefore(ctx context.Context, cutoff int64) (int, error)
	LoreDoc(ctx context.Context, id string) (*types.LoreDoc, error)
	SaveLoreDoc(ctx context.Context, d *types.LoreDoc) error
	SaveMemory(ctx context.Context, m *types.Memory) error
}

// simulation is the reply shape expected from the model.
type simulation struct {
	Updates []struct {
		A      string        `json:"char1_name"`
		B      string        `json:"char2_name"`
		Delta  action.Number `json:"score_change"`
		Reason string        `json:"reason"`
	} `json:"relationship_updates"`
	Events     []string `json:"new_events_summary"`
	Milestones []struct {
		Name      string `json:"character_name"`
		Milestone string `json:"milestone"`
	} `json:"personal_milestones"`
}

// Change is one relationship delta applied during a pass.
type Change struct {
	A, B   string
	Delta  int
	Reason string
	Score  int
}

type GroupReport struct {
	GroupID string
	Events  []string
	Changes []Change
	Err     error
}

// Report describes a catch-up run. Ran is false when the elapsed time was
// below the threshold.
type Report struct {
	Elapsed time.Duration
	Ran     bool
	Groups  []GroupReport
}

type Simulator struct {
	repo      Repository
	gen       llm.Generator
	lock      *lock.Lock
	relations *relation.Adjuster
	events    *events.Log
	options   *options
}

func New(repo Repository, gen llm.Generator, l *lock.Lock, relations *relation.Adjuster, log *events.Log, opts ...Option) (*Simulator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if gen == nil || l == nil || relations == nil || log == nil {
		return nil, errors.New("catchup: missing dependency")
	}
	return &Simulator{repo: repo, gen: gen, lock: l, relations: relations, events: log, options: o}, nil
}

// Run simulates the offline period when it is long enough. The last online
// time advances once every group was attempted, even if some failed.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	settings, err := s.repo.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	now := s.options.clock()
	if settings.LastOnline == 0 {
		settings.LastOnline = now.UnixMilli()
		xlog.Info("First start, nothing to catch up")
		return &Report{}, s.repo.SaveSettings(ctx, settings)
	}

	elapsed := now.Sub(time.UnixMilli(settings.LastOnline))
	report := &Report{Elapsed: elapsed}
	if elapsed < s.options.threshold {
		xlog.Debug("Catch-up skipped", "elapsed", elapsed, "threshold", s.options.threshold)
		return report, nil
	}
	report.Ran = true
	xlog.Info("Catching up", "elapsed", elapsed)

	groups, err := s.repo.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	for _, g := range groups {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		members, err := s.repo.Members(ctx, g.ID)
		if err != nil {
			report.Groups = append(report.Groups, GroupReport{GroupID: g.ID, Err: err})
			continue
		}
		if len(members) < 2 {
			continue
		}

		gr := GroupReport{GroupID: g.ID}
		err = s.lock.Do(ctx, lock.CatchUp, func(ctx context.Context) error {
			return s.simulate(ctx, g, members, elapsed, &gr)
		})
		switch {
		case lock.Skippable(err):
			xlog.Warn("Catch-up skipped a group, model busy", "group", g.ID, "error", err)
		case err != nil:
			xlog.Error("Catch-up failed for group", "group", g.ID, "error", err)
		}
		gr.Err = err
		report.Groups = append(report.Groups, gr)
	}

	settings, err = s.repo.Settings(ctx)
	if err != nil {
		return report, fmt.Errorf("loading settings: %w", err)
	}
	settings.LastOnline = now.UnixMilli()
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return report, fmt.Errorf("saving settings: %w", err)
	}
	return report, nil
}

func (s *Simulator) simulate(ctx context.Context, g *types.Group, members []*types.Agent, elapsed time.Duration, gr *GroupReport) error {
	byName := make(map[string]*types.Agent, len(members))
	data := prompt.CatchUp{
		GroupName: g.Name,
		Hours:     elapsed.Hours(),
		MaxEvents: s.options.maxEvents,
	}
	for _, m := range members {
		byName[m.Name] = m
		data.Members = append(data.Members, prompt.Member{Name: m.Name, Persona: m.Persona})
	}
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			rel, err := s.relations.Get(ctx, members[i].ID, members[j].ID)
			if err != nil {
				return err
			}
			data.Relations = append(data.Relations, prompt.Relation{
				A: members[i].Name, B: members[j].Name, Type: rel.Type, Score: rel.Score,
			})
		}
	}

	system, err := prompt.RenderCatchUp(data)
	if err != nil {
		return fmt.Errorf("rendering prompt: %w", err)
	}
	raw, err := s.gen.Generate(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: "Run the simulation."}},
		Temperature: s.options.temperature,
		JSON:        true,
	})
	if err != nil {
		return fmt.Errorf("generating: %w", err)
	}

	var sim simulation
	if err := parser.Decode(raw, &sim); err != nil {
		return err
	}

	now := s.options.clock()
	for _, u := range sim.Updates {
		a, b := byName[u.A], byName[u.B]
		if a == nil || b == nil || a.ID == b.ID || !u.Delta.Valid() {
			xlog.Warn("Ignoring relationship update", "group", g.ID, "a", u.A, "b", u.B)
			continue
		}
		if len(gr.Changes) == s.options.maxEvents {
			break
		}
		delta := u.Delta.Score()
		rel, err := s.relations.Adjust(ctx, a.ID, b.ID, delta)
		if err != nil {
			return err
		}
		gr.Changes = append(gr.Changes, Change{A: a.Name, B: b.Name, Delta: delta, Reason: u.Reason, Score: rel.Score})
	}

	for _, summary := range sim.Events {
		summary = strings.TrimSpace(summary)
		if summary == "" {
			continue
		}
		if len(gr.Events) == s.options.maxEvents {
			break
		}
		if _, err := s.events.Append(ctx, g.ID, EventKind, summary); err != nil {
			return err
		}
		gr.Events = append(gr.Events, summary)
	}

	for _, m := range sim.Milestones {
		agent := byName[m.Name]
		if agent == nil || strings.TrimSpace(m.Milestone) == "" {
			continue
		}
		if err := s.repo.SaveMemory(ctx, &types.Memory{
			ID:          uuid.New().String(),
			AgentID:     agent.ID,
			Author:      agent.ID,
			Kind:        types.MemoryMilestone,
			Description: m.Milestone,
			Timestamp:   now.UnixMilli(),
		}); err != nil {
			return fmt.Errorf("saving milestone: %w", err)
		}
	}

	if len(gr.Events) > 0 {
		if err := s.repo.SaveSummary(ctx, &types.Summary{
			ID:        g.ID,
			GroupID:   g.ID,
			GroupName: g.Name,
			Events:    gr.Events,
			Timestamp: now.UnixMilli(),
		}); err != nil {
			return fmt.Errorf("saving summary: %w", err)
		}
	}
	if len(gr.Events) > 0 || len(gr.Changes) > 0 {
		if err := s.chronicle(ctx, g, gr, now); err != nil {
			return err
		}
	}
	xlog.Info("Group caught up", "group", g.ID, "events", len(gr.Events), "changes", len(gr.Changes))
	return nil
}

// chronicle appends the pass to the group's chronicle lore document, if any.
func (s *Simulator) chronicle(ctx context.Context, g *types.Group, gr *GroupReport, now time.Time) error {
	for _, id := range g.LoreIDs {
		doc, err := s.repo.LoreDoc(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if doc.Kind != types.LoreChronicle && !strings.Contains(strings.ToLower(doc.Name), "chronicle") {
			continue
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "\n\n--- %s ---\n", now.Format("2006-01-02 15:04"))
		if len(gr.Changes) > 0 {
			sb.WriteString("Relationship changes:\n")
			for _, c := range gr.Changes {
				fmt.Fprintf(&sb, "- %s and %s: %s (%+d)\n", c.A, c.B, c.Reason, c.Delta)
			}
		}
		if len(gr.Events) > 0 {
			sb.WriteString("Main events:\n")
			for _, e := range gr.Events {
				fmt.Fprintf(&sb, "- %s\n", e)
			}
		}
		doc.Content += sb.String()
		if err := s.repo.SaveLoreDoc(ctx, doc); err != nil {
			return fmt.Errorf("saving chronicle: %w", err)
		}
		return nil
	}
	return nil
}

// Sweep deletes summaries older than the retention period.
func (s *Simulator) Sweep(ctx context.Context) (int, error) {
	cutoff := s.options.clock().Add(-s.options.retention)
	n, err := s.repo.DeleteSummariesBefore(ctx, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweeping summaries: %w", err)
	}
	xlog.Info("Summary retention sweep", "deleted", n, "cutoff", cutoff)
	return n, nil
}

