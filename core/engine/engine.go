// Package engine ties the action engine together: it builds prompts, calls
// the model through the resource lock and hands the parsed plans to the
// interpreter.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mudler/LocalCircle/core/action"
	"github.com/mudler/LocalCircle/core/catchup"
	"github.com/mudler/LocalCircle/core/events"
	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/relation"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/llm"
	"github.com/mudler/xlog"
)

var (
	// ErrBlocked means the conversation cannot continue in the agent's
	// current block state.
	ErrBlocked = errors.New("engine: conversation is blocked")
	// ErrInvalidState means a user operation does not apply to the agent's
	// current block state.
	ErrInvalidState = errors.New("engine: operation not allowed in current state")
)

type Engine struct {
	repo      *store.Repository
	gen       llm.Generator
	lock      *lock.Lock
	relations *relation.Adjuster
	interp    *action.Interpreter
	events    *events.Log
	catchUp   *catchup.Simulator
	options   *options

	// records guards every read-modify-write of agents and groups,
	// including the interpreter's.
	records *sync.Mutex
}

func New(repo *store.Repository, gen llm.Generator, opts ...Option) (*Engine, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	if gen == nil {
		return nil, errors.New("engine: nil generator")
	}

	records := &sync.Mutex{}
	relations := relation.NewAdjuster(repo)
	interp, err := action.New(repo, relations,
		action.WithRecordLock(records),
		action.WithPacer(o.pacer),
		action.WithNotifier(o.notifier),
		action.WithClock(o.clock),
		action.WithMaxHistory(o.maxHistory),
		action.WithRand(o.rng),
	)
	if err != nil {
		return nil, err
	}

	eventOpts := append([]events.Option{
		events.WithClock(o.clock),
		events.WithNotifier(o.notifier),
		events.WithMaxHistory(o.maxHistory),
	}, o.eventOptions...)
	log, err := events.New(repo, eventOpts...)
	if err != nil {
		return nil, fmt.Errorf("configuring events: %w", err)
	}

	catchUpOpts := append([]catchup.Option{catchup.WithClock(o.clock)}, o.catchUpOptions...)
	sim, err := catchup.New(repo, gen, o.lock, relations, log, catchUpOpts...)
	if err != nil {
		return nil, fmt.Errorf("configuring catch-up: %w", err)
	}

	return &Engine{
		repo:      repo,
		gen:       gen,
		lock:      o.lock,
		relations: relations,
		interp:    interp,
		events:    log,
		catchUp:   sim,
		options:   o,
		records:   records,
	}, nil
}

func (e *Engine) Lock() *lock.Lock              { return e.lock }
func (e *Engine) Events() *events.Log           { return e.events }
func (e *Engine) CatchUp() *catchup.Simulator   { return e.catchUp }
func (e *Engine) Repository() *store.Repository { return e.repo }

// Resume runs the catch-up simulation for the time the user was away.
func (e *Engine) Resume(ctx context.Context) (*catchup.Report, error) {
	return e.catchUp.Run(ctx)
}

type AgentSpec struct {
	Name      string `json:"name"`
	Persona   string `json:"persona"`
	Avatar    string `json:"avatar,omitempty"`
	Signature string `json:"signature,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
}

func (e *Engine) CreateAgent(ctx context.Context, spec AgentSpec) (*types.Agent, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, errors.New("engine: agent name is required")
	}
	if spec.GroupID != "" {
		if _, err := e.repo.Group(ctx, spec.GroupID); err != nil {
			return nil, fmt.Errorf("group %s: %w", spec.GroupID, err)
		}
	}
	a := &types.Agent{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(spec.Name),
		Persona:   spec.Persona,
		Avatar:    spec.Avatar,
		Signature: spec.Signature,
		GroupID:   spec.GroupID,
		Status:    types.DefaultStatus(),
		Block:     types.BlockStatus{State: types.BlockNone},
		History:   types.Transcript{},
		CreatedAt: e.options.clock().UnixMilli(),
	}
	if err := e.repo.SaveAgent(ctx, a); err != nil {
		return nil, err
	}
	xlog.Info("Agent created", "agent", a.ID, "name", a.Name)
	return a, nil
}

// DeleteAgent removes the agent and everything it owns in one batch.
func (e *Engine) DeleteAgent(ctx context.Context, id string) error {
	if err := e.repo.DeleteAgent(ctx, id); err != nil {
		return err
	}
	xlog.Info("Agent deleted", "agent", id)
	return nil
}

func (e *Engine) CreateGroup(ctx context.Context, name string, loreIDs []string) (*types.Group, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("engine: group name is required")
	}
	g := &types.Group{
		ID:      uuid.New().String(),
		Name:    strings.TrimSpace(name),
		LoreIDs: loreIDs,
		History: types.Transcript{},
	}
	if err := e.repo.SaveGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}
