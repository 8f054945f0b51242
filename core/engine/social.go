package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mudler/LocalCircle/core/action"
	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/parser"
	"github.com/mudler/LocalCircle/core/prompt"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/llm"
	"github.com/mudler/xlog"
)

type reconciliation struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// Reconcile asks an agent in reflection whether it wants to reconnect with
// the user. Applying turns into a friend request awaiting the user; any
// other outcome, failures included, restarts the block cooldown.
func (e *Engine) Reconcile(ctx context.Context, agent *types.Agent) error {
	if !agent.Block.Is(types.PendingReflection) {
		return fmt.Errorf("%w: %s", ErrInvalidState, agent.Block.State)
	}

	var (
		rec    reconciliation
		genErr error
	)
	err := e.lock.Do(ctx, lock.BackgroundTick, func(ctx context.Context) error {
		if err := e.refresh(ctx, action.Scope{Actor: agent}); err != nil {
			return err
		}
		if !agent.Block.Is(types.PendingReflection) {
			return fmt.Errorf("%w: %s", ErrInvalidState, agent.Block.State)
		}
		genErr = e.askReconcile(ctx, agent, &rec)
		return e.settleReflection(ctx, agent, rec, genErr)
	})
	switch {
	case lock.Skippable(err):
		if serr := e.settleReflection(ctx, agent, rec, err); serr != nil {
			return serr
		}
		return err
	case err != nil:
		return err
	}

	var pf *parser.ParseFailure
	if errors.As(genErr, &pf) {
		xlog.Warn("Reconciliation answer not usable", "agent", agent.ID, "reason", pf.Reason)
		return nil
	}
	return genErr
}

func (e *Engine) askReconcile(ctx context.Context, agent *types.Agent, rec *reconciliation) error {
	settings, err := e.repo.Settings(ctx)
	if err != nil {
		return err
	}
	system, err := prompt.RenderReconcile(prompt.Reconcile{
		Agent:    agent,
		UserName: settings.UserName,
		Reason:   agent.Block.Reason,
	})
	if err != nil {
		return err
	}
	raw, err := e.gen.Generate(ctx, llm.Request{
		System:      system,
		Messages:    prompt.Messages(agent.History, e.options.contextWindow, agent.ID, false),
		Temperature: e.options.temperature,
		JSON:        true,
	})
	if err != nil {
		return fmt.Errorf("generating: %w", err)
	}
	return parser.Decode(raw, rec)
}

// settleReflection stores the outcome of a reflection on the current record
// of the agent and copies it back into agent.
func (e *Engine) settleReflection(ctx context.Context, agent *types.Agent, rec reconciliation, genErr error) error {
	apply := genErr == nil && strings.EqualFold(strings.TrimSpace(rec.Decision), "apply")

	var msg types.Message
	stored, err := e.updateAgent(ctx, agent.ID, func(a *types.Agent, now int64) error {
		if !a.Block.Is(types.PendingReflection) {
			return fmt.Errorf("%w: %s", ErrInvalidState, a.Block.State)
		}
		if !apply {
			a.Block = types.BlockStatus{State: types.BlockedByUser, Timestamp: now, Reason: a.Block.Reason}
			return nil
		}
		a.Block = types.BlockStatus{State: types.PendingUserApproval, Timestamp: now, Reason: rec.Reason}
		a.History, msg = a.History.Append(types.Message{
			Role:    types.RoleSystem,
			Type:    types.MessageNotice,
			Content: fmt.Sprintf("%s sent you a friend request: %s", a.Name, rec.Reason),
		}, now, e.options.maxHistory)
		return nil
	})
	if err != nil {
		return err
	}
	*agent = *stored

	switch {
	case apply:
		e.options.notifier.MessageAppended(agent.ID, msg)
		xlog.Info("Agent asks to reconnect", "agent", agent.ID)
	case genErr == nil:
		xlog.Info("Agent keeps waiting", "agent", agent.ID, "decision", rec.Decision)
	}
	return nil
}

// BlockAgent is the user blocking an agent.
func (e *Engine) BlockAgent(ctx context.Context, agentID, reason string) (*types.Agent, error) {
	return e.transition(ctx, agentID, func(a *types.Agent, now int64) error {
		if !a.Block.Is(types.BlockNone) {
			return fmt.Errorf("%w: %s", ErrInvalidState, a.Block.State)
		}
		a.Block = types.BlockStatus{State: types.BlockedByUser, Timestamp: now, Reason: reason}
		return nil
	})
}

// Unblock lifts a block set by the user before the agent asked to reconnect.
func (e *Engine) Unblock(ctx context.Context, agentID string) (*types.Agent, error) {
	return e.transition(ctx, agentID, func(a *types.Agent, now int64) error {
		if !a.Block.Is(types.BlockedByUser) && !a.Block.Is(types.PendingReflection) {
			return fmt.Errorf("%w: %s", ErrInvalidState, a.Block.State)
		}
		a.Block = types.BlockStatus{State: types.BlockNone, Timestamp: now}
		return nil
	})
}

// Approve answers an agent's friend request.
func (e *Engine) Approve(ctx context.Context, agentID string, accept bool) (*types.Agent, error) {
	return e.transition(ctx, agentID, func(a *types.Agent, now int64) error {
		if !a.Block.Is(types.PendingUserApproval) {
			return fmt.Errorf("%w: %s", ErrInvalidState, a.Block.State)
		}
		if !accept {
			a.Block = types.BlockStatus{State: types.BlockedByUser, Timestamp: now}
			return nil
		}
		a.Block = types.BlockStatus{State: types.BlockNone, Timestamp: now}
		a.History, _ = a.History.Append(types.Message{
			Role:    types.RoleSystem,
			Type:    types.MessageNotice,
			Content: "[The user accepted your friend request. You are friends again.]",
			Hidden:  true,
		}, now, e.options.maxHistory)
		return nil
	})
}

// RequestFriend sends a friend request to an agent that blocked the user
// and lets the agent answer it right away.
func (e *Engine) RequestFriend(ctx context.Context, agentID, message string) (*action.Result, error) {
	agent, err := e.transition(ctx, agentID, func(a *types.Agent, now int64) error {
		if !a.Block.Is(types.BlockedByAgent) {
			return fmt.Errorf("%w: %s", ErrInvalidState, a.Block.State)
		}
		a.Block = types.BlockStatus{State: types.PendingAgentApproval, Timestamp: now, Reason: message}
		a.History, _ = a.History.Append(types.Message{
			Role:    types.RoleSystem,
			Type:    types.MessageNotice,
			Content: fmt.Sprintf("[The user sent you a friend request: %q. Answer it with %s.]", message, action.FriendRequestResponseName),
			Hidden:  true,
		}, now, e.options.maxHistory)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.reply(ctx, lock.LiveChat, action.Scope{Actor: agent}, false)
}

func (e *Engine) transition(ctx context.Context, agentID string, fn func(a *types.Agent, now int64) error) (*types.Agent, error) {
	var from types.BlockState
	agent, err := e.updateAgent(ctx, agentID, func(a *types.Agent, now int64) error {
		from = a.Block.State
		return fn(a, now)
	})
	if err != nil {
		return nil, err
	}
	xlog.Info("Block state changed", "agent", agent.ID, "from", from, "to", agent.Block.State)
	return agent, nil
}

// updateAgent loads the agent, lets fn change it and saves it, all under
// the record lock. Nothing is saved when fn fails.
func (e *Engine) updateAgent(ctx context.Context, id string, fn func(a *types.Agent, now int64) error) (*types.Agent, error) {
	e.records.Lock()
	defer e.records.Unlock()

	agent, err := e.repo.Agent(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(agent, e.options.clock().UnixMilli()); err != nil {
		return nil, err
	}
	if err := e.repo.SaveAgent(ctx, agent); err != nil {
		return nil, err
	}
	return agent, nil
}

// updateGroup is updateAgent for groups.
func (e *Engine) updateGroup(ctx context.Context, id string, fn func(g *types.Group, now int64) error) (*types.Group, error) {
	e.records.Lock()
	defer e.records.Unlock()

	group, err := e.repo.Group(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(group, e.options.clock().UnixMilli()); err != nil {
		return nil, err
	}
	if err := e.repo.SaveGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}
