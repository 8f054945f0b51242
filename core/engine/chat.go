package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mudler/LocalCircle/core/action"
	"github.com/mudler/LocalCircle/core/events"
	"github.com/mudler/LocalCircle/core/lock"
	"github.com/mudler/LocalCircle/core/parser"
	"github.com/mudler/LocalCircle/core/prompt"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/llm"
	"github.com/mudler/xlog"
)

// Chat appends the user's message to the agent's private transcript and
// lets the agent answer at live-chat priority.
func (e *Engine) Chat(ctx context.Context, agentID, text string) (*action.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("engine: empty message")
	}

	var msg types.Message
	agent, err := e.updateAgent(ctx, agentID, func(a *types.Agent, now int64) error {
		if !a.Awake() {
			return fmt.Errorf("%w: %s", ErrBlocked, a.Block.State)
		}
		a.History, msg = a.History.Append(types.Message{
			Role:    types.RoleUser,
			Type:    types.MessageText,
			Content: text,
		}, now, e.options.maxHistory)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.options.notifier.MessageAppended(agent.ID, msg)

	return e.reply(ctx, lock.LiveChat, action.Scope{Actor: agent}, false)
}

// Respond asks the agent to answer its private transcript as it stands.
func (e *Engine) Respond(ctx context.Context, agentID string) (*action.Result, error) {
	agent, err := e.repo.Agent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return e.reply(ctx, lock.LiveChat, action.Scope{Actor: agent}, false)
}

// EnterChat runs when the user opens the agent's private chat. A briefing
// about group events or gathered intelligence gives the agent one reply
// round to react; otherwise nothing is generated.
func (e *Engine) EnterChat(ctx context.Context, agentID string) (*events.Briefing, *action.Result, error) {
	agent, briefing, err := e.brief(ctx, agentID)
	if err != nil || briefing == nil {
		return briefing, nil, err
	}
	if !agent.Awake() {
		return briefing, nil, nil
	}
	res, err := e.reply(ctx, lock.LiveChat, action.Scope{Actor: agent}, false)
	return briefing, res, err
}

func (e *Engine) brief(ctx context.Context, agentID string) (*types.Agent, *events.Briefing, error) {
	e.records.Lock()
	defer e.records.Unlock()
	agent, err := e.repo.Agent(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	briefing, err := e.events.Enter(ctx, agent)
	return agent, briefing, err
}

// GroupChat posts the user's message to a group and lets every member
// answer in turn.
func (e *Engine) GroupChat(ctx context.Context, groupID, text string) ([]*action.Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("engine: empty message")
	}
	var msg types.Message
	group, err := e.updateGroup(ctx, groupID, func(g *types.Group, now int64) error {
		g.History, msg = g.History.Append(types.Message{
			Role:    types.RoleUser,
			Type:    types.MessageText,
			Content: text,
		}, now, e.options.maxHistory)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.options.notifier.MessageAppended(group.ID, msg)

	members, err := e.repo.Members(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var results []*action.Result
	for _, m := range members {
		res, err := e.reply(ctx, lock.LiveChat, action.Scope{Actor: m, Group: group}, false)
		if lock.Skippable(err) {
			xlog.Warn("Group member skipped, model busy", "group", groupID, "agent", m.ID)
			continue
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// WakePrivate lets an agent act on its own in its private chat.
func (e *Engine) WakePrivate(ctx context.Context, agent *types.Agent, reactive bool) error {
	_, err := e.reply(ctx, lock.BackgroundTick, action.Scope{Actor: agent}, !reactive)
	return err
}

// WakeGroup lets actor act on its own inside the group transcript.
func (e *Engine) WakeGroup(ctx context.Context, group *types.Group, actor *types.Agent) error {
	_, err := e.reply(ctx, lock.BackgroundTick, action.Scope{Actor: actor, Group: group}, true)
	return err
}

// reply runs one model round for the scope while holding the lock at
// priority p. The scope records are reloaded once the lock is held, since
// the caller's copies may be older than what other writers saved while it
// waited. An unusable model answer applies nothing and is not an error.
func (e *Engine) reply(ctx context.Context, p lock.Priority, scope action.Scope, autonomous bool) (*action.Result, error) {
	var res *action.Result
	err := e.lock.Do(ctx, p, func(ctx context.Context) error {
		if err := e.refresh(ctx, scope); err != nil {
			return err
		}
		if p == lock.BackgroundTick && scope.Group == nil && !scope.Actor.Awake() {
			xlog.Debug("Agent blocked while waiting, wake dropped", "agent", scope.Actor.ID)
			res = &action.Result{}
			return nil
		}
		req, err := e.request(ctx, scope, autonomous)
		if err != nil {
			return err
		}
		raw, err := e.gen.Generate(ctx, req)
		if err != nil {
			return fmt.Errorf("generating: %w", err)
		}

		plan, err := action.ParsePlan(raw)
		var pf *parser.ParseFailure
		if errors.As(err, &pf) {
			xlog.Warn("Model answer not usable, nothing applied", "scope", scope.ID(), "reason", pf.Reason)
			res = &action.Result{}
			return nil
		}
		if err != nil {
			return err
		}

		res, err = e.interp.Apply(ctx, scope, plan)
		return err
	})
	if err != nil {
		return res, err
	}
	xlog.Debug("Reply applied", "scope", scope.ID(), "actor", scope.Actor.ID,
		"applied", res.Applied, "skipped", res.Skipped, "adjustments", res.Adjustments)
	return res, nil
}

// refresh overwrites the scope records with their stored versions.
func (e *Engine) refresh(ctx context.Context, scope action.Scope) error {
	e.records.Lock()
	defer e.records.Unlock()

	actor, err := e.repo.Agent(ctx, scope.Actor.ID)
	if err != nil {
		return err
	}
	*scope.Actor = *actor
	if scope.Group == nil {
		return nil
	}
	group, err := e.repo.Group(ctx, scope.Group.ID)
	if err != nil {
		return err
	}
	*scope.Group = *group
	return nil
}

func (e *Engine) request(ctx context.Context, scope action.Scope, autonomous bool) (llm.Request, error) {
	var (
		system  string
		history types.Transcript
		err     error
	)
	if scope.Group != nil {
		system, err = e.groupPrompt(ctx, scope.Group, scope.Actor, autonomous)
		history = scope.Group.History
	} else {
		system, err = e.chatPrompt(ctx, scope.Actor, autonomous)
		history = scope.Actor.History
	}
	if err != nil {
		return llm.Request{}, fmt.Errorf("building prompt: %w", err)
	}
	return llm.Request{
		System:      system,
		Messages:    prompt.Messages(history, e.options.contextWindow, scope.Actor.ID, scope.Group != nil),
		Temperature: e.options.temperature,
		JSON:        true,
	}, nil
}
