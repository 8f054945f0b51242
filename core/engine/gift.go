package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mudler/LocalCircle/core/gift"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/xlog"
)

// OpenGift lets the user claim the red packet sent at timestamp ts in a
// private chat (scopeID is an agent id) or a group chat (a group id).
func (e *Engine) OpenGift(ctx context.Context, scopeID string, ts int64) (float64, error) {
	e.records.Lock()
	defer e.records.Unlock()

	agent, err := e.repo.Agent(ctx, scopeID)
	switch {
	case err == nil:
		var amount float64
		agent.History, amount, err = e.claim(agent.History, scopeID, ts)
		if err != nil {
			return 0, err
		}
		return amount, e.repo.SaveAgent(ctx, agent)
	case !errors.Is(err, store.ErrNotFound):
		return 0, err
	}

	group, err := e.repo.Group(ctx, scopeID)
	if err != nil {
		return 0, err
	}
	var amount float64
	group.History, amount, err = e.claim(group.History, scopeID, ts)
	if err != nil {
		return 0, err
	}
	return amount, e.repo.SaveGroup(ctx, group)
}

func (e *Engine) claim(t types.Transcript, scopeID string, ts int64) (types.Transcript, float64, error) {
	msg := t.Find(ts)
	if msg == nil || msg.Gift == nil {
		return t, 0, fmt.Errorf("%w: red packet at %d", store.ErrNotFound, ts)
	}
	now := e.options.clock().UnixMilli()
	amount, err := gift.Claim(msg.Gift, types.UserID, now, e.options.rng)
	if err != nil {
		return t, 0, err
	}

	var notice types.Message
	t, notice = t.Append(types.Message{
		Role:    types.RoleSystem,
		Type:    types.MessageNotice,
		Content: fmt.Sprintf("[You claimed %.2f from %s's red packet]", amount, msg.SenderName),
	}, now, e.options.maxHistory)
	e.options.notifier.MessageAppended(scopeID, notice)
	xlog.Info("User opened red packet", "scope", scopeID, "packet", ts, "amount", amount)
	return t, amount, nil
}
