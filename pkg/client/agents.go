package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mudler/LocalCircle/core/engine"
	"github.com/mudler/LocalCircle/core/types"
)

// AgentSummary is one entry of the agent list.
type AgentSummary struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	GroupID string            `json:"group_id,omitempty"`
	Status  types.Status      `json:"status"`
	Block   types.BlockStatus `json:"block"`
}

func (c *Client) ListAgents(ctx context.Context) ([]AgentSummary, error) {
	var out struct {
		Agents []AgentSummary `json:"agents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/agents", nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// GetAgent returns the agent with its visible history.
func (c *Client) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	var agent types.Agent
	if err := c.do(ctx, http.MethodGet, "/api/agent/"+id, nil, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *Client) CreateAgent(ctx context.Context, spec engine.AgentSpec) (*types.Agent, error) {
	var agent types.Agent
	if err := c.do(ctx, http.MethodPost, "/api/agent/create", spec, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/agent/"+id, nil, nil)
}

func (c *Client) Relationships(ctx context.Context, id string) ([]types.Relationship, error) {
	var rels []types.Relationship
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/agent/%s/relationships", id), nil, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// Block, Unblock, Approve and RequestFriend drive the block state machine
// from the user's side.
func (c *Client) Block(ctx context.Context, id, reason string) (*types.BlockStatus, error) {
	return c.transition(ctx, id, "block", map[string]any{"reason": reason})
}

func (c *Client) Unblock(ctx context.Context, id string) (*types.BlockStatus, error) {
	return c.transition(ctx, id, "unblock", nil)
}

func (c *Client) Approve(ctx context.Context, id string, accept bool) (*types.BlockStatus, error) {
	return c.transition(ctx, id, "approve", map[string]any{"accept": accept})
}

func (c *Client) transition(ctx context.Context, id, op string, body any) (*types.BlockStatus, error) {
	var st types.BlockStatus
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/agent/%s/%s", id, op), body, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
