package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mudler/LocalCircle/core/types"
)

// Message represents a chat message
type Message struct {
	Message string `json:"message"`
}

// Reply is what the agents did in answer to a message.
type Reply struct {
	Applied     int             `json:"applied"`
	Skipped     int             `json:"skipped"`
	Adjustments int             `json:"adjustments"`
	Messages    []types.Message `json:"messages"`
}

// SendMessage sends a message to an agent's private chat
func (c *Client) SendMessage(ctx context.Context, agentID, message string) (*Reply, error) {
	var r Reply
	if err := c.do(ctx, http.MethodPost, "/api/chat/"+agentID, Message{Message: message}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) SendGroupMessage(ctx context.Context, groupID, message string) ([]Reply, error) {
	var out struct {
		Replies []Reply `json:"replies"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/group/%s/chat", groupID), Message{Message: message}, &out); err != nil {
		return nil, err
	}
	return out.Replies, nil
}

func (c *Client) RequestFriend(ctx context.Context, agentID, message string) (*Reply, error) {
	var r Reply
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/agent/%s/request", agentID), Message{Message: message}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Enter opens the agent's private chat. The reply is nil when there was
// nothing to brief the agent about.
func (c *Client) Enter(ctx context.Context, agentID string) (*Reply, error) {
	var out struct {
		Reply *Reply `json:"reply"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/agent/%s/enter", agentID), nil, &out); err != nil {
		return nil, err
	}
	return out.Reply, nil
}
