package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/mudler/LocalCircle/core/types"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	UpdateStatusName          = "update_status"
	UpdateSignatureName       = "update_signature"
	ChangeAvatarName          = "change_avatar"
	UpdateNameName            = "update_name"
	BlockUserName             = "block_user"
	FriendRequestResponseName = "friend_request_response"

	friendAcceptedText = "I accepted your friend request. Let's start over!"
)

type UpdateStatus struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

func (c *UpdateStatus) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        UpdateStatusName,
		Description: "Change your presence status line.",
		Properties: map[string]jsonschema.Definition{
			"text":  {Type: jsonschema.String, Description: "Short status text, e.g. 'at the gym'"},
			"color": {Type: jsonschema.String, Description: "Status dot color, defaults to green"},
		},
		Required: []string{"text"},
	}
}

func (c *UpdateStatus) apply(_ context.Context, t *turn) error {
	old := t.actor.Status.Text
	if old == "" {
		old = types.DefaultStatus().Text
	}
	text := strings.TrimSpace(c.Text)
	if text == "" {
		text = old
	}
	color := c.Color
	if color == "" {
		color = types.DefaultStatus().Color
	}
	t.actor.Status = types.Status{Text: text, Color: color}
	if text != old {
		t.notice(fmt.Sprintf("%s changed status to %q", t.actor.Name, text), false)
	}
	return nil
}

type UpdateSignature struct {
	Signature string `json:"signature"`
}

func (c *UpdateSignature) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        UpdateSignatureName,
		Description: "Change the signature shown on your profile.",
		Properties: map[string]jsonschema.Definition{
			"signature": {Type: jsonschema.String},
		},
		Required: []string{"signature"},
	}
}

func (c *UpdateSignature) apply(_ context.Context, t *turn) error {
	if c.Signature == "" || c.Signature == t.actor.Signature {
		return skip("signature unchanged")
	}
	t.actor.Signature = c.Signature
	t.notice(fmt.Sprintf("%s updated their signature", t.actor.Name), false)
	return nil
}

type ChangeAvatar struct {
	Name string `json:"name"`
}

func (c *ChangeAvatar) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        ChangeAvatarName,
		Description: "Switch to another avatar from your avatar library.",
		Properties: map[string]jsonschema.Definition{
			"name": {Type: jsonschema.String, Description: "Name of the avatar in the library"},
		},
		Required: []string{"name"},
	}
}

func (c *ChangeAvatar) apply(_ context.Context, t *turn) error {
	av, ok := t.actor.FindAvatar(c.Name)
	if !ok {
		return skip("avatar %q not in library", c.Name)
	}
	t.actor.Avatar = av.URL
	t.notice(fmt.Sprintf("%s changed their avatar", t.actor.Name), false)
	return nil
}

// UpdateName accepts both "newName" and "name".
type UpdateName struct {
	NewName string `json:"newName"`
	Name    string `json:"name"`
}

func (c *UpdateName) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        UpdateNameName,
		Description: "Change your display name.",
		Properties: map[string]jsonschema.Definition{
			"newName": {Type: jsonschema.String},
		},
		Required: []string{"newName"},
	}
}

func (c *UpdateName) apply(_ context.Context, t *turn) error {
	name := strings.TrimSpace(c.NewName)
	if name == "" {
		name = strings.TrimSpace(c.Name)
	}
	if name == "" || name == t.actor.Name {
		return skip("name unchanged")
	}
	old := t.actor.Name
	t.actor.Name = name
	t.notice(fmt.Sprintf("%s changed their name to %q", old, name), false)
	return nil
}

type BlockUser struct {
	Reason string `json:"reason"`
}

func (c *BlockUser) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        BlockUserName,
		Description: "Block the user. Only available in private chats.",
		Properties: map[string]jsonschema.Definition{
			"reason": {Type: jsonschema.String},
		},
	}
}

func (c *BlockUser) apply(_ context.Context, t *turn) error {
	if t.inGroup() {
		return skip("block_user in a group chat")
	}
	t.actor.Block = types.BlockStatus{State: types.BlockedByAgent, Timestamp: t.now, Reason: c.Reason}
	return nil
}

type FriendRequestResponse struct {
	Decision string `json:"decision"`
}

func (c *FriendRequestResponse) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        FriendRequestResponseName,
		Description: "Accept or reject the user's pending friend request.",
		Properties: map[string]jsonschema.Definition{
			"decision": {Type: jsonschema.String, Enum: []string{"accept", "reject"}},
		},
		Required: []string{"decision"},
	}
}

func (c *FriendRequestResponse) apply(_ context.Context, t *turn) error {
	if t.inGroup() || !t.actor.Block.Is(types.PendingAgentApproval) {
		return skip("no pending friend request")
	}
	if c.Decision == "accept" {
		t.actor.Block = types.BlockStatus{State: types.BlockNone}
		t.say(types.Message{Content: friendAcceptedText})
		return nil
	}
	t.actor.Block = types.BlockStatus{State: types.BlockedByAgent, Timestamp: t.now}
	return nil
}
