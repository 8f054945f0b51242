package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/xstrings"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	TextName       = "text"
	PhotoName      = "send_photo"
	VoiceName      = "voice_message"
	LinkName       = "share_link"
	StickerName    = "send_sticker"
	QuoteReplyName = "quote_reply"
	PatUserName    = "pat_user"
	PatMemberName  = "pat_member"

	quoteRunes = 50
)

type Text struct {
	Content string `json:"content"`
}

func (c *Text) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        TextName,
		Description: "Send a plain chat message.",
		Properties: map[string]jsonschema.Definition{
			"content": {
				Type:        jsonschema.String,
				Description: "The message text",
			},
		},
		Required: []string{"content"},
	}
}

func (c *Text) apply(_ context.Context, t *turn) error {
	if strings.TrimSpace(c.Content) == "" {
		return skip("empty text")
	}
	t.say(types.Message{Content: c.Content})
	return nil
}

type Photo struct {
	Description string `json:"description"`
}

func (c *Photo) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        PhotoName,
		Description: "Send a photo, described in words.",
		Properties: map[string]jsonschema.Definition{
			"description": {
				Type:        jsonschema.String,
				Description: "What the photo shows",
			},
		},
		Required: []string{"description"},
	}
}

func (c *Photo) apply(_ context.Context, t *turn) error {
	if c.Description == "" {
		return skip("photo without description")
	}
	t.say(types.Message{Type: types.MessageImage, Content: c.Description})
	return nil
}

type Voice struct {
	Content string `json:"content"`
}

func (c *Voice) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        VoiceName,
		Description: "Send a voice message. Content is its transcription.",
		Properties: map[string]jsonschema.Definition{
			"content": {
				Type:        jsonschema.String,
				Description: "What is said in the voice message",
			},
		},
		Required: []string{"content"},
	}
}

func (c *Voice) apply(_ context.Context, t *turn) error {
	if c.Content == "" {
		return skip("empty voice message")
	}
	t.say(types.Message{Type: types.MessageVoice, Content: c.Content})
	return nil
}

type Link struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source_name"`
	Content     string `json:"content"`
}

func (c *Link) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        LinkName,
		Description: "Share an article or web page.",
		Properties: map[string]jsonschema.Definition{
			"title":       {Type: jsonschema.String, Description: "Title of the shared page"},
			"description": {Type: jsonschema.String, Description: "Short teaser"},
			"source_name": {Type: jsonschema.String, Description: "Site or publisher"},
			"content":     {Type: jsonschema.String, Description: "Full text of the page"},
		},
		Required: []string{"title"},
	}
}

func (c *Link) apply(_ context.Context, t *turn) error {
	if c.Title == "" {
		return skip("link without title")
	}
	t.say(types.Message{
		Type: types.MessageLinkShare,
		Link: &types.Link{
			Title:       c.Title,
			Description: c.Description,
			Source:      c.Source,
			Content:     c.Content,
		},
	})
	return nil
}

// Sticker sends a sticker from the shared library. Unknown names fall back
// to a text message so the transcript never points at a missing asset.
type Sticker struct {
	Name string `json:"name"`
}

func (c *Sticker) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        StickerName,
		Description: "Send a sticker by its name in the sticker library.",
		Properties: map[string]jsonschema.Definition{
			"name": {
				Type:        jsonschema.String,
				Description: "Exact sticker name",
			},
		},
		Required: []string{"name"},
	}
}

func (c *Sticker) apply(ctx context.Context, t *turn) error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return skip("sticker without name")
	}
	stickers, err := t.repo.Stickers(ctx)
	if err != nil {
		return err
	}
	for _, s := range stickers {
		if s.Name == name {
			t.say(types.Message{Type: types.MessageSticker, Content: s.Name, URL: s.URL})
			return nil
		}
	}
	t.say(types.Message{Content: fmt.Sprintf("[%s]", name)})
	return nil
}

type QuoteReply struct {
	Target  Stamp  `json:"target_timestamp"`
	Content string `json:"reply_content"`
}

func (c *QuoteReply) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        QuoteReplyName,
		Description: "Reply to a specific earlier message, quoting it.",
		Properties: map[string]jsonschema.Definition{
			"target_timestamp": {
				Type:        jsonschema.Integer,
				Description: "Timestamp of the message being quoted",
			},
			"reply_content": {
				Type:        jsonschema.String,
				Description: "The reply text",
			},
		},
		Required: []string{"target_timestamp", "reply_content"},
	}
}

func (c *QuoteReply) apply(ctx context.Context, t *turn) error {
	target := t.transcript().Find(int64(c.Target))
	if target == nil {
		return skip("quoted message %d not found", c.Target)
	}
	sender := target.SenderName
	if sender == "" {
		sender = t.displayName(ctx, target.Sender)
		if target.Role == types.RoleUser {
			sender = t.displayName(ctx, types.UserID)
		}
	}
	t.say(types.Message{
		Content: c.Content,
		Quote: &types.Quote{
			Sender:  sender,
			Content: xstrings.Truncate(target.Summary(), quoteRunes, "..."),
		},
	})
	return nil
}

type PatUser struct {
	Suffix string `json:"suffix"`
}

func (c *PatUser) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        PatUserName,
		Description: "Give the user a friendly pat.",
		Properties: map[string]jsonschema.Definition{
			"suffix": {Type: jsonschema.String, Description: "Optional words appended to the pat"},
		},
	}
}

func (c *PatUser) apply(ctx context.Context, t *turn) error {
	t.notice(patLine(t.actor.Name, t.displayName(ctx, types.UserID), c.Suffix), false)
	return nil
}

type PatMember struct {
	Target string `json:"target_name"`
	Suffix string `json:"suffix"`
}

func (c *PatMember) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        PatMemberName,
		Description: "Pat another member of the group chat.",
		Properties: map[string]jsonschema.Definition{
			"target_name": {Type: jsonschema.String, Description: "Name of the member to pat"},
			"suffix":      {Type: jsonschema.String, Description: "Optional words appended to the pat"},
		},
		Required: []string{"target_name"},
	}
}

func (c *PatMember) apply(ctx context.Context, t *turn) error {
	if !t.inGroup() {
		return skip("pat_member outside a group")
	}
	id, ok := t.resolve(ctx, c.Target)
	if !ok {
		return skip("unknown member %q", c.Target)
	}
	t.notice(patLine(t.actor.Name, t.displayName(ctx, id), c.Suffix), false)
	return nil
}

func patLine(from, to, suffix string) string {
	line := fmt.Sprintf("%s patted %s", from, to)
	if suffix = strings.TrimSpace(suffix); suffix != "" {
		line += " " + suffix
	}
	return line
}
