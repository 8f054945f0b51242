package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/LocalCircle/pkg/xstrings"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	CreatePostName         = "create_post"
	LikePostName           = "like_post"
	CommentPostName        = "comment_on_post"
	MemoryName             = "create_memory"
	ImportantMemoryName    = "create_important_memory"
	CountdownName          = "create_countdown"
	AdjustRelationshipName = "adjust_relationship"
)

type CreatePost struct {
	PostType         string `json:"postType"`
	Content          string `json:"content"`
	PublicText       string `json:"publicText"`
	ImageDescription string `json:"imageDescription"`
}

func (c *CreatePost) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        CreatePostName,
		Description: "Publish a post on your feed. Text posts need content; image posts need imageDescription.",
		Properties: map[string]jsonschema.Definition{
			"postType":         {Type: jsonschema.String, Enum: []string{string(types.PostText), string(types.PostImage)}},
			"content":          {Type: jsonschema.String, Description: "Body of a text post"},
			"publicText":       {Type: jsonschema.String, Description: "Caption of an image post"},
			"imageDescription": {Type: jsonschema.String, Description: "What the image shows"},
		},
		Required: []string{"postType"},
	}
}

func (c *CreatePost) apply(ctx context.Context, t *turn) error {
	post := &types.Post{
		ID:        uuid.New().String(),
		AuthorID:  t.actor.ID,
		Timestamp: t.now,
		Likes:     []string{},
		Comments:  []types.Comment{},
	}
	switch types.PostKind(c.PostType) {
	case types.PostText:
		if c.Content == "" {
			return skip("text post without content")
		}
		post.Kind, post.Text = types.PostText, c.Content
	case types.PostImage:
		if c.ImageDescription == "" {
			return skip("image post without description")
		}
		post.Kind, post.Text, post.ImageDescription = types.PostImage, c.PublicText, c.ImageDescription
	default:
		return skip("unknown post type %q", c.PostType)
	}

	if err := t.repo.SavePost(ctx, post); err != nil {
		return err
	}
	t.notice(fmt.Sprintf("%s published a new post", t.actor.Name), false)
	return nil
}

type LikePost struct {
	PostID ID `json:"postId"`
}

func (c *LikePost) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        LikePostName,
		Description: "Like a post on the feed.",
		Properties: map[string]jsonschema.Definition{
			"postId": {Type: jsonschema.String},
		},
		Required: []string{"postId"},
	}
}

func (c *LikePost) apply(ctx context.Context, t *turn) error {
	post, err := loadPost(ctx, t, c.PostID)
	if err != nil {
		return err
	}
	likes, added := xstrings.AppendUnique(post.Likes, t.actor.ID)
	if !added {
		return skip("post %s already liked", c.PostID)
	}
	post.Likes = likes
	return t.repo.SavePost(ctx, post)
}

type CommentPost struct {
	PostID ID     `json:"postId"`
	Text   string `json:"commentText"`
}

func (c *CommentPost) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        CommentPostName,
		Description: "Comment on a post on the feed.",
		Properties: map[string]jsonschema.Definition{
			"postId":      {Type: jsonschema.String},
			"commentText": {Type: jsonschema.String},
		},
		Required: []string{"postId", "commentText"},
	}
}

func (c *CommentPost) apply(ctx context.Context, t *turn) error {
	if strings.TrimSpace(c.Text) == "" {
		return skip("empty comment")
	}
	post, err := loadPost(ctx, t, c.PostID)
	if err != nil {
		return err
	}
	post.Comments = append(post.Comments, types.Comment{AuthorID: t.actor.ID, Text: c.Text, Timestamp: t.now})
	return t.repo.SavePost(ctx, post)
}

func loadPost(ctx context.Context, t *turn, id ID) (*types.Post, error) {
	post, err := t.repo.Post(ctx, string(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, skip("post %s not found", id)
	}
	return post, err
}

// Memory records a diary entry for the actor. Important entries are kept
// without limit and surface first in prompts.
type Memory struct {
	Description string `json:"description"`
	Important   bool   `json:"-"`
}

func (c *Memory) Definition() types.CommandDefinition {
	def := types.CommandDefinition{
		Name:        MemoryName,
		Description: "Remember something about the conversation.",
		Properties: map[string]jsonschema.Definition{
			"description": {Type: jsonschema.String, Description: "What to remember, in your own words"},
		},
		Required: []string{"description"},
	}
	if c.Important {
		def.Name = ImportantMemoryName
		def.Description = "Remember something that matters a lot. Important memories are never forgotten."
	}
	return def
}

func (c *Memory) apply(ctx context.Context, t *turn) error {
	if strings.TrimSpace(c.Description) == "" {
		return skip("empty memory")
	}
	err := t.repo.SaveMemory(ctx, &types.Memory{
		ID:          uuid.New().String(),
		AgentID:     t.actor.ID,
		Author:      t.actor.Name,
		Kind:        types.MemoryDiary,
		Description: c.Description,
		Important:   c.Important,
		Timestamp:   t.now,
	})
	if err != nil {
		return err
	}
	if c.Important {
		t.notice(fmt.Sprintf("%s marked this as an important memory", t.actor.Name), false)
	} else {
		t.notice(fmt.Sprintf("%s will remember this", t.actor.Name), false)
	}
	return nil
}

var countdownLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

type Countdown struct {
	Description string          `json:"description"`
	TargetDate  json.RawMessage `json:"targetDate"`
}

func (c *Countdown) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        CountdownName,
		Description: "Agree on a future date together and start a countdown to it.",
		Properties: map[string]jsonschema.Definition{
			"description": {Type: jsonschema.String},
			"targetDate":  {Type: jsonschema.String, Description: "Future date, e.g. 2025-12-24 or 2025-12-24T20:00"},
		},
		Required: []string{"description", "targetDate"},
	}
}

// target returns the target date in milliseconds.
func (c *Countdown) target() (int64, bool) {
	var n Number
	if err := n.UnmarshalJSON(c.TargetDate); err == nil && n.Valid() && n > 0 {
		return int64(n), true
	}
	var s string
	if err := json.Unmarshal(c.TargetDate, &s); err != nil {
		return 0, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range countdownLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts.UnixMilli(), true
		}
	}
	return 0, false
}

func (c *Countdown) apply(ctx context.Context, t *turn) error {
	target, ok := c.target()
	if !ok {
		return skip("invalid countdown date %s", string(c.TargetDate))
	}
	if target <= t.now {
		return skip("countdown date %s is not in the future", string(c.TargetDate))
	}
	err := t.repo.SaveMemory(ctx, &types.Memory{
		ID:          uuid.New().String(),
		AgentID:     t.actor.ID,
		Author:      t.actor.Name,
		Kind:        types.MemoryCountdown,
		Description: c.Description,
		TargetDate:  target,
		Timestamp:   t.now,
	})
	if err != nil {
		return err
	}
	t.notice(fmt.Sprintf("You and %s made a promise", t.actor.Name), false)
	return nil
}

// AdjustRelationship is the inline form of a relationship delta. An
// optional relation type changes the kind of the relationship as well.
type AdjustRelationship struct {
	Adjustment
	RelationType types.RelationType `json:"relation_type"`
}

func (c *AdjustRelationship) Definition() types.CommandDefinition {
	return types.CommandDefinition{
		Name:        AdjustRelationshipName,
		Description: "Change how two characters feel about each other. Scores are bounded to [-1000, 1000].",
		Properties: map[string]jsonschema.Definition{
			"source_char_name": {Type: jsonschema.String},
			"target_char_name": {Type: jsonschema.String, Description: "Another character, or 'user'"},
			"score_change":     {Type: jsonschema.Integer},
			"reason":           {Type: jsonschema.String},
			"relation_type": {
				Type: jsonschema.String,
				Enum: []string{
					string(types.RelationStranger), string(types.RelationFriend), string(types.RelationFamily),
					string(types.RelationLover), string(types.RelationRival),
				},
			},
		},
		Required: []string{"target_char_name", "score_change"},
	}
}

func (c *AdjustRelationship) apply(ctx context.Context, t *turn) error {
	return t.adjustAs(ctx, c.Source, c.Target, c.Delta, c.RelationType)
}
