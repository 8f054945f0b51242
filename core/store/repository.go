package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mudler/LocalCircle/core/types"
)

const settingsKey = "main"

// Repository is the typed view of a Backend used by the engine.
// Every method is a single-record read or write except DeleteAgent.
type Repository struct {
	backend Backend
}

func NewRepository(b Backend) *Repository {
	return &Repository{backend: b}
}

func (r *Repository) Backend() Backend {
	return r.backend
}

func (r *Repository) Close() error {
	return r.backend.Close()
}

func get[T any](ctx context.Context, b Backend, collection, key string) (*T, error) {
	doc, err := b.Get(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", collection, key, err)
	}
	return &v, nil
}

func put(ctx context.Context, b Backend, collection, key string, v any) error {
	doc, err := encode(v)
	if err != nil {
		return err
	}
	return b.Put(ctx, collection, key, doc)
}

func decodeAll[T any](collection string, docs [][]byte) ([]*T, error) {
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", collection, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func all[T any](ctx context.Context, b Backend, collection string) ([]*T, error) {
	docs, err := b.All(ctx, collection)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](collection, docs)
}

func find[T any](ctx context.Context, b Backend, collection, field, value string) ([]*T, error) {
	docs, err := b.Find(ctx, collection, field, value)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](collection, docs)
}

// Agents

func (r *Repository) Agent(ctx context.Context, id string) (*types.Agent, error) {
	return get[types.Agent](ctx, r.backend, Agents, id)
}

func (r *Repository) SaveAgent(ctx context.Context, a *types.Agent) error {
	if a.ID == "" {
		return fmt.Errorf("saving agent: empty id")
	}
	return put(ctx, r.backend, Agents, a.ID, a)
}

func (r *Repository) Agents(ctx context.Context) ([]*types.Agent, error) {
	return all[types.Agent](ctx, r.backend, Agents)
}

// Members returns the agents belonging to a group.
func (r *Repository) Members(ctx context.Context, groupID string) ([]*types.Agent, error) {
	return find[types.Agent](ctx, r.backend, Agents, "group_id", groupID)
}

// DeleteAgent removes the agent together with its relationships, memories
// and posts, and drops it from event delivery sets. Either everything is
// removed or nothing is.
func (r *Repository) DeleteAgent(ctx context.Context, id string) error {
	agent, err := r.Agent(ctx, id)
	if err != nil {
		return err
	}

	var rels []*types.Relationship
	for _, field := range []string{"a", "b"} {
		found, err := find[types.Relationship](ctx, r.backend, Relationships, field, id)
		if err != nil {
			return err
		}
		rels = append(rels, found...)
	}
	memories, err := r.Memories(ctx, id)
	if err != nil {
		return err
	}
	posts, err := find[types.Post](ctx, r.backend, Posts, "author_id", id)
	if err != nil {
		return err
	}
	var events []*types.Event
	if agent.GroupID != "" {
		if events, err = r.Events(ctx, agent.GroupID); err != nil {
			return err
		}
	}

	return r.backend.Apply(ctx, func(b Batch) error {
		b.Delete(Agents, id)
		for _, rel := range rels {
			b.Delete(Relationships, rel.Key)
		}
		for _, m := range memories {
			b.Delete(Memories, m.ID)
		}
		for _, p := range posts {
			b.Delete(Posts, p.ID)
		}
		for _, e := range events {
			if !e.ProcessedByAgent(id) {
				continue
			}
			kept := e.ProcessedBy[:0:0]
			for _, p := range e.ProcessedBy {
				if p != id {
					kept = append(kept, p)
				}
			}
			e.ProcessedBy = kept
			doc, err := encode(e)
			if err != nil {
				return err
			}
			b.Put(Events, e.ID, doc)
		}
		return nil
	})
}

// Relationships

func (r *Repository) Relationship(ctx context.Context, key string) (*types.Relationship, error) {
	return get[types.Relationship](ctx, r.backend, Relationships, key)
}

func (r *Repository) SaveRelationship(ctx context.Context, rel *types.Relationship) error {
	return put(ctx, r.backend, Relationships, rel.Key, rel)
}

// RelationshipsOf lists every record with id as an endpoint.
func (r *Repository) RelationshipsOf(ctx context.Context, id string) ([]*types.Relationship, error) {
	var out []*types.Relationship
	for _, field := range []string{"a", "b"} {
		found, err := find[types.Relationship](ctx, r.backend, Relationships, field, id)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

// Groups

func (r *Repository) Group(ctx context.Context, id string) (*types.Group, error) {
	return get[types.Group](ctx, r.backend, Groups, id)
}

func (r *Repository) SaveGroup(ctx context.Context, g *types.Group) error {
	return put(ctx, r.backend, Groups, g.ID, g)
}

func (r *Repository) Groups(ctx context.Context) ([]*types.Group, error) {
	return all[types.Group](ctx, r.backend, Groups)
}

// Events

func (r *Repository) SaveEvent(ctx context.Context, e *types.Event) error {
	if e.ProcessedBy == nil {
		e.ProcessedBy = []string{}
	}
	return put(ctx, r.backend, Events, e.ID, e)
}

// Events returns the events of a group ordered by timestamp.
func (r *Repository) Events(ctx context.Context, groupID string) ([]*types.Event, error) {
	events, err := find[types.Event](ctx, r.backend, Events, "group_id", groupID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp < events[j].Timestamp })
	return events, nil
}

// Posts

func (r *Repository) Post(ctx context.Context, id string) (*types.Post, error) {
	return get[types.Post](ctx, r.backend, Posts, id)
}

func (r *Repository) SavePost(ctx context.Context, p *types.Post) error {
	return put(ctx, r.backend, Posts, p.ID, p)
}

// Posts returns every post, newest first.
func (r *Repository) Posts(ctx context.Context) ([]*types.Post, error) {
	posts, err := all[types.Post](ctx, r.backend, Posts)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].Timestamp > posts[j].Timestamp })
	return posts, nil
}

// Memories

func (r *Repository) SaveMemory(ctx context.Context, m *types.Memory) error {
	return put(ctx, r.backend, Memories, m.ID, m)
}

func (r *Repository) Memories(ctx context.Context, agentID string) ([]*types.Memory, error) {
	mems, err := find[types.Memory](ctx, r.backend, Memories, "agent_id", agentID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(mems, func(i, j int) bool { return mems[i].Timestamp < mems[j].Timestamp })
	return mems, nil
}

// Summaries

func (r *Repository) SaveSummary(ctx context.Context, s *types.Summary) error {
	return put(ctx, r.backend, Summaries, s.ID, s)
}

func (r *Repository) Summaries(ctx context.Context) ([]*types.Summary, error) {
	return all[types.Summary](ctx, r.backend, Summaries)
}

// DeleteSummariesBefore removes summaries older than cutoff (milliseconds)
// and reports how many were deleted.
func (r *Repository) DeleteSummariesBefore(ctx context.Context, cutoff int64) (int, error) {
	summaries, err := r.Summaries(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, s := range summaries {
		if s.Timestamp >= cutoff {
			continue
		}
		if err := r.backend.Delete(ctx, Summaries, s.ID); err != nil {
			return deleted, fmt.Errorf("deleting summary %s: %w", s.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// Lore

func (r *Repository) LoreDoc(ctx context.Context, id string) (*types.LoreDoc, error) {
	return get[types.LoreDoc](ctx, r.backend, Lore, id)
}

func (r *Repository) SaveLoreDoc(ctx context.Context, d *types.LoreDoc) error {
	return put(ctx, r.backend, Lore, d.ID, d)
}

// Stickers

func (r *Repository) Stickers(ctx context.Context) ([]*types.Sticker, error) {
	return all[types.Sticker](ctx, r.backend, Stickers)
}

func (r *Repository) SaveSticker(ctx context.Context, s *types.Sticker) error {
	return put(ctx, r.backend, Stickers, s.ID, s)
}

// Settings returns the zero Settings when none were saved yet.
func (r *Repository) Settings(ctx context.Context) (types.Settings, error) {
	s, err := get[types.Settings](ctx, r.backend, SettingsColl, settingsKey)
	if errors.Is(err, ErrNotFound) {
		return types.Settings{}, nil
	}
	if err != nil {
		return types.Settings{}, err
	}
	return *s, nil
}

func (r *Repository) SaveSettings(ctx context.Context, s types.Settings) error {
	return put(ctx, r.backend, SettingsColl, settingsKey, s)
}
