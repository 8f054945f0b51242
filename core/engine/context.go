package engine

import (
	"context"
	"errors"

	"github.com/mudler/LocalCircle/core/action"
	"github.com/mudler/LocalCircle/core/prompt"
	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
)

// names maps agent ids, and the user endpoint, to display names.
func (e *Engine) names(ctx context.Context) (map[string]string, string, error) {
	settings, err := e.repo.Settings(ctx)
	if err != nil {
		return nil, "", err
	}
	agents, err := e.repo.Agents(ctx)
	if err != nil {
		return nil, "", err
	}
	userName := settings.UserName
	names := map[string]string{types.UserID: "the user"}
	if userName != "" {
		names[types.UserID] = userName
	}
	for _, a := range agents {
		names[a.ID] = a.Name
	}
	return names, userName, nil
}

func (e *Engine) relationsOf(ctx context.Context, id string, names map[string]string) ([]prompt.Relation, error) {
	rels, err := e.repo.RelationshipsOf(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]prompt.Relation, 0, len(rels))
	for _, r := range rels {
		out = append(out, prompt.Relation{A: names[r.A], B: names[r.B], Type: r.Type, Score: r.Score})
	}
	return out, nil
}

func (e *Engine) lore(ctx context.Context, groupID string) ([]*types.LoreDoc, error) {
	if groupID == "" {
		return nil, nil
	}
	g, err := e.repo.Group(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var docs []*types.LoreDoc
	for _, id := range g.LoreIDs {
		d, err := e.repo.LoreDoc(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (e *Engine) chatPrompt(ctx context.Context, agent *types.Agent, autonomous bool) (string, error) {
	names, userName, err := e.names(ctx)
	if err != nil {
		return "", err
	}
	relations, err := e.relationsOf(ctx, agent.ID, names)
	if err != nil {
		return "", err
	}
	memories, err := e.repo.Memories(ctx, agent.ID)
	if err != nil {
		return "", err
	}
	posts, err := e.repo.Posts(ctx)
	if err != nil {
		return "", err
	}
	if len(posts) > e.options.maxPosts {
		posts = posts[:e.options.maxPosts]
	}
	docs, err := e.lore(ctx, agent.GroupID)
	if err != nil {
		return "", err
	}
	stickers, err := e.repo.Stickers(ctx)
	if err != nil {
		return "", err
	}

	return prompt.RenderChat(prompt.Chat{
		Agent:      agent,
		UserName:   userName,
		Autonomous: autonomous,
		Commands:   action.Catalog(),
		Memories:   memories,
		Relations:  relations,
		Posts:      posts,
		Lore:       docs,
		Stickers:   stickers,
		Now:        e.options.clock(),
	})
}

func (e *Engine) groupPrompt(ctx context.Context, group *types.Group, actor *types.Agent, autonomous bool) (string, error) {
	names, userName, err := e.names(ctx)
	if err != nil {
		return "", err
	}
	members, err := e.repo.Members(ctx, group.ID)
	if err != nil {
		return "", err
	}
	data := prompt.Group{
		Group:      group,
		Actor:      actor,
		UserName:   userName,
		Autonomous: autonomous,
		Commands:   action.Catalog(),
		Now:        e.options.clock(),
	}
	inGroup := map[string]bool{types.UserID: true}
	for _, m := range members {
		inGroup[m.ID] = true
		if m.ID != actor.ID {
			data.Members = append(data.Members, prompt.Member{Name: m.Name, Persona: m.Persona})
		}
	}
	rels, err := e.repo.RelationshipsOf(ctx, actor.ID)
	if err != nil {
		return "", err
	}
	for _, r := range rels {
		if inGroup[r.Other(actor.ID)] {
			data.Relations = append(data.Relations, prompt.Relation{A: names[r.A], B: names[r.B], Type: r.Type, Score: r.Score})
		}
	}
	if data.Lore, err = e.lore(ctx, group.ID); err != nil {
		return "", err
	}
	if data.Stickers, err = e.repo.Stickers(ctx); err != nil {
		return "", err
	}
	return prompt.RenderGroup(data)
}
