// Package relation maintains the symmetric affinity score between two
// endpoints.
package relation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/LocalCircle/core/types"
	"github.com/mudler/xlog"
)

const (
	MinScore = -1000
	MaxScore = 1000
)

var ErrSelf = errors.New("relation: an endpoint cannot relate to itself")

// Store returns store.ErrNotFound for missing records.
type Store interface {
	Relationship(ctx context.Context, key string) (*types.Relationship, error)
	SaveRelationship(ctx context.Context, rel *types.Relationship) error
}

// Adjuster serializes read-modify-write cycles on relationship records.
type Adjuster struct {
	mu    sync.Mutex
	store Store
}

func NewAdjuster(s Store) *Adjuster {
	return &Adjuster{store: s}
}

func Clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Adjust adds delta to the score shared by x and y, creating the record as a
// stranger relationship when missing.
func (a *Adjuster) Adjust(ctx context.Context, x, y string, delta int) (*types.Relationship, error) {
	return a.update(ctx, x, y, delta, "")
}

// AdjustAs adds delta and changes the relationship kind to t in a single
// write. Nothing is written when t is unknown.
func (a *Adjuster) AdjustAs(ctx context.Context, x, y string, delta int, t types.RelationType) (*types.Relationship, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("relation: unknown type %q", t)
	}
	return a.update(ctx, x, y, delta, t)
}

func (a *Adjuster) update(ctx context.Context, x, y string, delta int, t types.RelationType) (*types.Relationship, error) {
	if x == "" || y == "" {
		return nil, fmt.Errorf("relation: empty endpoint")
	}
	if x == y {
		return nil, ErrSelf
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rel, err := a.load(ctx, x, y)
	if err != nil {
		return nil, err
	}
	before := rel.Score
	rel.Score = Clamp(rel.Score + delta)
	if t != "" {
		rel.Type = t
	}

	if err := a.store.SaveRelationship(ctx, rel); err != nil {
		return nil, fmt.Errorf("saving relationship %s: %w", rel.Key, err)
	}
	xlog.Debug("Relationship adjusted", "key", rel.Key, "delta", delta, "from", before, "to", rel.Score, "type", rel.Type)
	return rel, nil
}

// Get returns the record for the pair, or a zero-score stranger record that
// has not been persisted.
func (a *Adjuster) Get(ctx context.Context, x, y string) (*types.Relationship, error) {
	return a.load(ctx, x, y)
}

func (a *Adjuster) load(ctx context.Context, x, y string) (*types.Relationship, error) {
	first, second, key := types.RelationKey(x, y)
	rel, err := a.store.Relationship(ctx, key)
	switch {
	case err == nil:
		return rel, nil
	case errors.Is(err, store.ErrNotFound):
		return &types.Relationship{Key: key, A: first, B: second, Type: types.RelationStranger}, nil
	default:
		return nil, fmt.Errorf("loading relationship %s: %w", key, err)
	}
}
