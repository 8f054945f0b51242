// Package store defines the storage boundary: a document backend keyed by
// collection and key, and a typed repository on top of it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("store: not found")

const (
	Agents        = "agents"
	Relationships = "relationships"
	Groups        = "groups"
	Events        = "events"
	Posts         = "posts"
	Memories      = "memories"
	Summaries     = "summaries"
	Lore          = "lore"
	Stickers      = "stickers"
	SettingsColl  = "settings"
)

// Backend stores JSON documents. Get returns ErrNotFound for missing keys.
// Find matches documents whose top-level field equals value.
type Backend interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, doc []byte) error
	Delete(ctx context.Context, collection, key string) error
	Find(ctx context.Context, collection, field, value string) ([][]byte, error)
	All(ctx context.Context, collection string) ([][]byte, error)
	// Apply commits every operation queued by fn atomically, or none of them.
	Apply(ctx context.Context, fn func(Batch) error) error
	Close() error
}

type Batch interface {
	Put(collection, key string, doc []byte)
	Delete(collection, key string)
}

// MatchField reports whether the JSON document has a top-level field
// equal to value. Non-string fields are compared by their JSON rendering.
func MatchField(doc []byte, field, value string) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(doc, &m); err != nil {
		return false
	}
	raw, ok := m[field]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == value
	}
	return string(raw) == value
}

// Op is a queued batch operation. A nil Doc means delete.
type Op struct {
	Collection string
	Key        string
	Doc        []byte
}

// OpBatch collects operations for backends that apply them in one step.
type OpBatch struct {
	Ops []Op
}

func (b *OpBatch) Put(collection, key string, doc []byte) {
	b.Ops = append(b.Ops, Op{Collection: collection, Key: key, Doc: doc})
}

func (b *OpBatch) Delete(collection, key string) {
	b.Ops = append(b.Ops, Op{Collection: collection, Key: key})
}

func encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return b, nil
}
