package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Backend. Documents are copied on the way in and out.
type Memory struct {
	mu    sync.RWMutex
	colls map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{colls: map[string]map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, collection, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.colls[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

func (m *Memory) Put(_ context.Context, collection, key string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(collection, key, doc)
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.colls[collection], key)
	return nil
}

func (m *Memory) Find(_ context.Context, collection, field, value string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out [][]byte
	for _, key := range m.keys(collection) {
		doc := m.colls[collection][key]
		if MatchField(doc, field, value) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (m *Memory) All(_ context.Context, collection string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out [][]byte
	for _, key := range m.keys(collection) {
		out = append(out, clone(m.colls[collection][key]))
	}
	return out, nil
}

func (m *Memory) Apply(_ context.Context, fn func(Batch) error) error {
	b := &OpBatch{}
	if err := fn(b); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range b.Ops {
		if op.Doc == nil {
			delete(m.colls[op.Collection], op.Key)
			continue
		}
		m.put(op.Collection, op.Key, op.Doc)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) put(collection, key string, doc []byte) {
	c, ok := m.colls[collection]
	if !ok {
		c = map[string][]byte{}
		m.colls[collection] = c
	}
	c[key] = clone(doc)
}

func (m *Memory) keys(collection string) []string {
	keys := make([]string, 0, len(m.colls[collection]))
	for k := range m.colls[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
