// Package pebble implements store.Backend on an embedded pebble database.
// Keys are laid out as "<collection>/<key>".
package pebble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/mudler/LocalCircle/core/store"
)

type Backend struct {
	db *pebble.DB
}

type Option func(*pebble.Options)

// InMemory keeps the database in memory. Useful in tests.
func InMemory() Option {
	return func(o *pebble.Options) {
		o.FS = vfs.NewMem()
	}
}

func Open(path string, opts ...Option) (*Backend, error) {
	o := &pebble.Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.FS == nil {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}
	db, err := pebble.Open(path, o)
	if err != nil {
		return nil, fmt.Errorf("opening pebble at %s: %w", path, err)
	}
	return &Backend{db: db}, nil
}

func key(collection, k string) []byte {
	return []byte(collection + "/" + k)
}

func prefix(collection string) []byte {
	return []byte(collection + "/")
}

// upperBound returns the smallest key greater than every key with prefix p.
func upperBound(p []byte) []byte {
	end := bytes.Clone(p)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (b *Backend) Get(_ context.Context, collection, k string) ([]byte, error) {
	v, closer, err := b.db.Get(key(collection, k))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(v), nil
}

func (b *Backend) Put(_ context.Context, collection, k string, doc []byte) error {
	return b.db.Set(key(collection, k), doc, pebble.Sync)
}

func (b *Backend) Delete(_ context.Context, collection, k string) error {
	return b.db.Delete(key(collection, k), pebble.Sync)
}

func (b *Backend) Find(_ context.Context, collection, field, value string) ([][]byte, error) {
	return b.scan(collection, func(doc []byte) bool {
		return store.MatchField(doc, field, value)
	})
}

func (b *Backend) All(_ context.Context, collection string) ([][]byte, error) {
	return b.scan(collection, func([]byte) bool { return true })
}

func (b *Backend) scan(collection string, match func([]byte) bool) ([][]byte, error) {
	p := prefix(collection)
	it, err := b.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: upperBound(p)})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out [][]byte
	for ok := it.First(); ok; ok = it.Next() {
		v := it.Value()
		if match(v) {
			out = append(out, bytes.Clone(v))
		}
	}
	return out, it.Error()
}

// Apply writes the queued operations in a single pebble batch.
func (b *Backend) Apply(_ context.Context, fn func(store.Batch) error) error {
	ops := &store.OpBatch{}
	if err := fn(ops); err != nil {
		return err
	}
	batch := b.db.NewBatch()
	defer batch.Close()
	for _, op := range ops.Ops {
		var err error
		if op.Doc == nil {
			err = batch.Delete(key(op.Collection, op.Key), nil)
		} else {
			err = batch.Set(key(op.Collection, op.Key), op.Doc, nil)
		}
		if err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
