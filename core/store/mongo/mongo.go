// Package mongo implements store.Backend on MongoDB. Each collection maps to
// a Mongo collection and the store key is the document _id.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mudler/LocalCircle/core/store"
	"github.com/mudler/xlog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// indexes lists the secondary fields each collection is queried by.
var indexes = map[string][]string{
	store.Agents:        {"group_id"},
	store.Events:        {"group_id", "timestamp"},
	store.Relationships: {"a", "b"},
	store.Memories:      {"agent_id"},
	store.Posts:         {"author_id"},
	store.Summaries:     {"timestamp"},
}

type Backend struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, verifies the connection and ensures secondary indexes.
func Connect(ctx context.Context, uri, database string) (*Backend, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	b := &Backend{client: client, db: client.Database(database)}
	if err := b.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	xlog.Info("Connected to MongoDB", "database", database)
	return b, nil
}

func (b *Backend) ensureIndexes(ctx context.Context) error {
	for coll, fields := range indexes {
		models := make([]mongo.IndexModel, 0, len(fields))
		for _, f := range fields {
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: f, Value: 1}}})
		}
		if _, err := b.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// toBSON converts a JSON document into a BSON map carrying key as _id.
func toBSON(key string, doc []byte) (bson.M, error) {
	var m bson.M
	if err := bson.UnmarshalExtJSON(doc, false, &m); err != nil {
		return nil, fmt.Errorf("converting document %s: %w", key, err)
	}
	m["_id"] = key
	return m, nil
}

func toJSON(m bson.M) ([]byte, error) {
	delete(m, "_id")
	return bson.MarshalExtJSON(m, false, false)
}

func (b *Backend) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var m bson.M
	err := b.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toJSON(m)
}

func (b *Backend) Put(ctx context.Context, collection, key string, doc []byte) error {
	return b.put(ctx, collection, key, doc)
}

func (b *Backend) put(ctx context.Context, collection, key string, doc []byte) error {
	m, err := toBSON(key, doc)
	if err != nil {
		return err
	}
	_, err = b.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": key}, m, options.Replace().SetUpsert(true))
	return err
}

func (b *Backend) Delete(ctx context.Context, collection, key string) error {
	_, err := b.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (b *Backend) Find(ctx context.Context, collection, field, value string) ([][]byte, error) {
	return b.query(ctx, collection, bson.M{field: value})
}

func (b *Backend) All(ctx context.Context, collection string) ([][]byte, error) {
	return b.query(ctx, collection, bson.M{})
}

func (b *Backend) query(ctx context.Context, collection string, filter bson.M) ([][]byte, error) {
	cur, err := b.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out [][]byte
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		doc, err := toJSON(m)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, cur.Err()
}

// Apply runs the queued operations inside a multi-document transaction.
// This requires a replica set or sharded deployment.
func (b *Backend) Apply(ctx context.Context, fn func(store.Batch) error) error {
	ops := &store.OpBatch{}
	if err := fn(ops); err != nil {
		return err
	}

	sess, err := b.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for _, op := range ops.Ops {
			if op.Doc == nil {
				if err := b.Delete(sc, op.Collection, op.Key); err != nil {
					return nil, err
				}
				continue
			}
			if err := b.put(sc, op.Collection, op.Key, op.Doc); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (b *Backend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}
