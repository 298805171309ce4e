// Package mongo backs the storage contract with MongoDB through the
// Grove ORM handle. Every engine write maps to a single conditioned
// UpdateOne with majority write concern, so the optimistic-concurrency
// semantics hold across replica-set failover.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/vigilhq/vigil"
	"github.com/vigilhq/vigil/storage"
)

// Compile-time interface check.
var _ storage.Collection = (*Collection)(nil)

// Store hands out storage collections backed by one MongoDB database.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a MongoDB store backed by Grove.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Collection returns the named collection with majority write concern.
func (s *Store) Collection(name string) *Collection {
	col := s.mdb.Database().Collection(name, options.Collection().
		SetWriteConcern(writeconcern.Majority()))

	return &Collection{name: name, col: col}
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the indexes every object collection needs: the reap
// scan, the org scan, the ACL target sweep, and one unique index per
// unique schema node. Unique indexes are named after the node's property
// id so a duplicate-key error can be attributed to the property.
func (s *Store) Migrate(ctx context.Context, objects ...vigil.Object) error {
	for _, obj := range objects {
		col := obj.Collection()
		if col == nil {
			continue
		}

		models := []mongod.IndexModel{
			{Keys: bson.D{{Key: "reap", Value: 1}}},
			{Keys: bson.D{{Key: "org", Value: 1}, {Key: "reap", Value: 1}}},
			{Keys: bson.D{{Key: "acl.target", Value: 1}}},
		}
		for _, node := range obj.Nodes() {
			if node.IsUnique() {
				models = append(models, mongod.IndexModel{
					Keys: bson.D{{Key: "org", Value: 1}, {Key: node.Path(), Value: 1}},
					Options: options.Index().
						SetUnique(true).
						SetName(node.NodeID().String()),
				})
			} else if node.IsIndexed() {
				models = append(models, mongod.IndexModel{
					Keys: bson.D{{Key: "org", Value: 1}, {Key: node.Path(), Value: 1}},
				})
			}
		}

		_, err := s.mdb.Collection(col.Name()).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("vigil/mongo: migrate %s indexes: %w", col.Name(), err)
		}
	}

	return nil
}

// Collection adapts one MongoDB collection to the storage contract.
type Collection struct {
	name string
	col  *mongod.Collection
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) InsertOne(ctx context.Context, doc storage.M) error {
	_, err := c.col.InsertOne(ctx, bson.M(doc))

	return mapWriteError(err)
}

func (c *Collection) UpdateOne(ctx context.Context, match, update storage.M) (storage.Result, error) {
	res, err := c.col.UpdateOne(ctx, bson.M(match), bson.M(update))
	if err != nil {
		return storage.Result{}, mapWriteError(err)
	}

	return storage.Result{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (c *Collection) UpdateMany(ctx context.Context, match, update storage.M) (storage.Result, error) {
	res, err := c.col.UpdateMany(ctx, bson.M(match), bson.M(update))
	if err != nil {
		return storage.Result{}, mapWriteError(err)
	}

	return storage.Result{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (c *Collection) DeleteMany(ctx context.Context, match storage.M) (int64, error) {
	res, err := c.col.DeleteMany(ctx, bson.M(match))
	if err != nil {
		return 0, err
	}

	return res.DeletedCount, nil
}

func (c *Collection) FindOne(ctx context.Context, match storage.M, project []string) (storage.M, error) {
	opts := options.FindOne()
	if len(project) > 0 {
		opts = opts.SetProjection(projection(project))
	}

	var raw bson.M
	err := c.col.FindOne(ctx, bson.M(match), opts).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongod.ErrNoDocuments) {
			return nil, storage.ErrNoDocument
		}

		return nil, err
	}

	return normalizeDoc(raw), nil
}

func (c *Collection) Find(ctx context.Context, match storage.M, project []string) ([]storage.M, error) {
	opts := options.Find()
	if len(project) > 0 {
		opts = opts.SetProjection(projection(project))
	}

	cur, err := c.col.Find(ctx, bson.M(match), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []storage.M
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, normalizeDoc(raw))
	}

	return out, cur.Err()
}

func projection(paths []string) bson.D {
	proj := bson.D{{Key: "_id", Value: 1}}
	for _, p := range paths {
		if p == "_id" {
			continue
		}
		proj = append(proj, bson.E{Key: p, Value: 1})
	}

	return proj
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if mongod.IsDuplicateKeyError(err) {
		return &storage.DuplicateKeyError{Message: err.Error()}
	}

	return err
}

// normalizeDoc flattens driver decode types (bson.D, bson.A, DateTime)
// into the plain map shape the engine operates on.
func normalizeDoc(raw bson.M) storage.M {
	out := make(storage.M, len(raw))
	for k, v := range raw {
		out[k] = normalizeValue(v)
	}

	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return normalizeDoc(t)
	case bson.D:
		m := make(storage.M, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}

		return m
	case bson.A:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = normalizeValue(item)
		}

		return items
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = normalizeValue(item)
		}

		return items
	case bson.DateTime:
		return t.Time().UTC()
	case int32:
		return int64(t)
	default:
		return v
	}
}
