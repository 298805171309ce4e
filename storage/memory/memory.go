// Package memory provides an in-memory storage backend for tests and
// embedded use. It implements the conditioned-update contract including
// operator matching, dotted paths, array-element matching, and emulated
// unique indexes that fail with backend-style duplicate-key messages.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vigilhq/vigil/storage"
)

// Store holds named collections, created lazily.
type Store struct {
	mu   sync.Mutex
	cols map[string]*Collection
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{cols: make(map[string]*Collection)}
}

// Collection returns the named collection, creating it if needed.
func (s *Store) Collection(name string) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.cols[name]
	if !ok {
		col = NewCollection(name)
		s.cols[name] = col
	}

	return col
}

type uniqueIndex struct {
	name  string
	field string
}

// Collection is one in-memory document collection. Documents keep
// insertion order.
type Collection struct {
	mu      sync.RWMutex
	name    string
	docs    []storage.M
	uniques []uniqueIndex
}

var _ storage.Collection = (*Collection)(nil)

// NewCollection returns an empty collection.
func NewCollection(name string) *Collection {
	return &Collection{name: name}
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// EnsureUniqueIndex registers an emulated unique index on a dotted field
// path. The index name appears in duplicate-key error messages, matching
// backend behavior.
func (c *Collection) EnsureUniqueIndex(name, field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uniques = append(c.uniques, uniqueIndex{name: name, field: field})
}

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.docs)
}

func (c *Collection) InsertOne(ctx context.Context, doc storage.M) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkUniques(doc, -1); err != nil {
		return err
	}
	c.docs = append(c.docs, storage.Clone(doc))

	return nil
}

func (c *Collection) UpdateOne(ctx context.Context, match, update storage.M) (storage.Result, error) {
	if err := ctx.Err(); err != nil {
		return storage.Result{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for n, doc := range c.docs {
		if !storage.Matches(doc, match) {
			continue
		}

		next := storage.Clone(doc)
		if err := storage.ApplyUpdate(next, update); err != nil {
			return storage.Result{}, err
		}
		if err := c.checkUniques(next, n); err != nil {
			return storage.Result{}, err
		}
		c.docs[n] = next

		return storage.Result{Matched: 1, Modified: 1}, nil
	}

	return storage.Result{}, nil
}

func (c *Collection) UpdateMany(ctx context.Context, match, update storage.M) (storage.Result, error) {
	if err := ctx.Err(); err != nil {
		return storage.Result{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var res storage.Result
	for n, doc := range c.docs {
		if !storage.Matches(doc, match) {
			continue
		}

		next := storage.Clone(doc)
		if err := storage.ApplyUpdate(next, update); err != nil {
			return res, err
		}
		if err := c.checkUniques(next, n); err != nil {
			return res, err
		}
		c.docs[n] = next
		res.Matched++
		res.Modified++
	}

	return res, nil
}

func (c *Collection) DeleteMany(ctx context.Context, match storage.M) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		kept    []storage.M
		removed int64
	)
	for _, doc := range c.docs {
		if storage.Matches(doc, match) {
			removed++

			continue
		}
		kept = append(kept, doc)
	}
	c.docs = kept

	return removed, nil
}

func (c *Collection) FindOne(ctx context.Context, match storage.M, project []string) (storage.M, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, doc := range c.docs {
		if storage.Matches(doc, match) {
			return projectDoc(doc, project), nil
		}
	}

	return nil, storage.ErrNoDocument
}

func (c *Collection) Find(ctx context.Context, match storage.M, project []string) ([]storage.M, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []storage.M
	for _, doc := range c.docs {
		if storage.Matches(doc, match) {
			out = append(out, projectDoc(doc, project))
		}
	}

	return out, nil
}

func (c *Collection) checkUniques(doc storage.M, skip int) error {
	for _, idx := range c.uniques {
		vals := storage.ResolvePath(doc, idx.field)
		if len(vals) == 0 {
			continue
		}
		for n, other := range c.docs {
			if n == skip {
				continue
			}
			for _, v := range vals {
				for _, ov := range storage.ResolvePath(other, idx.field) {
					if storage.ValueEquals(ov, v) {
						return &storage.DuplicateKeyError{
							Message: fmt.Sprintf(
								"E11000 duplicate key error collection: %s index: %s dup key: { : %v }",
								c.name, idx.name, v),
						}
					}
				}
			}
		}
	}

	return nil
}

func projectDoc(doc storage.M, project []string) storage.M {
	if len(project) == 0 {
		return storage.Clone(doc)
	}

	out := storage.M{}
	if idv, ok := doc["_id"]; ok {
		out["_id"] = idv
	}
	for _, path := range project {
		copyPath(doc, out, path)
	}

	return out
}

func copyPath(src, dst storage.M, path string) {
	parts := strings.Split(path, ".")
	cur := src
	for n, part := range parts {
		v, ok := cur[part]
		if !ok {
			return
		}
		if n == len(parts)-1 {
			storage.SetPath(dst, strings.Join(parts[:n+1], "."), storage.CloneValue(v))

			return
		}
		child, ok := v.(storage.M)
		if !ok {
			// Arrays and scalars mid-path are copied whole.
			storage.SetPath(dst, strings.Join(parts[:n+1], "."), storage.CloneValue(v))

			return
		}
		cur = child
	}
}
