// Package storage defines the conditioned single-document update contract
// the engine persists through.
//
// The contract is deliberately small: atomic match-then-mutate on one
// document, with a matched/modified result the caller disambiguates. All
// cross-writer safety in the engine reduces to this primitive.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// M is a document or operator map.
type M = map[string]any

// Delta is a conditioned update: apply Update to the single document
// matching Match.
type Delta struct {
	Match  M
	Update M
}

// Result reports what a conditioned update did. Matched == 0 means the
// condition did not hold; the caller decides whether that is a sequencing
// conflict, a version conflict, or a missing document.
type Result struct {
	Matched  int64
	Modified int64
}

// ErrNoDocument is returned by FindOne when nothing matches.
var ErrNoDocument = errors.New("storage: no matching document")

// DuplicateKeyError is returned when a write violates a unique index.
// Message carries the backend's raw error text; the engine mines it for
// the offending index name.
type DuplicateKeyError struct {
	Message string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("storage: duplicate key: %s", e.Message)
}

// IsDuplicateKey reports whether err is a unique-index violation.
func IsDuplicateKey(err error) bool {
	var dup *DuplicateKeyError

	return errors.As(err, &dup)
}

// Collection is a named document collection supporting atomic conditioned
// updates. Implementations must apply each UpdateOne all-or-nothing.
type Collection interface {
	Name() string

	InsertOne(ctx context.Context, doc M) error
	UpdateOne(ctx context.Context, match, update M) (Result, error)
	UpdateMany(ctx context.Context, match, update M) (Result, error)
	DeleteMany(ctx context.Context, match M) (int64, error)

	// FindOne returns the first matching document, restricted to the
	// projected paths (plus _id) when project is non-empty.
	FindOne(ctx context.Context, match M, project []string) (M, error)
	Find(ctx context.Context, match M, project []string) ([]M, error)
}

// EstimateSize returns the serialized byte size of a document. Stamped
// into documents as meta.sz and fed to the stats sink.
func EstimateSize(doc M) int64 {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0
	}

	return int64(len(data))
}

// Clone deep-copies a document. Maps and slices are copied; scalar values
// are shared.
func Clone(doc M) M {
	if doc == nil {
		return nil
	}

	out := make(M, len(doc))
	for k, v := range doc {
		out[k] = CloneValue(v)
	}

	return out
}

// CloneValue deep-copies a single document value.
func CloneValue(v any) any {
	switch tv := v.(type) {
	case M:
		return Clone(tv)
	case []any:
		out := make([]any, len(tv))
		for n, item := range tv {
			out[n] = CloneValue(item)
		}

		return out
	default:
		return v
	}
}
