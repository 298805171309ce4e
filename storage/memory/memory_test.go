package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vigilhq/vigil/storage"
	"github.com/vigilhq/vigil/storage/memory"
)

func newCol(t *testing.T, docs ...storage.M) *memory.Collection {
	t.Helper()

	col := memory.NewCollection("things")
	for _, doc := range docs {
		if err := col.InsertOne(context.Background(), doc); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}

	return col
}

func TestInsertAndFindOne(t *testing.T) {
	col := newCol(t, storage.M{"_id": "a", "name": "first"})

	doc, err := col.FindOne(context.Background(), storage.M{"_id": "a"}, nil)
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc["name"] != "first" {
		t.Errorf("unexpected doc: %v", doc)
	}

	_, err = col.FindOne(context.Background(), storage.M{"_id": "b"}, nil)
	if !errors.Is(err, storage.ErrNoDocument) {
		t.Errorf("expected ErrNoDocument, got %v", err)
	}
}

func TestConditionedUpdate(t *testing.T) {
	col := newCol(t, storage.M{"_id": "a", "sequence": int64(3), "name": "first"})

	res, err := col.UpdateOne(context.Background(),
		storage.M{"_id": "a", "sequence": int64(3)},
		storage.M{"$set": storage.M{"name": "second"}, "$inc": storage.M{"sequence": int64(1)}})
	if err != nil {
		t.Fatalf("UpdateOne failed: %v", err)
	}
	if res.Matched != 1 {
		t.Fatalf("expected match, got %+v", res)
	}

	// Stale sequence must not match.
	res, err = col.UpdateOne(context.Background(),
		storage.M{"_id": "a", "sequence": int64(3)},
		storage.M{"$set": storage.M{"name": "third"}})
	if err != nil {
		t.Fatalf("UpdateOne failed: %v", err)
	}
	if res.Matched != 0 {
		t.Errorf("stale condition should not match, got %+v", res)
	}

	doc, err := col.FindOne(context.Background(), storage.M{"_id": "a"}, nil)
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc["name"] != "second" || doc["sequence"] != int64(4) {
		t.Errorf("unexpected doc after updates: %v", doc)
	}
}

func TestOperatorMatching(t *testing.T) {
	col := newCol(t,
		storage.M{"_id": "a", "n": int64(1)},
		storage.M{"_id": "b", "n": int64(5), "version": int64(2)},
	)

	tests := []struct {
		name  string
		match storage.M
		want  string
	}{
		{"exists false", storage.M{"version": storage.M{"$exists": false}}, "a"},
		{"exists true", storage.M{"version": storage.M{"$exists": true}}, "b"},
		{"lt", storage.M{"n": storage.M{"$lt": int64(3)}}, "a"},
		{"gte", storage.M{"n": storage.M{"$gte": int64(5)}}, "b"},
		{"in", storage.M{"_id": storage.M{"$in": []any{"b", "z"}}}, "b"},
		{"ne", storage.M{"_id": storage.M{"$ne": "a"}}, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := col.FindOne(context.Background(), tt.match, nil)
			if err != nil {
				t.Fatalf("FindOne failed: %v", err)
			}
			if doc["_id"] != tt.want {
				t.Errorf("expected %q, got %v", tt.want, doc["_id"])
			}
		})
	}
}

func TestDottedAndArrayPaths(t *testing.T) {
	col := newCol(t, storage.M{
		"_id": "a",
		"idx": storage.M{"v": int64(2)},
		"acl": []any{
			storage.M{"type": int64(1), "target": "acct_x"},
			storage.M{"type": int64(3), "target": "role_y"},
		},
	})

	if _, err := col.FindOne(context.Background(), storage.M{"idx.v": int64(2)}, nil); err != nil {
		t.Errorf("dotted path match failed: %v", err)
	}
	if _, err := col.FindOne(context.Background(), storage.M{"acl.target": "role_y"}, nil); err != nil {
		t.Errorf("array element match failed: %v", err)
	}
	if _, err := col.FindOne(context.Background(), storage.M{"acl.target": "missing"}, nil); !errors.Is(err, storage.ErrNoDocument) {
		t.Errorf("expected no match, got %v", err)
	}
}

func TestArrayOperators(t *testing.T) {
	col := newCol(t, storage.M{"_id": "a", "views": []any{"x"}})

	_, err := col.UpdateOne(context.Background(), storage.M{"_id": "a"}, storage.M{
		"$addToSet": storage.M{"views": storage.M{"$each": []any{"x", "y"}}},
		"$push":     storage.M{"log": "e1"},
	})
	if err != nil {
		t.Fatalf("UpdateOne failed: %v", err)
	}

	doc, err := col.FindOne(context.Background(), storage.M{"_id": "a"}, nil)
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	views := doc["views"].([]any)
	if len(views) != 2 {
		t.Errorf("expected deduplicated views [x y], got %v", views)
	}

	_, err = col.UpdateOne(context.Background(), storage.M{"_id": "a"},
		storage.M{"$pull": storage.M{"views": "x"}})
	if err != nil {
		t.Fatalf("UpdateOne failed: %v", err)
	}
	doc, _ = col.FindOne(context.Background(), storage.M{"_id": "a"}, nil)
	views = doc["views"].([]any)
	if len(views) != 1 || views[0] != "y" {
		t.Errorf("expected [y] after pull, got %v", views)
	}
}

func TestPullByCondition(t *testing.T) {
	col := newCol(t, storage.M{"_id": "a", "acl": []any{
		storage.M{"target": "acct_x", "allow": int64(4)},
		storage.M{"target": "acct_y", "allow": int64(6)},
	}})

	_, err := col.UpdateOne(context.Background(), storage.M{"_id": "a"},
		storage.M{"$pull": storage.M{"acl": storage.M{"target": "acct_x"}}})
	if err != nil {
		t.Fatalf("UpdateOne failed: %v", err)
	}

	doc, _ := col.FindOne(context.Background(), storage.M{"_id": "a"}, nil)
	acl := doc["acl"].([]any)
	if len(acl) != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", len(acl))
	}
	if acl[0].(storage.M)["target"] != "acct_y" {
		t.Errorf("wrong entry pulled: %v", acl)
	}
}

func TestUniqueIndex(t *testing.T) {
	col := memory.NewCollection("things")
	col.EnsureUniqueIndex("uniq_code_prop_01h2xcejqtf2nbrexx3vqjhp41", "code")

	if err := col.InsertOne(context.Background(), storage.M{"_id": "a", "code": "x"}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := col.InsertOne(context.Background(), storage.M{"_id": "b", "code": "x"})
	if !storage.IsDuplicateKey(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}

	var dup *storage.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatal("expected DuplicateKeyError")
	}
	if want := "prop_01h2xcejqtf2nbrexx3vqjhp41"; !strings.Contains(dup.Message, want) {
		t.Errorf("message should carry the index name, got %q", dup.Message)
	}

	// Updating into a collision fails the same way.
	if err := col.InsertOne(context.Background(), storage.M{"_id": "c", "code": "y"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	_, err = col.UpdateOne(context.Background(), storage.M{"_id": "c"},
		storage.M{"$set": storage.M{"code": "x"}})
	if !storage.IsDuplicateKey(err) {
		t.Errorf("expected duplicate key on update, got %v", err)
	}
}

func TestProjection(t *testing.T) {
	col := newCol(t, storage.M{
		"_id":  "a",
		"name": "first",
		"idx":  storage.M{"v": int64(1), "q": "hidden"},
		"big":  "payload",
	})

	doc, err := col.FindOne(context.Background(), storage.M{"_id": "a"}, []string{"name", "idx.v"})
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc["name"] != "first" || doc["_id"] != "a" {
		t.Errorf("projected fields missing: %v", doc)
	}
	if _, ok := doc["big"]; ok {
		t.Error("unprojected field leaked")
	}
	idx, ok := doc["idx"].(storage.M)
	if !ok || idx["v"] != int64(1) {
		t.Errorf("dotted projection failed: %v", doc)
	}
	if _, ok := idx["q"]; ok {
		t.Error("sibling of projected dotted path leaked")
	}
}

func TestDeleteMany(t *testing.T) {
	col := newCol(t,
		storage.M{"_id": "a", "reap": true},
		storage.M{"_id": "b", "reap": false},
		storage.M{"_id": "c", "reap": true},
	)

	n, err := col.DeleteMany(context.Background(), storage.M{"reap": true})
	if err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if n != 2 || col.Len() != 1 {
		t.Errorf("expected 2 removed and 1 left, got %d removed, %d left", n, col.Len())
	}
}

func TestDocumentsAreIsolated(t *testing.T) {
	seed := storage.M{"_id": "a", "tags": []any{"x"}}
	col := newCol(t, seed)

	// Mutating the seed after insert must not affect the stored copy.
	seed["tags"].([]any)[0] = "mutated"

	doc, err := col.FindOne(context.Background(), storage.M{"_id": "a"}, nil)
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if doc["tags"].([]any)[0] != "x" {
		t.Error("stored document aliased caller memory")
	}

	// Mutating a read result must not affect the store either.
	doc["tags"].([]any)[0] = "mutated"
	again, _ := col.FindOne(context.Background(), storage.M{"_id": "a"}, nil)
	if again["tags"].([]any)[0] != "x" {
		t.Error("read result aliased stored document")
	}
}
