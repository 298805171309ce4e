package document

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/vigilhq/vigil"
	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/storage"
)

// Document is the in-memory working copy of one stored document. It
// tracks modifications at path granularity so persistence writes an
// operator delta rather than the whole document, and remembers which
// fields the originating read selected so partially loaded state is
// never blindly written back.
//
// A document belongs to one operation at a time and is not safe for
// concurrent use.
type Document struct {
	obj *Object

	subjectID id.ID
	orgID     id.ID

	data  storage.M
	isNew bool

	// nil means fully selected.
	selected map[string]bool

	modified   []string
	modSet     map[string]bool
	readable   []string
	readSet    map[string]bool
	pendingSeq bool
}

func newDocument(o *Object, orgID id.ID) *Document {
	did := id.NewDocumentID()

	return &Document{
		obj:       o,
		subjectID: did,
		orgID:     orgID,
		isNew:     true,
		data: storage.M{
			"_id":      did.String(),
			"org":      orgID.String(),
			"acl":      []any{},
			"aclv":     int64(0),
			"sequence": int64(0),
			"idx":      storage.M{"v": int64(0)},
			"reap":     false,
			"created":  time.Now().UTC(),
		},
		modSet:  make(map[string]bool),
		readSet: make(map[string]bool),
	}
}

func fromRaw(o *Object, raw storage.M) (*Document, error) {
	sid, _ := raw["_id"].(string)
	parsed, err := id.ParseAny(sid)
	if err != nil {
		return nil, fmt.Errorf("document: %s: bad _id %q: %w", o.Name(), sid, err)
	}
	var orgID id.ID
	if s, ok := raw["org"].(string); ok && s != "" {
		if orgID, err = id.ParseWithPrefix(s, id.PrefixOrg); err != nil {
			return nil, fmt.Errorf("document: %s: bad org %q: %w", o.Name(), s, err)
		}
	}

	selected := make(map[string]bool, len(raw))
	for k := range raw {
		selected[k] = true
	}

	return &Document{
		obj:       o,
		subjectID: parsed,
		orgID:     orgID,
		data:      storage.Clone(raw),
		selected:  selected,
		modSet:    make(map[string]bool),
		readSet:   make(map[string]bool),
	}, nil
}

func (d *Document) SubjectID() id.ID { return d.subjectID }
func (d *Document) OrgID() id.ID     { return d.orgID }
func (d *Document) IsNew() bool      { return d.isNew }

func (d *Document) ACL() []access.Entry {
	return access.EntriesFromAny(d.data["acl"])
}

func (d *Document) OwnerID() id.ID   { return d.accountField("owner") }
func (d *Document) CreatorID() id.ID { return d.accountField("creator") }

func (d *Document) accountField(field string) id.ID {
	s, ok := d.data[field].(string)
	if !ok || s == "" {
		return id.Nil
	}
	parsed, err := id.ParseAny(s)
	if err != nil {
		return id.Nil
	}

	return parsed
}

func (d *Document) Sequence() int64   { return d.intField("sequence") }
func (d *Document) ACLVersion() int64 { return d.intField("aclv") }

func (d *Document) RawVersion() (int64, bool) {
	v, ok := d.data["version"]
	if !ok {
		return 0, false
	}
	f, ok := storage.AsFloat(v)
	if !ok {
		return 0, false
	}

	return int64(f), true
}

func (d *Document) IndexVersion() int64 {
	if vals := storage.ResolvePath(d.data, "idx.v"); len(vals) > 0 {
		if f, ok := storage.AsFloat(vals[0]); ok {
			return int64(f)
		}
	}

	return 0
}

func (d *Document) intField(field string) int64 {
	if f, ok := storage.AsFloat(d.data[field]); ok {
		return int64(f)
	}

	return 0
}

// Increment conditions the next delta on the current sequence.
func (d *Document) Increment() { d.pendingSeq = true }

func (d *Document) ModifiedPaths() []string {
	out := make([]string, len(d.modified))
	copy(out, d.modified)

	return out
}

func (d *Document) ReadableModifiedPaths() []string {
	out := make([]string, len(d.readable))
	copy(out, d.readable)

	return out
}

// AddReadableModified queues a path changed outside the delta, e.g. by a
// nested collection write, so listeners still learn of it.
func (d *Document) AddReadableModified(path string) {
	if path == "" || d.readSet[path] {
		return
	}
	d.readSet[path] = true
	d.readable = append(d.readable, path)
}

func (d *Document) IsModified(paths ...string) bool {
	for _, p := range paths {
		for _, m := range d.modified {
			if m == p || strings.HasPrefix(m, p+".") || strings.HasPrefix(p, m+".") {
				return true
			}
		}
	}

	return false
}

func (d *Document) IsSelected(path string) bool {
	if d.selected == nil {
		return true
	}

	return d.selected[rootOf(path)]
}

func (d *Document) GetValue(path string) (any, bool) {
	vals := storage.ResolvePath(d.data, path)
	if len(vals) == 0 {
		return nil, false
	}

	return vals[0], true
}

func (d *Document) SetValue(path string, v any) error {
	if path == "" {
		return fmt.Errorf("document: empty path")
	}
	if current, ok := d.GetValue(path); ok && reflect.DeepEqual(current, v) {
		return nil
	}

	storage.SetPath(d.data, path, storage.CloneValue(v))
	d.markModified(path)

	return nil
}

func (d *Document) SetPayload(payload storage.M) error {
	for path, v := range payload {
		if err := d.SetValue(path, v); err != nil {
			return err
		}
	}

	return nil
}

func (d *Document) markModified(path string) {
	if d.modSet[path] {
		return
	}
	d.modSet[path] = true
	d.modified = append(d.modified, path)
}

// Delta builds the conditioned operator update for the pending
// modifications. Nil means nothing to write.
func (d *Document) Delta() (*storage.Delta, error) {
	if len(d.modified) == 0 && !d.pendingSeq {
		return nil, nil
	}

	match := storage.M{"_id": d.subjectID.String()}
	if d.pendingSeq {
		match["sequence"] = d.Sequence()
	}

	set := storage.M{}
	unset := storage.M{}
	for _, path := range d.modified {
		if v, ok := d.GetValue(path); ok {
			set[path] = storage.CloneValue(v)
		} else {
			unset[path] = true
		}
	}

	update := storage.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	return &storage.Delta{Match: match, Update: update}, nil
}

func (d *Document) ToInsert() (storage.M, error) {
	return storage.Clone(d.data), nil
}

// ApplyWrite mirrors a committed update into the in-memory state and
// clears the modification marks for the paths it covered.
func (d *Document) ApplyWrite(update storage.M) error {
	if err := storage.ApplyUpdate(d.data, update); err != nil {
		return err
	}

	cleared := make(map[string]bool)
	for op, arg := range update {
		fields, ok := arg.(storage.M)
		if !ok {
			continue
		}
		for path := range fields {
			cleared[path] = true
			if op == "$inc" && path == "sequence" {
				d.pendingSeq = false
			}
			if op == "$set" && path == "sequence" {
				d.pendingSeq = false
			}
			if d.selected != nil {
				d.selected[rootOf(path)] = true
			}
		}
	}

	kept := d.modified[:0]
	for _, p := range d.modified {
		if cleared[p] {
			delete(d.modSet, p)
			continue
		}
		kept = append(kept, p)
	}
	d.modified = kept

	return nil
}

// Reset marks the document persisted and clears all pending state.
func (d *Document) Reset() {
	d.isNew = false
	d.pendingSeq = false
	d.modified = nil
	d.modSet = make(map[string]bool)
	d.readable = nil
	d.readSet = make(map[string]bool)
}

func (d *Document) Validate(ctx context.Context) error {
	if d.obj.cfg.Validate == nil {
		return nil
	}

	return d.obj.cfg.Validate(ctx, d)
}

func (d *Document) Object() vigil.Object { return d.obj }

var _ vigil.Subject = (*Document)(nil)
