package vigil

import (
	"errors"
	"regexp"
	"strings"

	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/storage"
)

// Paths the pipeline writes itself; these never resolve to schema nodes.
var systemPathRoots = map[string]bool{
	"_id":      true,
	"acl":      true,
	"aclv":     true,
	"sequence": true,
	"version":  true,
	"idx":      true,
	"meta":     true,
	"created":  true,
	"creator":  true,
	"owner":    true,
	"updated":  true,
	"updater":  true,
	"reap":     true,
}

func isSystemPath(path string) bool {
	root := path
	if i := strings.IndexByte(path, '.'); i > 0 {
		root = path[:i]
	}

	return systemPathRoots[root]
}

// guardArrays rejects whole-array replaces on array-typed schema nodes
// unless the caller marked the path safe or the subject was read with the
// path selected. A blind overwrite of a partially loaded array silently
// drops the unloaded elements.
func (ac *AccessContext) guardArrays(delta *storage.Delta) error {
	set, ok := delta.Update["$set"].(storage.M)
	if !ok {
		return nil
	}

	for path := range set {
		if isSystemPath(path) {
			continue
		}
		node, found := ac.object.Node(path)
		if !found {
			if i := strings.IndexByte(path, '.'); i > 0 {
				if _, found = ac.object.Node(path[:i]); found {
					// Nested write into a known property, not a
					// whole-array replace.
					continue
				}
			}
			if ac.object.StrictPaths() {
				return ac.faultAt(ErrNotFound, path, "unknown property")
			}
			continue
		}
		if !node.IsArray() {
			continue
		}
		if ac.IsSafeToUpdate(path) || ac.subject.IsSelected(path) {
			continue
		}

		return ac.faultAt(ErrUnsupportedOperation, path, "array overwrite without full selection")
	}

	return nil
}

func (ac *AccessContext) faultAt(err error, path, reason string) *Fault {
	return NewFault(err, ac.Resource(), path, reason)
}

var propIDPattern = regexp.MustCompile(`prop_[0-9a-z]{26}`)

// duplicateKeyFault attributes a unique-index violation to the schema
// property whose id is embedded in the index name.
func (ac *AccessContext) duplicateKeyFault(err error) error {
	path := ""
	var dup *storage.DuplicateKeyError
	msg := err.Error()
	if errors.As(err, &dup) {
		msg = dup.Message
	}
	if m := propIDPattern.FindString(msg); m != "" {
		if pid, perr := id.Parse(m); perr == nil {
			if node, ok := ac.object.NodeByID(pid); ok {
				path = node.Path()
			}
		}
	}

	return NewFault(ErrDuplicateKey, ac.Resource(), path, "duplicate value")
}
