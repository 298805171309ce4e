package vigil

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilhq/vigil/hook"
	"github.com/vigilhq/vigil/storage"
)

// deltaPlan is a fully conditioned update ready to hand to storage.
type deltaPlan struct {
	delta *storage.Delta

	// versionConditioned is set when the match carries a version clause,
	// which changes how a zero-match result is classified.
	versionConditioned bool
}

func (ac *AccessContext) saveUpdate(ctx context.Context, opts SaveOptions) (*SaveResult, error) {
	obj, subject := ac.object, ac.subject

	ac.PushResource(obj.Name())
	defer ac.PopResource()

	modified := subject.ModifiedPaths()
	if len(modified) == 0 {
		readable := mergePaths(subject.ReadableModifiedPaths(), opts.ReadableModified)
		if len(readable) == 0 {
			return &SaveResult{}, nil
		}

		// Nothing to persist, but listeners still learn of the
		// indirectly changed readable paths.
		if err := ac.fireTrigger(ctx, opts, hook.After(ac.action("update")), readable); err != nil {
			ac.eng.logger.Warn("after trigger failed", "object", obj.Name(), "error", err)
		}

		return &SaveResult{Modified: readable}, nil
	}

	if obj.IsVersioned() {
		if opts.ExpectedVersion == nil {
			return nil, ac.fault(ErrInvalidArgument, "expected version required")
		}
		if cur, ok := subject.RawVersion(); ok && *opts.ExpectedVersion != cur {
			return nil, ac.fault(ErrVersionOutOfDate, fmt.Sprintf("expected version %d, have %d", *opts.ExpectedVersion, cur))
		}
	}

	if err := ac.preAction(ctx, ac.action("update"), opts, modified); err != nil {
		return nil, err
	}

	if err := subject.SetValue("updated", time.Now().UTC()); err != nil {
		return nil, wrap("update", err)
	}
	if err := subject.SetValue("updater", ac.principal.ID.String()); err != nil {
		return nil, wrap("update", err)
	}
	modified = subject.ModifiedPaths()
	readable := mergePaths(modified, subject.ReadableModifiedPaths(), opts.ReadableModified)

	plan, err := ac.planUpdate(opts)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return &SaveResult{Modified: readable}, nil
	}

	if ac.dryRun {
		return &SaveResult{Modified: readable}, nil
	}

	res, err := obj.Collection().UpdateOne(ctx, plan.delta.Match, plan.delta.Update)
	if err != nil {
		if storage.IsDuplicateKey(err) {
			return nil, ac.duplicateKeyFault(err)
		}

		return nil, wrap("update", err)
	}
	if res.Matched == 0 {
		return nil, ac.classifyWriteConflict(ctx, opts, plan)
	}

	if err := subject.ApplyWrite(plan.delta.Update); err != nil {
		return nil, wrap("update", err)
	}
	ac.clearSafeToUpdate()

	ac.recordAudit(ctx, "update", map[string]any{"modified": modified})

	if err := ac.postAction(ctx, ac.action("update"), opts, readable); err != nil {
		return nil, err
	}

	return &SaveResult{Modified: readable}, nil
}

// planUpdate turns the subject's pending delta into a conditioned storage
// write: sequence increment, version clause, index-version bump for
// indexed array changes, maintenance bits, and the array-overwrite guard.
// Returns nil when the subject has nothing to write.
func (ac *AccessContext) planUpdate(opts SaveOptions) (*deltaPlan, error) {
	obj, subject := ac.object, ac.subject

	subject.Increment()
	delta, err := subject.Delta()
	if err != nil {
		return nil, wrap("update", err)
	}
	if delta == nil {
		return nil, nil
	}
	if delta.Match == nil {
		delta.Match = storage.M{}
	}
	if delta.Update == nil {
		delta.Update = storage.M{}
	}

	plan := &deltaPlan{delta: delta}
	set := updateSection(delta.Update, "$set")
	inc := updateSection(delta.Update, "$inc")

	if _, ok := delta.Match["sequence"]; ok {
		inc["sequence"] = int64(1)
	}

	if obj.IsVersioned() && opts.ExpectedVersion != nil {
		plan.versionConditioned = true
		if cur, ok := subject.RawVersion(); ok {
			delta.Match["version"] = cur
			inc["version"] = int64(1)
		} else {
			delta.Match["version"] = storage.M{"$exists": false}
			set["version"] = int64(1)
		}
	}

	for _, node := range obj.Nodes() {
		if !node.IsIndexed() || !subject.IsModified(node.Path()) {
			continue
		}
		ac.AddReindex(node.Path())
		if node.IsArray() {
			if _, ok := delta.Match["idx.v"]; !ok {
				delta.Match["idx.v"] = subject.IndexVersion()
				inc["idx.v"] = int64(1)
			}
		}
	}

	if ac.eng.config.stampDocumentSize() {
		if doc, derr := subject.ToInsert(); derr == nil {
			set["meta.sz"] = storage.EstimateSize(doc)
		}
	} else {
		set["meta.up"] = metaBitSize
	}
	if obj.Migrating() {
		bits := metaBitMigrate
		if prev, ok := set["meta.up"].(int64); ok {
			bits |= prev
		}
		set["meta.up"] = bits
	}

	if len(inc) == 0 {
		delete(delta.Update, "$inc")
	}

	if err := ac.guardArrays(delta); err != nil {
		return nil, err
	}

	return plan, nil
}

// classifyWriteConflict disambiguates a zero-match conditioned write. A
// version-conditioned write re-reads the stored version to distinguish a
// stale caller from a transient sequence race.
func (ac *AccessContext) classifyWriteConflict(ctx context.Context, opts SaveOptions, plan *deltaPlan) error {
	if plan.versionConditioned && opts.ExpectedVersion != nil {
		raw, err := ac.object.Collection().FindOne(ctx,
			storage.M{"_id": ac.subject.SubjectID().String()}, []string{"version"})
		if err == nil {
			cur, ok := storage.AsFloat(raw["version"])
			if _, hasClause := plan.delta.Match["version"].(storage.M); hasClause {
				// Clause was $exists:false; any stored version is stale.
				if ok {
					return ac.fault(ErrVersionOutOfDate, "document gained a version")
				}
			} else if ok && cur != float64(*opts.ExpectedVersion) {
				return ac.fault(ErrVersionOutOfDate, fmt.Sprintf("stored version %v", raw["version"]))
			}
		}
	}

	return ac.fault(ErrSequencing, "concurrent write")
}

func updateSection(update storage.M, op string) storage.M {
	if m, ok := update[op].(storage.M); ok {
		return m
	}
	m := storage.M{}
	update[op] = m

	return m
}

func mergePaths(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, p := range list {
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}

	return out
}
