package vigil

import (
	"context"
	"fmt"

	"github.com/vigilhq/vigil/audit"
	"github.com/vigilhq/vigil/stats"
	"github.com/vigilhq/vigil/storage"
)

// Bits in meta.up marking deferred maintenance.
const (
	metaBitSize    = int64(1)
	metaBitMigrate = int64(2)
)

func (ac *AccessContext) saveCreate(ctx context.Context, opts SaveOptions) (*SaveResult, error) {
	obj, subject := ac.object, ac.subject

	ac.PushResource(obj.Name())
	defer ac.PopResource()

	if obj.HasCreator() {
		if v, ok := subject.GetValue("creator"); !ok || isEmptyValue(v) {
			if err := subject.SetValue("creator", ac.principal.ID.String()); err != nil {
				return nil, wrap("create", err)
			}
		}
	}
	if obj.HasOwner() {
		if v, ok := subject.GetValue("owner"); !ok || isEmptyValue(v) {
			if err := subject.SetValue("owner", ac.principal.ID.String()); err != nil {
				return nil, wrap("create", err)
			}
		}
	}
	modified := subject.ModifiedPaths()

	if err := ac.preAction(ctx, ac.action("create"), opts, modified); err != nil {
		return nil, err
	}

	for _, node := range obj.Nodes() {
		if node.IsIndexed() && subject.IsModified(node.Path()) {
			ac.AddReindex(node.Path())
		}
	}

	created, err := ac.autoCreate(ctx, opts)
	if err != nil {
		return nil, err
	}

	doc, err := subject.ToInsert()
	if err != nil {
		ac.rollbackAutoCreate(ctx, created)
		return nil, wrap("create", err)
	}

	size := storage.EstimateSize(doc)
	if ac.eng.config.stampDocumentSize() {
		storage.SetPath(doc, "meta.sz", size)
	}
	if obj.Migrating() {
		storage.SetPath(doc, "meta.up", metaBitMigrate)
	}

	if opts.Preview {
		return &SaveResult{Modified: modified, Insert: doc}, nil
	}
	if ac.dryRun {
		return &SaveResult{Modified: modified}, nil
	}

	if err := obj.Collection().InsertOne(ctx, doc); err != nil {
		ac.rollbackAutoCreate(ctx, created)
		if storage.IsDuplicateKey(err) {
			return nil, ac.duplicateKeyFault(err)
		}

		return nil, wrap("create", err)
	}

	subject.Reset()

	ac.recordAudit(ctx, "create", nil)
	ac.recordStats(ctx, 1, size)

	if err := ac.postAction(ctx, ac.action("create"), opts, modified); err != nil {
		return nil, err
	}

	return &SaveResult{Modified: modified}, nil
}

// autoCreate materializes dependent documents for empty auto-create
// properties, writing each generated id back into the parent. Dependents
// created before a later failure are removed again on a best-effort basis.
func (ac *AccessContext) autoCreate(ctx context.Context, opts SaveOptions) ([]*AccessContext, error) {
	if ac.dryRun || opts.Preview {
		return nil, nil
	}

	var created []*AccessContext
	for _, node := range ac.object.Nodes() {
		dep, ok := node.AutoCreateObject()
		if !ok {
			continue
		}
		if v, has := ac.subject.GetValue(node.Path()); has && !isEmptyValue(v) {
			continue
		}

		child := dep.NewSubject(ac.subject.OrgID())
		childAC, err := ac.Copy(child, false, WithObject(dep))
		if err != nil {
			ac.rollbackAutoCreate(ctx, created)
			return nil, err
		}
		if _, err := childAC.Save(ctx, SaveOptions{
			DisableTriggers: opts.DisableTriggers,
			SkipValidation:  opts.SkipValidation,
		}); err != nil {
			ac.rollbackAutoCreate(ctx, created)
			return nil, fmt.Errorf("vigil: auto-create %s at %s: %w", dep.Name(), node.Path(), err)
		}
		created = append(created, childAC)

		if err := ac.subject.SetValue(node.Path(), child.SubjectID().String()); err != nil {
			ac.rollbackAutoCreate(ctx, created)
			return nil, wrap("create", err)
		}
		ac.AddReindex(node.Path())
	}

	return created, nil
}

func (ac *AccessContext) rollbackAutoCreate(ctx context.Context, created []*AccessContext) {
	for _, child := range created {
		_, err := child.object.Collection().DeleteMany(ctx,
			storage.M{"_id": child.subject.SubjectID().String()})
		if err != nil {
			ac.eng.logger.Warn("auto-create rollback failed",
				"object", child.object.Name(),
				"subject", child.subject.SubjectID().String(),
				"error", err)
		}
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// ──────────────────────────────────────────────────
// Side channels shared by all pipeline paths
// ──────────────────────────────────────────────────

func (ac *AccessContext) recordAudit(ctx context.Context, action string, meta map[string]any) {
	if ac.passive || !ac.object.Auditing() {
		return
	}

	ac.eng.recordAudit(ctx, audit.Event{
		OrgID:     ac.subject.OrgID(),
		Principal: ac.principal.ID,
		Object:    ac.object.Name(),
		Subject:   ac.subject.SubjectID(),
		Action:    action,
		Metadata:  meta,
	})
}

func (ac *AccessContext) recordStats(ctx context.Context, docs, bytes int64) {
	if ac.passive {
		return
	}

	ac.eng.recordStats(ctx, stats.Delta{
		OrgID:  ac.subject.OrgID(),
		Object: ac.object.Name(),
		Docs:   docs,
		Bytes:  bytes,
	})
}
