package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/storage"
)

// Reaper physically removes documents whose soft-delete marker is set.
// The write pipeline only ever marks; removal happens here, either from a
// scheduled reap message or inline in instant-reaping mode.
type Reaper struct {
	col storage.Collection
	log *slog.Logger
}

// NewReaper returns a reaper over the given collection. A nil logger uses
// slog.Default().
func NewReaper(col storage.Collection, log *slog.Logger) *Reaper {
	if log == nil {
		log = slog.Default()
	}

	return &Reaper{col: col, log: log}
}

// Reap removes one reap-marked document. Documents whose marker is not set
// are left alone.
func (r *Reaper) Reap(ctx context.Context, subjectID id.ID) (int64, error) {
	n, err := r.col.DeleteMany(ctx, storage.M{"_id": subjectID.String(), "reap": true})
	if err != nil {
		return 0, fmt.Errorf("worker: reap %s: %w", subjectID.String(), err)
	}
	if n > 0 {
		r.log.Debug("reaped document", "collection", r.col.Name(), "subject", subjectID.String())
	}

	return n, nil
}

// ReapAll removes every reap-marked document in the collection, optionally
// restricted to one org.
func (r *Reaper) ReapAll(ctx context.Context, orgID id.ID) (int64, error) {
	match := storage.M{"reap": true}
	if !orgID.IsNil() {
		match["org"] = orgID.String()
	}

	n, err := r.col.DeleteMany(ctx, match)
	if err != nil {
		return 0, fmt.Errorf("worker: reap all: %w", err)
	}
	if n > 0 {
		r.log.Debug("reaped documents", "collection", r.col.Name(), "count", n)
	}

	return n, nil
}

// Handler adapts the reaper to the Runner message contract.
func (r *Reaper) Handler() Handler {
	return func(ctx context.Context, msg Message) error {
		_, err := r.Reap(ctx, msg.Subject)

		return err
	}
}
