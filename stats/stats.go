// Package stats aggregates document count and size deltas per org and
// object type.
package stats

import (
	"context"
	"sync"

	"github.com/vigilhq/vigil/id"
)

// Delta is one accounting change: Docs and Bytes are signed (negative on
// delete).
type Delta struct {
	OrgID  id.ID
	Object string
	Docs   int64
	Bytes  int64
}

// Sink accepts accounting deltas. Failures never fail the mutation that
// produced them.
type Sink interface {
	Record(ctx context.Context, d Delta) error
}

// Totals is the accumulated state for one (org, object) pair.
type Totals struct {
	Docs  int64
	Bytes int64
}

// Memory is a Sink accumulating totals in memory.
type Memory struct {
	mu     sync.Mutex
	totals map[string]Totals
}

var _ Sink = (*Memory)(nil)

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{totals: make(map[string]Totals)}
}

// Record applies the delta.
func (m *Memory) Record(ctx context.Context, d Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := d.OrgID.String() + "/" + d.Object

	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.totals[key]
	t.Docs += d.Docs
	t.Bytes += d.Bytes
	m.totals[key] = t

	return nil
}

// Totals returns the accumulated state for an (org, object) pair.
func (m *Memory) Totals(orgID id.ID, object string) Totals {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.totals[orgID.String()+"/"+object]
}
