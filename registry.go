package vigil

import (
	"context"
	"sync"

	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/org"
)

// StaticRegistry is a Registry backed by in-process maps. Suitable for
// embedded setups and tests; a deployment with org storage provides its
// own Registry.
type StaticRegistry struct {
	mu      sync.RWMutex
	orgs    map[string]*org.Org
	objects map[string]Object
	order   []string
}

var _ Registry = (*StaticRegistry)(nil)

// NewStaticRegistry returns an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		orgs:    make(map[string]*org.Org),
		objects: make(map[string]Object),
	}
}

// RegisterOrg adds or replaces an org. Replacing an org drops its memoized
// role expansions.
func (r *StaticRegistry) RegisterOrg(o *org.Org) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[o.ID.String()] = o
}

// RegisterObject adds or replaces an object type.
func (r *StaticRegistry) RegisterObject(obj Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[obj.Name()]; !ok {
		r.order = append(r.order, obj.Name())
	}
	r.objects[obj.Name()] = obj
}

// Org returns the registered org.
func (r *StaticRegistry) Org(ctx context.Context, orgID id.ID) (*org.Org, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orgs[orgID.String()]
	if !ok {
		return nil, NewFault(ErrNotFound, "org", "", orgID.String())
	}

	return o, nil
}

// ObjectByName returns the registered object type.
func (r *StaticRegistry) ObjectByName(name string) (Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[name]

	return obj, ok
}

// Objects returns every registered object type in registration order.
func (r *StaticRegistry) Objects() []Object {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Object, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.objects[name])
	}

	return out
}
