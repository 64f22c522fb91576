package record

import (
	"fmt"
	"sort"
)

// Registry maps record type ids to their descriptors. Built once at
// startup, read-only afterwards, freely shared.
type Registry struct {
	byID   map[int]*Descriptor
	byName map[string]*Descriptor
	ids    []int
}

// NewRegistry builds the registry from the built-in descriptor table.
func NewRegistry() *Registry {
	r, err := NewRegistryFromDescriptors(builtinDescriptors())
	if err != nil {
		// The built-in table is validated by tests; a conflict here is
		// a programming error.
		panic(err)
	}
	return r
}

// NewRegistryFromDescriptors builds a registry from an explicit
// descriptor set, rejecting duplicate type ids, names, tables or uuid
// namespaces.
func NewRegistryFromDescriptors(ds []*Descriptor) (*Registry, error) {
	r := &Registry{
		byID:   make(map[int]*Descriptor, len(ds)),
		byName: make(map[string]*Descriptor, len(ds)),
	}
	namespaces := make(map[int32]string, len(ds))
	tables := make(map[string]string, len(ds))

	for _, d := range ds {
		if d.TypeID == TypeUnknown {
			return nil, fmt.Errorf("registry: descriptor %q has no type id", d.Name)
		}
		if _, dup := r.byID[d.TypeID]; dup {
			return nil, fmt.Errorf("registry: duplicate type id %d", d.TypeID)
		}
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate type name %q", d.Name)
		}
		if owner, dup := namespaces[d.UUIDNamespace]; dup {
			return nil, fmt.Errorf("registry: uuid namespace %d shared by %q and %q",
				d.UUIDNamespace, owner, d.Name)
		}
		if owner, dup := tables[d.Table]; dup {
			return nil, fmt.Errorf("registry: table %q shared by %q and %q",
				d.Table, owner, d.Name)
		}
		r.byID[d.TypeID] = d
		r.byName[d.Name] = d
		namespaces[d.UUIDNamespace] = d.Name
		tables[d.Table] = d.Name
		r.ids = append(r.ids, d.TypeID)
	}
	sort.Ints(r.ids)
	return r, nil
}

// Descriptor returns the descriptor for a type id.
func (r *Registry) Descriptor(typeID int) (*Descriptor, error) {
	d, ok := r.byID[typeID]
	if !ok {
		return nil, fmt.Errorf("registry: unknown record type %d", typeID)
	}
	return d, nil
}

// ByName returns the descriptor for a type name.
func (r *Registry) ByName(name string) (*Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown record type %q", name)
	}
	return d, nil
}

// TypeIDs returns every registered type id in ascending order. Filter
// expansion ("no type filter means all types") iterates this.
func (r *Registry) TypeIDs() []int {
	out := make([]int, len(r.ids))
	copy(out, r.ids)
	return out
}

// All returns every descriptor in type-id order.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// SupportsPriority reports whether SUM aggregation over this type is
// priority-weighted. Only the Activity, Sleep and Wellness categories
// qualify; the operator check is the aggregation engine's concern.
func (d *Descriptor) SupportsPriority() bool {
	switch d.Category {
	case CategoryActivity, CategorySleep, CategoryWellness:
		return true
	}
	return false
}
