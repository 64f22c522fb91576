package engine

import (
	"context"

	"github.com/openvital/vitalstore/internal/prefs"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
)

// SetPriority replaces a category's priority list with the given apps,
// highest precedence first. Unknown packages are registered so the
// list can be configured before an app's first write.
func (e *Engine) SetPriority(ctx context.Context, category record.Category, packages []string) error {
	if category == record.CategoryUnknown {
		return invalidRequest("set priority", "a concrete category is required")
	}
	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		ids := make([]int64, len(packages))
		for i, pkg := range packages {
			id, err := getOrCreateAppID(ctx, tx, pkg)
			if err != nil {
				return err
			}
			ids[i] = id
		}
		return prefs.SetPriorityOrder(ctx, tx, category, ids)
	})
	e.metrics.Operation("set_priority", outcome(err))
	return err
}

// Priority returns a category's priority list as package names,
// highest precedence first.
func (e *Engine) Priority(ctx context.Context, category record.Category) ([]string, error) {
	var out []string
	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		ids, err := prefs.PriorityOrder(ctx, tx, category)
		if err != nil {
			return err
		}
		out = make([]string, len(ids))
		for i, id := range ids {
			if out[i], err = packageNameForAppID(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
