package prefs

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
)

const priorityTable = "priority_table"

// PriorityOrder returns the app ids for a category in priority order,
// highest precedence first. Empty when no list is set.
func PriorityOrder(ctx context.Context, tx *store.Tx, category record.Category) ([]int64, error) {
	rows, err := tx.Read(ctx, plan.ReadTable{
		Table:   priorityTable,
		Columns: []string{"app_id_order"},
		Where:   clause.NewWhere(clause.And).EqualsInt("category", int64(category)),
	})
	if err != nil {
		return nil, fmt.Errorf("priority order for %s: %w", category, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	raw, _ := rows[0]["app_id_order"].(string)
	return splitAppIDs(raw)
}

// SetPriorityOrder replaces the priority list for a category.
func SetPriorityOrder(ctx context.Context, tx *store.Tx, category record.Category, appIDs []int64) error {
	if _, err := tx.Exec(ctx,
		"INSERT INTO "+priorityTable+" (category, app_id_order) VALUES (?, ?)"+
			" ON CONFLICT(category) DO UPDATE SET app_id_order = excluded.app_id_order",
		int64(category), joinAppIDs(appIDs),
	); err != nil {
		return fmt.Errorf("set priority order for %s: %w", category, err)
	}
	return nil
}

// AppendToPriority adds an app at the end of a category's list if it
// is not already present.
func AppendToPriority(ctx context.Context, tx *store.Tx, category record.Category, appID int64) error {
	current, err := PriorityOrder(ctx, tx, category)
	if err != nil {
		return err
	}
	for _, id := range current {
		if id == appID {
			return nil
		}
	}
	return SetPriorityOrder(ctx, tx, category, append(current, appID))
}

// RemoveFromPriority drops an app from a category's list.
func RemoveFromPriority(ctx context.Context, tx *store.Tx, category record.Category, appID int64) error {
	current, err := PriorityOrder(ctx, tx, category)
	if err != nil {
		return err
	}
	kept := current[:0]
	for _, id := range current {
		if id != appID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(current) {
		return nil
	}
	return SetPriorityOrder(ctx, tx, category, kept)
}

func joinAppIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitAppIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed priority list entry %q: %w", p, err)
		}
		out = append(out, id)
	}
	return out, nil
}
