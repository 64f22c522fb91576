// Package prefs is the small keyed settings store built on the
// transaction manager: retention configuration and the per-category
// priority lists used to weight aggregation.
package prefs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/store"
)

const preferencesTable = "preferences_table"

// retentionKey stores the auto-delete period in days. Zero or absent
// means auto-delete is off.
const retentionKey = "auto_delete_duration_records_key"

// Get returns the preference value for key, or "" when unset.
func Get(ctx context.Context, tx *store.Tx, key string) (string, error) {
	rows, err := tx.Read(ctx, plan.ReadTable{
		Table:   preferencesTable,
		Columns: []string{"value"},
		Where:   clause.NewWhere(clause.And).Equals("key", key),
	})
	if err != nil {
		return "", fmt.Errorf("get preference %q: %w", key, err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	v, _ := rows[0]["value"].(string)
	return v, nil
}

// Set inserts or replaces the preference value for key.
func Set(ctx context.Context, tx *store.Tx, key, value string) error {
	if _, err := tx.Exec(ctx,
		"INSERT INTO "+preferencesTable+" (key, value) VALUES (?, ?)"+
			" ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	); err != nil {
		return fmt.Errorf("set preference %q: %w", key, err)
	}
	return nil
}

// RetentionDays returns the configured auto-delete period, 0 when
// auto-delete is off.
func RetentionDays(ctx context.Context, tx *store.Tx) (int, error) {
	v, err := Get(ctx, tx, retentionKey)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("retention preference %q is not a number: %w", v, err)
	}
	return days, nil
}

// SetRetentionDays updates the auto-delete period.
func SetRetentionDays(ctx context.Context, tx *store.Tx, days int) error {
	if days < 0 {
		return fmt.Errorf("retention days must not be negative, got %d", days)
	}
	return Set(ctx, tx, retentionKey, strconv.Itoa(days))
}
