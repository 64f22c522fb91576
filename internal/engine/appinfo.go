package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/store"
)

const appInfoTable = "application_info_table"

// appID resolves a package name to its app id, or 0 when the package
// has never contributed data.
func appID(ctx context.Context, tx *store.Tx, packageName string) (int64, error) {
	rows, err := tx.Read(ctx, plan.ReadTable{
		Table:   appInfoTable,
		Columns: []string{"row_id"},
		Where:   clause.NewWhere(clause.And).Equals("package_name", packageName),
	})
	if err != nil {
		return 0, fmt.Errorf("resolve app id: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt64(rows[0]["row_id"]), nil
}

// getOrCreateAppID resolves a package name, creating the app-info row
// on first contact.
func getOrCreateAppID(ctx context.Context, tx *store.Tx, packageName string) (int64, error) {
	if packageName == "" {
		return 0, invalidRequest("app info", "package name is required")
	}
	id, err := appID(ctx, tx, packageName)
	if err != nil || id != 0 {
		return id, err
	}
	id, err = tx.Insert(ctx, plan.UpsertTable{
		Table:   appInfoTable,
		Columns: []string{"package_name"},
		Values:  []any{packageName},
	})
	if err != nil {
		return 0, fmt.Errorf("create app info for %s: %w", packageName, err)
	}
	return id, nil
}

// appIDsForPackages resolves package names to app ids, skipping
// packages with no data. The result preserves input order.
func appIDsForPackages(ctx context.Context, tx *store.Tx, packages []string) ([]int64, error) {
	var out []int64
	for _, pkg := range packages {
		id, err := appID(ctx, tx, pkg)
		if err != nil {
			return nil, err
		}
		if id != 0 {
			out = append(out, id)
		}
	}
	return out, nil
}

// packageNameForAppID is the reverse lookup, "" when unknown.
func packageNameForAppID(ctx context.Context, tx *store.Tx, id int64) (string, error) {
	rows, err := tx.Read(ctx, plan.ReadTable{
		Table:   appInfoTable,
		Columns: []string{"package_name"},
		Where:   clause.NewWhere(clause.And).EqualsInt("row_id", id),
	})
	if err != nil {
		return "", fmt.Errorf("resolve package name: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	name, _ := rows[0]["package_name"].(string)
	return name, nil
}

// noteRecordTypesUsed merges typeIDs into the app's record_types_used
// set, kept as a sorted comma-joined list for user-facing reporting.
func noteRecordTypesUsed(ctx context.Context, tx *store.Tx, appID int64, typeIDs []int) error {
	rows, err := tx.Read(ctx, plan.ReadTable{
		Table:   appInfoTable,
		Columns: []string{"record_types_used"},
		Where:   clause.NewWhere(clause.And).EqualsInt("row_id", appID),
	})
	if err != nil {
		return fmt.Errorf("record types used: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	set := make(map[int]struct{})
	if existing, ok := rows[0]["record_types_used"].(string); ok && existing != "" {
		for _, part := range strings.Split(existing, ",") {
			if id, err := strconv.Atoi(part); err == nil {
				set[id] = struct{}{}
			}
		}
	}
	before := len(set)
	for _, id := range typeIDs {
		set[id] = struct{}{}
	}
	if len(set) == before {
		return nil
	}

	merged := make([]int, 0, len(set))
	for id := range set {
		merged = append(merged, id)
	}
	sort.Ints(merged)
	parts := make([]string, len(merged))
	for i, id := range merged {
		parts[i] = strconv.Itoa(id)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE "+appInfoTable+" SET record_types_used = ? WHERE row_id = ?",
		strings.Join(parts, ","), appID,
	); err != nil {
		return fmt.Errorf("record types used: %w", err)
	}
	return nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
