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

const accessLogsTable = "access_logs_table"

// addAccessLog records one API-visible operation: a single row naming
// every distinct record type the call touched. Callers suppress it for
// self-reads.
func addAccessLog(ctx context.Context, tx *store.Tx, appID int64, typeIDs []int, operation int, now int64) error {
	if appID == 0 || len(typeIDs) == 0 {
		return nil
	}
	distinct := make(map[int]struct{}, len(typeIDs))
	for _, id := range typeIDs {
		distinct[id] = struct{}{}
	}
	sorted := make([]int, 0, len(distinct))
	for id := range distinct {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.Itoa(id)
	}

	_, err := tx.Insert(ctx, plan.UpsertTable{
		Table:   accessLogsTable,
		Columns: []string{"app_id", "record_types", "access_time", "operation_type"},
		Values:  []any{appID, strings.Join(parts, ","), now, operation},
	})
	if err != nil {
		return fmt.Errorf("write access log: %w", err)
	}
	return nil
}

// AccessLog is one decoded access-log row for user-facing "which apps
// touched my data" reporting.
type AccessLog struct {
	PackageName string
	RecordTypes []int
	AccessTime  int64
	Operation   int
}

// QueryAccessLogs returns every access-log entry, newest first.
func (e *Engine) QueryAccessLogs(ctx context.Context) ([]AccessLog, error) {
	var out []AccessLog
	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		var order clause.OrderBy
		rows, err := tx.Read(ctx, plan.ReadTable{
			Table: accessLogsTable,
			Order: order.Desc("access_time").Desc("row_id"),
		})
		if err != nil {
			return err
		}

		names := make(map[int64]string)
		for _, row := range rows {
			appID := asInt64(row["app_id"])
			name, ok := names[appID]
			if !ok {
				if name, err = packageNameForAppID(ctx, tx, appID); err != nil {
					return err
				}
				names[appID] = name
			}
			entry := AccessLog{
				PackageName: name,
				AccessTime:  asInt64(row["access_time"]),
				Operation:   int(asInt64(row["operation_type"])),
			}
			if raw, ok := row["record_types"].(string); ok && raw != "" {
				for _, part := range strings.Split(raw, ",") {
					if id, err := strconv.Atoi(part); err == nil {
						entry.RecordTypes = append(entry.RecordTypes, id)
					}
				}
			}
			out = append(out, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
