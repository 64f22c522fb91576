package engine

import (
	"context"
	"fmt"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/store"
)

const deviceInfoTable = "device_info_table"

// getOrCreateDeviceID resolves a (manufacturer, model) pair to its
// device row, creating it on first sight. Records without device
// details share one default row.
func getOrCreateDeviceID(ctx context.Context, tx *store.Tx, manufacturer, model string) (int64, error) {
	if manufacturer == "" {
		manufacturer = "unknown"
	}
	if model == "" {
		model = "unknown"
	}

	rows, err := tx.Read(ctx, plan.ReadTable{
		Table:   deviceInfoTable,
		Columns: []string{"row_id"},
		Where: clause.NewWhere(clause.And).
			Equals("manufacturer", manufacturer).
			Equals("model", model),
	})
	if err != nil {
		return 0, fmt.Errorf("resolve device id: %w", err)
	}
	if len(rows) > 0 {
		return asInt64(rows[0]["row_id"]), nil
	}

	id, err := tx.Insert(ctx, plan.UpsertTable{
		Table:   deviceInfoTable,
		Columns: []string{"manufacturer", "model"},
		Values:  []any{manufacturer, model},
	})
	if err != nil {
		return 0, fmt.Errorf("create device info: %w", err)
	}
	return id, nil
}
