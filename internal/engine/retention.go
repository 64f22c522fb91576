package engine

import (
	"context"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/prefs"
	"github.com/openvital/vitalstore/internal/store"
)

const (
	millisPerDay = int64(24 * 60 * 60 * 1000)

	// Change logs outlive records long enough for every consumer to
	// sync; tokens age out on the same horizon since a token older
	// than the log window can no longer be resumed.
	changeLogRetentionDays = 32
	accessLogRetentionDays = 7
)

// AutoDelete runs one retention pass. Record rows older than the
// configured retention period are deleted with change logs, so readers
// holding a change token still observe the disappearance. Change logs,
// token requests and access logs are then trimmed on their fixed
// horizons. Returns the number of record rows deleted.
func (e *Engine) AutoDelete(ctx context.Context) (int64, error) {
	var days int
	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		var err error
		days, err = prefs.RetentionDays(ctx, tx)
		return err
	})
	if err != nil {
		e.metrics.Operation("auto_delete", "error")
		return 0, err
	}

	now := e.clock.NowMillis()
	var deleted int64
	if days > 0 {
		cutoff := now - int64(days)*millisPerDay
		deleted, err = e.DeleteUnrestricted(ctx, nil, TimeRange{Start: -1, End: cutoff})
		if err != nil {
			e.metrics.Operation("auto_delete", "error")
			return deleted, err
		}
	}

	err = e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		logCutoff := now - changeLogRetentionDays*millisPerDay
		if _, err := tx.Delete(ctx, plan.DeleteTable{
			Table: changeLogsTable,
			Where: clause.NewWhere(clause.And).LessThan("time", logCutoff),
		}); err != nil {
			return err
		}
		if _, err := tx.Delete(ctx, plan.DeleteTable{
			Table: changeLogTokensTable,
			Where: clause.NewWhere(clause.And).LessThan("time", logCutoff),
		}); err != nil {
			return err
		}
		accessCutoff := now - accessLogRetentionDays*millisPerDay
		_, err := tx.Delete(ctx, plan.DeleteTable{
			Table: accessLogsTable,
			Where: clause.NewWhere(clause.And).LessThan("access_time", accessCutoff),
		})
		return err
	})
	e.metrics.Operation("auto_delete", outcome(err))
	if err != nil {
		return deleted, err
	}
	e.log.Info("retention pass complete", "retention_days", days, "deleted", deleted)
	return deleted, nil
}
