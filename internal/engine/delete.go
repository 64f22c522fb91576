package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/identity"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
)

// IDFilter selects one record to delete, by literal uuid or by the
// caller's client record id. Exactly one of the two must be set.
type IDFilter struct {
	RecordType     int
	UUID           uuid.UUID
	ClientRecordID string
}

// DeleteFilter selects records to delete by predicate. An empty
// RecordTypes list expands to every registered type.
type DeleteFilter struct {
	RecordTypes  []int
	PackageNames []string
	TimeRange    TimeRange
}

// deletePlan is one table's share of a delete call. requiresRead marks
// the read-before-delete pass; every live construction path sets it,
// and executing a plan without it fails loudly.
type deletePlan struct {
	d            *record.Descriptor
	where        *clause.Where
	requiresRead bool
}

type deleteOptions struct {
	enforceOwnership bool
	recordAccessLog  bool
	unrestricted     bool
}

// DeleteByIDs deletes concrete records. Each filter resolves to a
// uuid (client ids hash deterministically), duplicates within one
// request collapse, and the resolved ids group into one plan per
// record type. Unless the caller holds elevated permission, every row
// must be owned by the caller or the whole call fails with nothing
// deleted.
func (e *Engine) DeleteByIDs(ctx context.Context, callerPackage string, filters []IDFilter, hasElevatedPermission, recordAccessLog bool) (int64, error) {
	if len(filters) == 0 {
		e.metrics.Operation("delete", "error")
		return 0, invalidRequest("delete", "no id filters supplied")
	}

	byType := make(map[int][]uuid.UUID)
	seen := make(map[uuid.UUID]struct{})
	for i, f := range filters {
		d, err := e.registry.Descriptor(f.RecordType)
		if err != nil {
			e.metrics.Operation("delete", "error")
			return 0, invalidRequest("delete", "filter %d: %v", i, err)
		}
		hasUUID := f.UUID != uuid.Nil
		hasClient := f.ClientRecordID != ""
		if hasUUID == hasClient {
			e.metrics.Operation("delete", "error")
			return 0, invalidRequest("delete", "filter %d: exactly one of uuid and client record id is required", i)
		}
		id := f.UUID
		if hasClient {
			id = identity.Deterministic(callerPackage, f.ClientRecordID, d.UUIDNamespace)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		byType[f.RecordType] = append(byType[f.RecordType], id)
	}

	var plans []deletePlan
	for _, typeID := range sortedKeys(byType) {
		d, _ := e.registry.Descriptor(typeID)
		literals := make([]string, 0, len(byType[typeID]))
		for _, id := range byType[typeID] {
			literals = append(literals, identity.HexLiteral(id))
		}
		plans = append(plans, deletePlan{
			d:            d,
			where:        clause.NewWhere(clause.And).InLiterals(record.ColUUID, literals),
			requiresRead: true,
		})
	}

	opts := deleteOptions{
		enforceOwnership: !hasElevatedPermission,
		recordAccessLog:  recordAccessLog,
	}
	var total int64
	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		var err error
		total, err = e.runDelete(ctx, tx, callerPackage, plans, opts)
		return err
	})
	e.metrics.Operation("delete", outcome(err))
	if err != nil {
		return 0, err
	}
	e.metrics.Rows("delete", total)
	return total, nil
}

// DeleteByFilter deletes records matching time and package
// constraints. There is no per-row ownership check; the predicate
// itself scopes the rows. Callers without elevated permission are
// pinned to their own package.
func (e *Engine) DeleteByFilter(ctx context.Context, callerPackage string, f DeleteFilter, hasElevatedPermission, recordAccessLog bool) (int64, error) {
	types := f.RecordTypes
	if len(types) == 0 {
		types = e.registry.TypeIDs()
	}
	packages := f.PackageNames
	if !hasElevatedPermission {
		packages = []string{callerPackage}
	}

	var total int64
	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		appIDs, err := appIDsForPackages(ctx, tx, packages)
		if err != nil {
			return err
		}
		if len(packages) > 0 && len(appIDs) == 0 {
			return nil // named packages have no data
		}

		var plans []deletePlan
		for _, typeID := range types {
			d, err := e.registry.Descriptor(typeID)
			if err != nil {
				return invalidRequest("delete", "%v", err)
			}
			where := clause.NewWhere(clause.And).
				InLongs(record.ColAppInfoID, appIDs).
				BetweenTime(d.TimeColumn(), f.TimeRange.Start, f.TimeRange.End)
			plans = append(plans, deletePlan{d: d, where: where, requiresRead: true})
		}

		total, err = e.runDelete(ctx, tx, callerPackage, plans, deleteOptions{
			recordAccessLog: recordAccessLog,
		})
		return err
	})
	e.metrics.Operation("delete", outcome(err))
	if err != nil {
		return 0, err
	}
	e.metrics.Rows("delete", total)
	return total, nil
}

// DeleteUnrestricted is the internal entry point used by the retention
// job: no ownership check, no access log, change logs still written so
// sync consumers observe the deletions.
func (e *Engine) DeleteUnrestricted(ctx context.Context, recordTypes []int, timeRange TimeRange) (int64, error) {
	types := recordTypes
	if len(types) == 0 {
		types = e.registry.TypeIDs()
	}
	var plans []deletePlan
	for _, typeID := range types {
		d, err := e.registry.Descriptor(typeID)
		if err != nil {
			return 0, invalidRequest("delete", "%v", err)
		}
		where := clause.NewWhere(clause.And).
			BetweenTime(d.TimeColumn(), timeRange.Start, timeRange.End)
		plans = append(plans, deletePlan{d: d, where: where, requiresRead: true})
	}

	var total int64
	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		var err error
		total, err = e.runDelete(ctx, tx, "", plans, deleteOptions{unrestricted: true})
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// runDelete executes every plan inside the caller's unit of work: read
// the rows about to die (capturing owner and identity), enforce
// ownership, emit DELETE change-log entries plus cascade UPSERT
// entries, then execute the deletes. The count is exactly the rows
// seen in the read pass.
func (e *Engine) runDelete(ctx context.Context, tx *store.Tx, callerPackage string, plans []deletePlan, opts deleteOptions) (int64, error) {
	now := e.clock.NowMillis()

	var callerAppID int64
	var err error
	if !opts.unrestricted {
		if callerAppID, err = appID(ctx, tx, callerPackage); err != nil {
			return 0, err
		}
	}

	logs := newChangeLogs(OpDelete, now)
	cascade := newChangeLogs(OpUpsert, now)
	var touched []int
	var total int64

	for _, p := range plans {
		if !p.requiresRead {
			return 0, invariantViolation("delete", "plan for %s has no read requirement", p.d.Table)
		}

		rows, err := tx.Read(ctx, plan.ReadTable{
			Table:   p.d.Table,
			Columns: []string{record.ColUUID, record.ColAppInfoID},
			Where:   p.where,
		})
		if err != nil {
			return 0, err
		}
		if len(rows) == 0 {
			continue
		}

		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			blob, _ := row[record.ColUUID].([]byte)
			id, err := identity.DecodeUUID(blob)
			if err != nil {
				return 0, fmt.Errorf("delete %s: %w", p.d.Table, err)
			}
			owner := asInt64(row[record.ColAppInfoID])
			if opts.enforceOwnership && owner != callerAppID {
				return 0, ownershipViolation("delete",
					"%s record %s belongs to another app", p.d.Name, id)
			}
			ids = append(ids, id)
			logs.add(p.d.TypeID, owner, id)
			if p.d.ModifiedByDelete != nil {
				if err := collectCascade(ctx, tx, cascade, p.d.ModifiedByDelete(id)); err != nil {
					return 0, err
				}
			}
		}

		literals := make([]string, len(ids))
		for i, id := range ids {
			literals[i] = identity.HexLiteral(id)
		}
		if _, err := tx.Delete(ctx, plan.DeleteTable{
			Table: p.d.Table,
			Where: clause.NewWhere(clause.And).InLiterals(record.ColUUID, literals),
		}); err != nil {
			return 0, err
		}
		if p.d.ChildCleanup != nil {
			for _, stmt := range p.d.ChildCleanup(ids) {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return 0, fmt.Errorf("delete %s children: %w", p.d.Table, err)
				}
			}
		}
		total += int64(len(rows))
		touched = append(touched, p.d.TypeID)
	}

	if err := logs.flush(ctx, tx, e.pageSize); err != nil {
		return 0, err
	}
	if err := cascade.flush(ctx, tx, e.pageSize); err != nil {
		return 0, err
	}
	if opts.recordAccessLog && !opts.unrestricted {
		sort.Ints(touched)
		if err := addAccessLog(ctx, tx, callerAppID, touched, OpDelete, now); err != nil {
			return 0, err
		}
	}
	return total, nil
}
