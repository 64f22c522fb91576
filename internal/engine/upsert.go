package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/identity"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
)

// Insert writes caller-supplied records. Every record's package name
// is forced to the caller; identities are freshly assigned (random, or
// the deterministic client-id hash), and a later write for an existing
// identity wins. Returns the final uuid per input record, in input
// order.
func (e *Engine) Insert(ctx context.Context, callerPackage string, records []*record.Record) ([]uuid.UUID, error) {
	ids, err := e.upsert(ctx, callerPackage, records, upsertOptions{assignIdentity: true, withLogs: true})
	e.metrics.Operation("insert", outcome(err))
	if err == nil {
		e.metrics.Rows("insert", int64(len(records)))
	}
	return ids, err
}

// Update rewrites existing records in place. The identity is
// re-derived only when a client record id is present, so updates
// targeting bare-uuid records keep the caller-given uuid. The write is
// scoped to (uuid, appInfoId); a caller cannot move a row belonging to
// another owner.
func (e *Engine) Update(ctx context.Context, callerPackage string, records []*record.Record) ([]uuid.UUID, error) {
	ids, err := e.upsert(ctx, callerPackage, records, upsertOptions{update: true, withLogs: true})
	e.metrics.Operation("update", outcome(err))
	if err == nil {
		e.metrics.Rows("update", int64(len(records)))
	}
	return ids, err
}

// InsertUnrestricted is the internal restore path. Every record must
// already carry an identity and owner package; existing rows win on
// conflict, timestamps are preserved, no access log is written and the
// change log is optional.
func (e *Engine) InsertUnrestricted(ctx context.Context, records []*record.Record, generateChangeLogs bool) ([]uuid.UUID, error) {
	ids, err := e.upsert(ctx, "", records, upsertOptions{
		unrestricted: true,
		withLogs:     generateChangeLogs,
	})
	e.metrics.Operation("restore", outcome(err))
	return ids, err
}

type upsertOptions struct {
	assignIdentity bool
	update         bool
	unrestricted   bool
	withLogs       bool
}

func (e *Engine) upsert(ctx context.Context, callerPackage string, records []*record.Record, opts upsertOptions) ([]uuid.UUID, error) {
	op := "insert"
	if opts.update {
		op = "update"
	}
	if len(records) == 0 {
		return nil, invalidRequest(op, "no records supplied")
	}

	descriptors := make([]*record.Descriptor, len(records))
	for i, rec := range records {
		d, err := e.registry.Descriptor(rec.Type)
		if err != nil {
			return nil, invalidRequest(op, "record %d: %v", i, err)
		}
		if d.Derived && !opts.unrestricted {
			return nil, invalidRequest(op, "record %d: type %s is derived, direct writes are not permitted", i, d.Name)
		}
		if opts.unrestricted && rec.UUID == uuid.Nil {
			return nil, invalidRequest("restore", "record %d carries no identity", i)
		}
		if opts.unrestricted && rec.PackageName == "" {
			return nil, invalidRequest("restore", "record %d carries no owner package", i)
		}
		descriptors[i] = d
	}

	now := e.clock.NowMillis()
	out := make([]uuid.UUID, len(records))

	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		var callerAppID int64
		var err error
		if !opts.unrestricted {
			callerAppID, err = getOrCreateAppID(ctx, tx, callerPackage)
			if err != nil {
				return err
			}
		}

		logs := newChangeLogs(OpUpsert, now)
		cascade := newChangeLogs(OpUpsert, now)
		// Batch-local dedupe scope: a second record in this call with
		// an identical fingerprint collapses onto the first.
		batchSeen := make(map[string]uuid.UUID)
		touched := make(map[int]struct{})

		for i, rec := range records {
			d := descriptors[i]
			appID := callerAppID
			if opts.unrestricted {
				if appID, err = getOrCreateAppID(ctx, tx, rec.PackageName); err != nil {
					return err
				}
			} else {
				rec.PackageName = callerPackage
			}
			rec.AppInfoID = appID
			if rec.DeviceInfoID, err = getOrCreateDeviceID(ctx, tx, rec.Manufacturer, rec.Model); err != nil {
				return err
			}

			switch {
			case opts.assignIdentity:
				if rec.ClientRecordID != "" {
					rec.UUID = identity.Deterministic(rec.PackageName, rec.ClientRecordID, d.UUIDNamespace)
				} else {
					rec.UUID = identity.Random()
				}
			case opts.update:
				if rec.ClientRecordID != "" {
					rec.UUID = identity.Deterministic(rec.PackageName, rec.ClientRecordID, d.UUIDNamespace)
				} else if rec.UUID == uuid.Nil {
					return invalidRequest(op, "record %d: update needs a uuid or client record id", i)
				}
			}

			if !opts.unrestricted || rec.LastModifiedTime == 0 {
				rec.LastModifiedTime = now
			}

			if fp := d.Fingerprint(rec); fp != nil {
				if prior, dup := batchSeen[string(fp)]; dup {
					out[i] = prior
					continue
				}
				batchSeen[string(fp)] = rec.UUID
			}

			actor := callerAppID
			if opts.unrestricted {
				actor = appID
			}
			if err := e.writeRecord(ctx, tx, d, rec, opts); err != nil {
				return err
			}
			out[i] = rec.UUID
			touched[rec.Type] = struct{}{}

			if opts.withLogs {
				logs.add(rec.Type, appID, rec.UUID)
				if d.ModifiedByUpsert != nil {
					if err := collectCascade(ctx, tx, cascade, d.ModifiedByUpsert(rec, actor)); err != nil {
						return err
					}
				}
			}
		}

		if opts.withLogs {
			if err := logs.flush(ctx, tx, e.pageSize); err != nil {
				return err
			}
			if err := cascade.flush(ctx, tx, e.pageSize); err != nil {
				return err
			}
		}

		if !opts.unrestricted {
			types := make([]int, 0, len(touched))
			for id := range touched {
				types = append(types, id)
			}
			if err := noteRecordTypesUsed(ctx, tx, callerAppID, types); err != nil {
				return err
			}
			if err := addAccessLog(ctx, tx, callerAppID, types, OpUpsert, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("upsert committed", "op", op, "caller", callerPackage, "records", len(records))
	return out, nil
}

// writeRecord executes one table write. The insert path tries a plain
// insert first; a unique violation means an existing identity (or a
// same-fingerprint row) and the later write wins by replacing it. The
// update path requires exactly one owned row to match.
func (e *Engine) writeRecord(ctx context.Context, tx *store.Tx, d *record.Descriptor, rec *record.Record, opts upsertOptions) error {
	cols, vals, err := d.ContentValues(rec)
	if err != nil {
		return invalidRequest("upsert", "%v", err)
	}

	if opts.update {
		n, err := tx.Update(ctx, plan.UpsertTable{
			Table:       d.Table,
			Columns:     cols,
			Values:      vals,
			UpdateWhere: ownershipWhere(rec.UUID, rec.AppInfoID),
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return invalidRequest("update", "no %s record with uuid %s owned by caller", d.Name, rec.UUID)
		}
		return nil
	}

	conflict := plan.ConflictFail
	if opts.unrestricted {
		conflict = plan.ConflictIgnore
	}
	_, err = tx.Insert(ctx, plan.UpsertTable{
		Table:      d.Table,
		Columns:    cols,
		Values:     vals,
		OnConflict: conflict,
	})
	if err == nil || opts.unrestricted {
		return err
	}
	if !store.IsUniqueViolation(err) {
		return err
	}

	// Same identity: replace in place, keeping ownership scoped.
	n, err := tx.Update(ctx, plan.UpsertTable{
		Table:       d.Table,
		Columns:     cols,
		Values:      vals,
		UpdateWhere: ownershipWhere(rec.UUID, rec.AppInfoID),
	})
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// Same fingerprint under a different identity: the later write
	// wins, replacing the colliding row wholesale.
	if fp := d.Fingerprint(rec); fp != nil {
		if _, err := tx.Exec(ctx,
			"DELETE FROM "+d.Table+" WHERE "+record.ColDedupeHash+" = ?", fp,
		); err != nil {
			return fmt.Errorf("replace duplicate in %s: %w", d.Table, err)
		}
		_, err := tx.Insert(ctx, plan.UpsertTable{
			Table:   d.Table,
			Columns: cols,
			Values:  vals,
		})
		return err
	}
	return ownershipViolation("insert", "record %s exists with a different owner", rec.UUID)
}

// collectCascade runs cascade lookups and adds an UPSERT entry per
// discovered (uuid, appId) row.
func collectCascade(ctx context.Context, tx *store.Tx, logs *changeLogs, reads []record.CascadeRead) error {
	for _, r := range reads {
		rows, err := tx.Query(ctx, r.Query, r.Args...)
		if err != nil {
			return fmt.Errorf("cascade lookup: %w", err)
		}
		for _, row := range rows {
			id, appID, err := cascadeRow(row)
			if err != nil {
				return err
			}
			logs.add(r.RecordType, appID, id)
		}
	}
	return nil
}

// cascadeRow decodes a (uuid, app_id) cascade result row; the two
// columns are positional by contract but may arrive under any name.
func cascadeRow(row map[string]any) (uuid.UUID, int64, error) {
	var blob []byte
	var appID int64
	for _, v := range row {
		switch t := v.(type) {
		case []byte:
			blob = t
		case int64:
			appID = t
		}
	}
	if blob == nil {
		return uuid.Nil, 0, invariantViolation("cascade", "lookup row carries no uuid")
	}
	id, err := identity.DecodeUUID(blob)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("cascade lookup: %w", err)
	}
	return id, appID, nil
}

func ownershipWhere(id uuid.UUID, appID int64) *clause.Where {
	return clause.NewWhere(clause.And).
		InLiterals(record.ColUUID, []string{identity.HexLiteral(id)}).
		EqualsInt(record.ColAppInfoID, appID)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
