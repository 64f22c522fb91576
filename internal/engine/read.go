package engine

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/identity"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
)

// TimeRange is a [Start, End] millisecond window. Negative bounds mean
// unconstrained on that side, with the degradation rules of the
// predicate builder.
type TimeRange struct {
	Start int64
	End   int64
}

// UnboundedRange matches all time.
func UnboundedRange() TimeRange {
	return TimeRange{Start: -1, End: -1}
}

// ReadRequest describes one paged read of a single record type. When
// UUIDs or ClientRecordIDs are present the request takes the by-ids
// path and pagination does not apply.
type ReadRequest struct {
	RecordType   int
	PackageNames []string
	TimeRange    TimeRange
	Ascending    bool
	PageSize     int
	PageToken    int64

	UUIDs           []uuid.UUID
	ClientRecordIDs []string
}

// ReadOptions carries the permission-derived constraints resolved by
// the caller-facing surface.
type ReadOptions struct {
	// HistoricCutoffMillis excludes other apps' rows older than this
	// boundary; the caller's own rows are always visible. Negative
	// means no cutoff.
	HistoricCutoffMillis int64

	// EnforceSelfRead restricts the read to the caller's own rows
	// regardless of the request's package filter.
	EnforceSelfRead bool

	// RecordAccessLog requests an access-log row; self-reads suppress
	// it regardless.
	RecordAccessLog bool
}

// ReadPaged executes a filtered, paginated read. The returned token
// resumes the next page; when the stream is exhausted the caller's own
// token comes back unchanged, so "no more pages" is detectable by
// token equality.
func (e *Engine) ReadPaged(ctx context.Context, callerPackage string, req ReadRequest, opts ReadOptions) ([]*record.Record, int64, error) {
	if len(req.UUIDs) > 0 || len(req.ClientRecordIDs) > 0 {
		recs, err := e.readByIDRequest(ctx, callerPackage, req, opts)
		return recs, req.PageToken, err
	}

	d, err := e.registry.Descriptor(req.RecordType)
	if err != nil {
		e.metrics.Operation("read", "error")
		return nil, 0, invalidRequest("read", "%v", err)
	}

	pageSize := clampPageSize(req.PageSize, e.pageSize)
	token, hasToken := unpackPageToken(req.PageToken)
	if hasToken && token.ascending != req.Ascending {
		e.metrics.Operation("read", "error")
		return nil, 0, invalidRequest("read", "page token direction does not match request")
	}

	var records []*record.Record
	nextToken := req.PageToken
	now := e.clock.NowMillis()

	err = e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		callerAppID, err := appID(ctx, tx, callerPackage)
		if err != nil {
			return err
		}

		where := clause.NewWhere(clause.And)
		selfRead := opts.EnforceSelfRead
		if opts.EnforceSelfRead {
			where.InLongs(record.ColAppInfoID, []int64{callerAppID})
		} else if len(req.PackageNames) > 0 {
			ids, err := appIDsForPackages(ctx, tx, req.PackageNames)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil // filter names only unknown packages
			}
			where.InLongs(record.ColAppInfoID, ids)
			selfRead = len(req.PackageNames) == 1 && req.PackageNames[0] == callerPackage
		}

		timeCol := d.TimeColumn()
		if hasToken {
			if req.Ascending {
				where.GreaterThanOrEqual(timeCol, token.time)
			} else {
				where.LessThanOrEqual(timeCol, token.time)
			}
		}
		where.BetweenTime(timeCol, req.TimeRange.Start, req.TimeRange.End)
		if opts.HistoricCutoffMillis >= 0 && !selfRead {
			historic := clause.NewWhere(clause.Or).
				EqualsInt(record.ColAppInfoID, callerAppID).
				GreaterThanOrEqual(timeCol, opts.HistoricCutoffMillis)
			where.Nest(historic)
		}

		var order clause.OrderBy
		if req.Ascending {
			order.Asc(timeCol)
		} else {
			order.Desc(timeCol)
		}
		order.Asc(record.ColRowID)

		offset := 0
		if hasToken {
			offset = token.offset
		}
		rows, err := tx.Read(ctx, plan.ReadTable{
			Table: d.Table,
			Where: where,
			Order: &order,
			Limit: pageSize + offset + 1,
		})
		if err != nil {
			return err
		}
		if len(rows) <= offset {
			return nil
		}
		rows = rows[offset:]

		hasMore := len(rows) > pageSize
		if hasMore {
			boundary := rows[pageSize]
			boundaryTime := asInt64(boundary[timeCol])
			sameTime := 0
			for i := pageSize - 1; i >= 0 && asInt64(rows[i][timeCol]) == boundaryTime; i-- {
				sameTime++
			}
			if hasToken && token.time == boundaryTime {
				sameTime += token.offset
			}
			nextToken = pageToken{
				ascending: req.Ascending,
				time:      boundaryTime,
				offset:    sameTime,
			}.pack()
			rows = rows[:pageSize]
		}

		records, err = e.decodeRows(ctx, tx, d, rows)
		if err != nil {
			return err
		}

		if opts.RecordAccessLog && !selfRead {
			return addAccessLog(ctx, tx, callerAppID, []int{d.TypeID}, OpRead, now)
		}
		return nil
	})
	if err != nil {
		e.metrics.Operation("read", "error")
		return nil, 0, err
	}
	e.metrics.Operation("read", "ok")
	e.metrics.Rows("read", int64(len(records)))
	return records, nextToken, nil
}

// readByIDRequest resolves the request's explicit ids and delegates to
// the by-ids path.
func (e *Engine) readByIDRequest(ctx context.Context, callerPackage string, req ReadRequest, opts ReadOptions) ([]*record.Record, error) {
	d, err := e.registry.Descriptor(req.RecordType)
	if err != nil {
		return nil, invalidRequest("read", "%v", err)
	}
	ids := make([]uuid.UUID, 0, len(req.UUIDs)+len(req.ClientRecordIDs))
	ids = append(ids, req.UUIDs...)
	for _, clientID := range req.ClientRecordIDs {
		ids = append(ids, identity.Deterministic(callerPackage, clientID, d.UUIDNamespace))
	}
	selfRead := len(req.ClientRecordIDs) > 0 && len(req.UUIDs) == 0
	return e.ReadByIDs(ctx, callerPackage, map[int][]uuid.UUID{req.RecordType: ids}, opts, selfRead)
}

// ReadByIDs reads concrete identities, one query per record type.
// isSelfRead suppresses the access log regardless of the option flag;
// an app reading its own data is never logged.
func (e *Engine) ReadByIDs(ctx context.Context, callerPackage string, byType map[int][]uuid.UUID, opts ReadOptions, isSelfRead bool) ([]*record.Record, error) {
	var out []*record.Record
	now := e.clock.NowMillis()

	err := e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		callerAppID, err := appID(ctx, tx, callerPackage)
		if err != nil {
			return err
		}

		var touched []int
		for _, typeID := range sortedKeys(byType) {
			ids := byType[typeID]
			if len(ids) == 0 {
				continue
			}
			d, err := e.registry.Descriptor(typeID)
			if err != nil {
				return invalidRequest("read", "%v", err)
			}

			literals := make([]string, len(ids))
			for i, id := range ids {
				literals[i] = identity.HexLiteral(id)
			}
			where := clause.NewWhere(clause.And).InLiterals(record.ColUUID, literals)
			if !isSelfRead {
				where.LaterThan(d.TimeColumn(), opts.HistoricCutoffMillis)
			}

			var order clause.OrderBy
			rows, err := tx.Read(ctx, plan.ReadTable{
				Table: d.Table,
				Where: where,
				Order: order.Asc(d.TimeColumn()).Asc(record.ColRowID),
			})
			if err != nil {
				return err
			}
			recs, err := e.decodeRows(ctx, tx, d, rows)
			if err != nil {
				return err
			}
			out = append(out, recs...)
			touched = append(touched, typeID)
		}

		if opts.RecordAccessLog && !isSelfRead {
			return addAccessLog(ctx, tx, callerAppID, touched, OpRead, now)
		}
		return nil
	})
	if err != nil {
		e.metrics.Operation("read", "error")
		return nil, err
	}
	e.metrics.Operation("read", "ok")
	e.metrics.Rows("read", int64(len(out)))
	return out, nil
}

// decodeRows turns raw rows into records, resolves owner package
// names, and merges any auxiliary data the type declares. Zero
// matching extra rows leave the section empty; it is not an error.
func (e *Engine) decodeRows(ctx context.Context, tx *store.Tx, d *record.Descriptor, rows []map[string]any) ([]*record.Record, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]*record.Record, 0, len(rows))
	byUUID := make(map[uuid.UUID]*record.Record, len(rows))
	names := make(map[int64]string)
	for _, row := range rows {
		rec, err := d.Decode(row)
		if err != nil {
			return nil, err
		}
		name, ok := names[rec.AppInfoID]
		if !ok {
			if name, err = packageNameForAppID(ctx, tx, rec.AppInfoID); err != nil {
				return nil, err
			}
			names[rec.AppInfoID] = name
		}
		rec.PackageName = name
		records = append(records, rec)
		byUUID[rec.UUID] = rec
	}

	if d.ExtraReads != nil {
		ids := make([]uuid.UUID, 0, len(records))
		for _, rec := range records {
			ids = append(ids, rec.UUID)
		}
		for _, extra := range d.ExtraReads(ids) {
			extraRows, err := tx.Query(ctx, extra.Query, extra.Args...)
			if err != nil {
				return nil, err
			}
			for _, row := range extraRows {
				if err := extra.Merge(byUUID, row); err != nil {
					return nil, err
				}
			}
		}
	}
	return records, nil
}

func sortedKeys(m map[int][]uuid.UUID) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
