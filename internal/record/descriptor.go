package record

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/openvital/vitalstore/internal/identity"
	"github.com/openvital/vitalstore/internal/plan"
)

// CascadeRead is a lookup the engines run to discover records
// indirectly affected by an upsert or delete. The query must yield
// rows of (uuid BLOB, app_info_id INTEGER); each row becomes an UPSERT
// change-log entry for RecordType.
type CascadeRead struct {
	RecordType int
	Query      string
	Args       []any
}

// ExtraRead is an auxiliary-data query run after a read. Merge is
// called once per result row with the row decoded into a column map
// and the page's records keyed by uuid; zero matching rows is not an
// error, the section simply stays empty.
type ExtraRead struct {
	Query string
	Args  []any
	Merge func(byUUID map[uuid.UUID]*Record, row map[string]any) error
}

// Descriptor is the per-type strategy the engines consult. Stateless
// and read-only after registry construction; freely shared across
// concurrent callers.
type Descriptor struct {
	TypeID int
	Name   string
	Table  string

	// UUIDNamespace feeds identity derivation. Distinct from TypeID so
	// stored identities survive internal renumbering.
	UUIDNamespace int32

	Category Category

	// Interval selects the [start,end] time shape; false means a
	// single instant.
	Interval bool

	// DedupeExempt marks types whose same-timestamp duplicates are
	// semantically valid (bulk nutrition entries); they never produce
	// a dedupe fingerprint.
	DedupeExempt bool

	// Derived marks types whose values are computed from other stored
	// types; direct caller writes to them are rejected.
	Derived bool

	// AggregationColumn is the payload column SUM/AVG/MIN/MAX apply
	// to. Empty means duration aggregation over the interval itself.
	AggregationColumn string

	Payload []Column

	// ChildTables are auxiliary tables owned by this type (for example
	// route points), created alongside the record table.
	ChildTables []plan.CreateTable

	// ModifiedByUpsert returns cascade lookups for records causally
	// affected by upserting r. callerAppID is the actor recorded for
	// the cascade, not the owner of the affected rows.
	ModifiedByUpsert func(r *Record, callerAppID int64) []CascadeRead

	// ModifiedByDelete returns cascade lookups for records affected by
	// deleting the record with the given identity.
	ModifiedByDelete func(id uuid.UUID) []CascadeRead

	// ExtraReads returns auxiliary-data queries for a page of read
	// results.
	ExtraReads func(ids []uuid.UUID) []ExtraRead

	// ChildCleanup returns delete statements removing auxiliary rows
	// owned by the given records, run when the records are deleted.
	ChildCleanup func(ids []uuid.UUID) []string
}

// TimeColumn is the column ordering and time filters apply to.
func (d *Descriptor) TimeColumn() string {
	if d.Interval {
		return ColStartTime
	}
	return ColTime
}

// CreatePlans returns the CREATE TABLE plans for this type: the record
// table with the common column set plus payload, and any child tables.
func (d *Descriptor) CreatePlans() []plan.CreateTable {
	cols := []plan.ColumnDef{
		{Name: ColRowID, Def: "INTEGER PRIMARY KEY AUTOINCREMENT"},
		{Name: ColUUID, Def: "BLOB NOT NULL UNIQUE"},
		{Name: ColLastModifiedTime, Def: "INTEGER NOT NULL"},
		{Name: ColClientRecordID, Def: "TEXT"},
		{Name: ColClientRecordVersion, Def: "INTEGER NOT NULL DEFAULT 0"},
		{Name: ColAppInfoID, Def: "INTEGER NOT NULL"},
		{Name: ColDeviceInfoID, Def: "INTEGER NOT NULL"},
		{Name: ColRecordingMethod, Def: "INTEGER NOT NULL DEFAULT 0"},
		{Name: ColDedupeHash, Def: "BLOB UNIQUE"},
	}
	if d.Interval {
		cols = append(cols,
			plan.ColumnDef{Name: ColStartTime, Def: "INTEGER NOT NULL"},
			plan.ColumnDef{Name: ColStartZoneOffset, Def: "INTEGER NOT NULL DEFAULT 0"},
			plan.ColumnDef{Name: ColEndTime, Def: "INTEGER NOT NULL"},
			plan.ColumnDef{Name: ColEndZoneOffset, Def: "INTEGER NOT NULL DEFAULT 0"},
		)
	} else {
		cols = append(cols,
			plan.ColumnDef{Name: ColTime, Def: "INTEGER NOT NULL"},
			plan.ColumnDef{Name: ColZoneOffset, Def: "INTEGER NOT NULL DEFAULT 0"},
		)
	}
	for _, c := range d.Payload {
		cols = append(cols, plan.ColumnDef{Name: c.Name, Def: c.sqlDef()})
	}

	plans := []plan.CreateTable{{Table: d.Table, Columns: cols}}
	plans = append(plans, d.ChildTables...)
	return plans
}

func (c Column) sqlDef() string {
	var typ string
	switch c.Kind {
	case ColInteger:
		typ = "INTEGER"
	case ColReal:
		typ = "REAL"
	case ColText:
		typ = "TEXT"
	case ColBlob:
		typ = "BLOB"
	}
	if c.NotNull {
		typ += " NOT NULL"
	}
	return typ
}

// Fingerprint computes the dedupe fingerprint for r, or nil when the
// type is exempt or the record carries a client id (client-id identity
// already dedupes).
func (d *Descriptor) Fingerprint(r *Record) []byte {
	if d.DedupeExempt || r.ClientRecordID != "" {
		return nil
	}
	if d.Interval {
		return identity.IntervalFingerprint(r.AppInfoID, r.DeviceInfoID, r.StartTime, r.EndTime)
	}
	return identity.InstantFingerprint(r.AppInfoID, r.DeviceInfoID, r.Time)
}

// ContentValues returns the ordered column list and values for writing
// r. The uuid is stored in its 16-byte form; an empty client record id
// and a missing fingerprint are stored as NULL.
func (d *Descriptor) ContentValues(r *Record) ([]string, []any, error) {
	cols := []string{
		ColUUID, ColLastModifiedTime, ColClientRecordID, ColClientRecordVersion,
		ColAppInfoID, ColDeviceInfoID, ColRecordingMethod, ColDedupeHash,
	}
	vals := []any{
		identity.EncodeUUID(r.UUID),
		r.LastModifiedTime,
		nullableString(r.ClientRecordID),
		r.ClientRecordVersion,
		r.AppInfoID,
		r.DeviceInfoID,
		r.RecordingMethod,
		nullableBlob(d.Fingerprint(r)),
	}
	if d.Interval {
		cols = append(cols, ColStartTime, ColStartZoneOffset, ColEndTime, ColEndZoneOffset)
		vals = append(vals, r.StartTime, r.StartZoneOffset, r.EndTime, r.EndZoneOffset)
	} else {
		cols = append(cols, ColTime, ColZoneOffset)
		vals = append(vals, r.Time, r.ZoneOffset)
	}
	for _, c := range d.Payload {
		v, ok := r.Payload[c.Name]
		if !ok || v == nil {
			if c.NotNull {
				return nil, nil, fmt.Errorf("record type %s: missing required field %q", d.Name, c.Name)
			}
			cols = append(cols, c.Name)
			vals = append(vals, nil)
			continue
		}
		coerced, err := c.coerce(v)
		if err != nil {
			return nil, nil, fmt.Errorf("record type %s: field %q: %w", d.Name, c.Name, err)
		}
		cols = append(cols, c.Name)
		vals = append(vals, coerced)
	}
	return cols, vals, nil
}

func (c Column) coerce(v any) (any, error) {
	switch c.Kind {
	case ColInteger:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case float64:
			return int64(n), nil
		}
	case ColReal:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case ColText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ColBlob:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case uuid.UUID:
			return identity.EncodeUUID(b), nil
		}
	}
	return nil, fmt.Errorf("value %T does not fit column kind %d", v, c.Kind)
}

// Decode turns a scanned column map back into a Record. Unknown
// columns are ignored; absent payload columns stay out of the map.
func (d *Descriptor) Decode(row map[string]any) (*Record, error) {
	r := &Record{
		Type:    d.TypeID,
		Payload: make(map[string]any, len(d.Payload)),
	}

	if b, ok := row[ColUUID].([]byte); ok {
		u, err := identity.DecodeUUID(b)
		if err != nil {
			return nil, fmt.Errorf("decode %s row: %w", d.Name, err)
		}
		r.UUID = u
	}
	r.RowID = intOf(row[ColRowID])
	r.LastModifiedTime = intOf(row[ColLastModifiedTime])
	r.ClientRecordID = stringOf(row[ColClientRecordID])
	r.ClientRecordVersion = intOf(row[ColClientRecordVersion])
	r.AppInfoID = intOf(row[ColAppInfoID])
	r.DeviceInfoID = intOf(row[ColDeviceInfoID])
	r.RecordingMethod = intOf(row[ColRecordingMethod])
	if d.Interval {
		r.StartTime = intOf(row[ColStartTime])
		r.StartZoneOffset = intOf(row[ColStartZoneOffset])
		r.EndTime = intOf(row[ColEndTime])
		r.EndZoneOffset = intOf(row[ColEndZoneOffset])
	} else {
		r.Time = intOf(row[ColTime])
		r.ZoneOffset = intOf(row[ColZoneOffset])
	}

	for _, c := range d.Payload {
		v, ok := row[c.Name]
		if !ok || v == nil {
			continue
		}
		r.Payload[c.Name] = v
	}
	return r, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func intOf(v any) int64 {
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

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return ""
}
