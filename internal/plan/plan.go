// Package plan holds the transient per-table execution plans the
// engines build and the transaction manager executes. Plans are
// single-use values: constructed for one unit of work, rendered to SQL
// once, never persisted and never shared.
package plan

import (
	"strings"

	"github.com/openvital/vitalstore/internal/clause"
)

// ColumnDef is one column of a CreateTable plan: the column name and
// its type plus inline constraints.
type ColumnDef struct {
	Name string
	Def  string
}

// CreateTable declares a table. Rendering is idempotent (IF NOT
// EXISTS) so descriptors can re-apply their tables on every open.
type CreateTable struct {
	Table   string
	Columns []ColumnDef
	// Extra holds table-level constraint clauses appended after the
	// column list.
	Extra []string
}

// SQL renders the CREATE TABLE statement.
func (c CreateTable) SQL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(c.Table)
	b.WriteString(" (")
	for i, col := range c.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col.Name)
		b.WriteString(" ")
		b.WriteString(col.Def)
	}
	for _, extra := range c.Extra {
		b.WriteString(", ")
		b.WriteString(extra)
	}
	b.WriteString(")")
	return b.String()
}

// ReadTable selects rows from one table. When RawSQL is set it
// overrides the structured fields entirely; cascade lookups use this
// for literal sub-selects.
type ReadTable struct {
	Table   string
	Columns []string
	Where   *clause.Where
	Order   *clause.OrderBy
	Limit   int

	RawSQL  string
	RawArgs []any
}

// SQL renders the SELECT statement and its arguments.
func (r ReadTable) SQL() (string, []any) {
	if r.RawSQL != "" {
		return r.RawSQL, r.RawArgs
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if len(r.Columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(r.Columns, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(r.Table)
	if r.Where != nil {
		b.WriteString(r.Where.Render(true))
	}
	b.WriteString(r.Order.Render())
	b.WriteString(clause.Limit(r.Limit))
	return b.String(), nil
}

// Conflict selects insert behavior when a uniqueness constraint fires.
type Conflict int

const (
	// ConflictFail surfaces the constraint violation to the caller.
	// The upsert engine uses this to detect an existing identity and
	// fall back to a targeted update.
	ConflictFail Conflict = iota

	// ConflictIgnore drops the conflicting row silently. Used by the
	// unrestricted insert path so a restore never clobbers
	// concurrently written data.
	ConflictIgnore
)

// UpsertTable writes one row. Values are parameterized and correspond
// positionally to Columns. UpdateWhere scopes the update form of the
// plan to the ownership predicate.
type UpsertTable struct {
	Table       string
	Columns     []string
	Values      []any
	OnConflict  Conflict
	UpdateWhere *clause.Where
}

// InsertSQL renders the INSERT statement.
func (u UpsertTable) InsertSQL() (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT ")
	if u.OnConflict == ConflictIgnore {
		b.WriteString("OR IGNORE ")
	}
	b.WriteString("INTO ")
	b.WriteString(u.Table)
	b.WriteString(" (")
	b.WriteString(strings.Join(u.Columns, ", "))
	b.WriteString(") VALUES (")
	for i := range u.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	b.WriteString(")")
	return b.String(), u.Values
}

// UpdateSQL renders the UPDATE form of the plan using UpdateWhere.
func (u UpsertTable) UpdateSQL() (string, []any) {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(u.Table)
	b.WriteString(" SET ")
	for i, col := range u.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		b.WriteString(" = ?")
	}
	if u.UpdateWhere != nil {
		b.WriteString(u.UpdateWhere.Render(true))
	}
	return b.String(), u.Values
}

// DeleteTable removes rows matching Where. An empty predicate deletes
// every row in the table.
type DeleteTable struct {
	Table string
	Where *clause.Where
}

// SQL renders the DELETE statement.
func (d DeleteTable) SQL() (string, []any) {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(d.Table)
	if d.Where != nil {
		b.WriteString(d.Where.Render(true))
	}
	return b.String(), nil
}
