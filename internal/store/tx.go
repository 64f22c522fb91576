package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/plan"
)

// Tx is one unit of work. The primitives are not separately
// transactional; the enclosing RunAsTransaction call is the only
// atomicity boundary.
type Tx struct {
	tx *sql.Tx
}

// RunAsTransaction executes fn atomically: every read, write and log
// append inside it becomes visible together on commit, or not at all.
// Any error from fn rolls the transaction back and propagates to the
// caller unchanged.
func (s *Store) RunAsTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunWithoutTransaction executes a best-effort side read or write
// outside any transaction. Errors are logged and swallowed; this path
// must never fail a primary operation.
func (s *Store) RunWithoutTransaction(ctx context.Context, fn func(db *sql.DB) error) {
	if err := fn(s.db); err != nil {
		s.log.Warn("best-effort operation failed", "error", err)
	}
}

// Insert executes the insert form of an upsert plan and returns the
// new row id. A unique-constraint failure surfaces as an error when
// the plan uses ConflictFail; with ConflictIgnore the row is silently
// dropped and the returned id is 0.
func (t *Tx) Insert(ctx context.Context, p plan.UpsertTable) (int64, error) {
	query, args := p.InsertSQL()
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", p.Table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", p.Table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return 0, nil
	}
	return id, nil
}

// Update executes the update form of an upsert plan and returns the
// number of rows changed.
func (t *Tx) Update(ctx context.Context, p plan.UpsertTable) (int64, error) {
	query, args := p.UpdateSQL()
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", p.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", p.Table, err)
	}
	return n, nil
}

// Delete executes a delete plan and returns the number of rows
// removed.
func (t *Tx) Delete(ctx context.Context, p plan.DeleteTable) (int64, error) {
	query, args := p.SQL()
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", p.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", p.Table, err)
	}
	return n, nil
}

// Read executes a read plan and returns every row as a column map.
// The result set is fully materialized; pagination bounds it upstream.
func (t *Tx) Read(ctx context.Context, p plan.ReadTable) ([]map[string]any, error) {
	query, args := p.SQL()
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.Table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Query runs a raw query inside the transaction and returns the rows
// as column maps.
func (t *Tx) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Exec runs a raw statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// Count returns the number of rows in table matching where.
func (t *Tx) Count(ctx context.Context, table string, where *clause.Where) (int64, error) {
	query := "SELECT COUNT(*) FROM " + table
	if where != nil {
		query += where.Render(true)
	}
	var n int64
	if err := t.tx.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// scanRows drains a result set into column maps, normalizing each
// value to the driver's canonical Go type. The rows handle is closed
// by the caller's defer even when a scan fails mid-stream.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan rows: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	return out, nil
}
