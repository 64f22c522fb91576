// Package clause builds SQL predicate and ordering fragments for the
// per-table plans.
//
// A Where accumulates clause strings under a single logical operator.
// Several of the add methods deliberately degrade to a no-op when their
// column or value set is missing; callers rely on this to pass
// unfiltered requests straight through without branching. The
// degradation rules are part of the contract, per method, and are
// asymmetric on purpose: bare numeric comparisons always add a clause.
package clause

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator joins the accumulated clauses of one Where.
type Operator string

const (
	And Operator = " AND "
	Or  Operator = " OR "
)

// Where is a mutable, fluent predicate builder. One builder per logical
// query; never shared across goroutines.
type Where struct {
	op      Operator
	clauses []string
}

// NewWhere returns an empty builder joining its clauses with op.
func NewWhere(op Operator) *Where {
	return &Where{op: op}
}

// Empty reports whether no clause has been added.
func (w *Where) Empty() bool {
	return len(w.clauses) == 0
}

// Equals adds `col = 'val'`. No-op when col or val is empty.
func (w *Where) Equals(col, val string) *Where {
	if col == "" || val == "" {
		return w
	}
	w.clauses = append(w.clauses, col+" = "+quote(val))
	return w
}

// EqualsInt adds `col = v`.
func (w *Where) EqualsInt(col string, v int64) *Where {
	w.clauses = append(w.clauses, col+" = "+strconv.FormatInt(v, 10))
	return w
}

// In adds `col IN ('a', 'b', ...)`. No-op when values is empty.
func (w *Where) In(col string, values []string) *Where {
	if len(values) == 0 {
		return w
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	w.clauses = append(w.clauses, col+" IN ("+strings.Join(quoted, ", ")+")")
	return w
}

// InLiterals adds `col IN (a, b, ...)` with the values pasted verbatim,
// for pre-rendered literals such as x'..' blobs. No-op when empty.
func (w *Where) InLiterals(col string, values []string) *Where {
	if len(values) == 0 {
		return w
	}
	w.clauses = append(w.clauses, col+" IN ("+strings.Join(values, ", ")+")")
	return w
}

// InLongs adds `col IN (1, 2, ...)`, de-duplicating the values while
// preserving first-seen order. No-op when values is empty.
func (w *Where) InLongs(col string, values []int64) *Where {
	if len(values) == 0 {
		return w
	}
	seen := make(map[int64]struct{}, len(values))
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		parts = append(parts, strconv.FormatInt(v, 10))
	}
	w.clauses = append(w.clauses, col+" IN ("+strings.Join(parts, ", ")+")")
	return w
}

// GreaterThan adds `col > v`. Always adds.
func (w *Where) GreaterThan(col string, v int64) *Where {
	w.clauses = append(w.clauses, col+" > "+strconv.FormatInt(v, 10))
	return w
}

// GreaterThanOrEqual adds `col >= v`. Always adds.
func (w *Where) GreaterThanOrEqual(col string, v int64) *Where {
	w.clauses = append(w.clauses, col+" >= "+strconv.FormatInt(v, 10))
	return w
}

// LessThan adds `col < v`. Always adds.
func (w *Where) LessThan(col string, v int64) *Where {
	w.clauses = append(w.clauses, col+" < "+strconv.FormatInt(v, 10))
	return w
}

// LessThanOrEqual adds `col <= v`. Always adds.
func (w *Where) LessThanOrEqual(col string, v int64) *Where {
	w.clauses = append(w.clauses, col+" <= "+strconv.FormatInt(v, 10))
	return w
}

// LaterThan adds `col > start`. No-op when start is negative or col is
// empty; a negative start means "unconstrained since the beginning".
func (w *Where) LaterThan(col string, start int64) *Where {
	if start < 0 || col == "" {
		return w
	}
	return w.GreaterThan(col, start)
}

// Between adds `col BETWEEN a AND b`. Always adds.
func (w *Where) Between(col string, a, b int64) *Where {
	w.clauses = append(w.clauses,
		fmt.Sprintf("%s BETWEEN %d AND %d", col, a, b))
	return w
}

// BetweenTime adds the time-range clause used throughout read-time
// filtering:
//
//   - end < 0 or end < start: open-ended range, degrades to
//     LaterThan(col, start)
//   - start < 0 too: fully unconstrained, no clause at all
//   - otherwise: `col BETWEEN start AND end`
func (w *Where) BetweenTime(col string, start, end int64) *Where {
	if end < 0 || end < start {
		return w.LaterThan(col, start)
	}
	return w.Between(col, start, end)
}

// IsNull adds `col IS NULL`.
func (w *Where) IsNull(col string) *Where {
	w.clauses = append(w.clauses, col+" IS NULL")
	return w
}

// Nest folds other builders into this one. An empty builder is skipped.
// When the nested builder shares this builder's operator its clauses
// are merged directly; otherwise its rendered form is wrapped in
// parentheses and added as one clause, so AND-groups and OR-groups
// compose without operator-precedence surprises.
func (w *Where) Nest(others ...*Where) *Where {
	for _, o := range others {
		if o == nil || o.Empty() {
			continue
		}
		if o.op == w.op {
			w.clauses = append(w.clauses, o.clauses...)
			continue
		}
		w.clauses = append(w.clauses, "("+o.join()+")")
	}
	return w
}

// Render returns the predicate text: the empty string when no clause
// was added, otherwise the joined clauses, prefixed with " WHERE " when
// withKeyword is set.
func (w *Where) Render(withKeyword bool) string {
	if w.Empty() {
		return ""
	}
	if withKeyword {
		return " WHERE " + w.join()
	}
	return w.join()
}

func (w *Where) join() string {
	return strings.Join(w.clauses, string(w.op))
}

// quote renders a single-quoted SQL string literal, doubling any
// embedded quotes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
