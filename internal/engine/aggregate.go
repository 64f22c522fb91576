package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/openvital/vitalstore/internal/clause"
	"github.com/openvital/vitalstore/internal/plan"
	"github.com/openvital/vitalstore/internal/prefs"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
)

// AggOp selects the aggregation operator.
type AggOp int

const (
	AggSum AggOp = iota
	AggAvg
	AggMin
	AggMax
	AggCount
)

var aggNames = map[AggOp]string{
	AggSum: "SUM", AggAvg: "AVG", AggMin: "MIN", AggMax: "MAX", AggCount: "COUNT",
}

// AggregateRequest describes one aggregation over a single record
// type.
type AggregateRequest struct {
	RecordType   int
	Operation    AggOp
	TimeRange    TimeRange
	PackageNames []string
}

// AggregateResult carries the aggregated value and the number of
// contributing rows.
type AggregateResult struct {
	Value float64
	Count int64
}

// Aggregate computes an aggregate honoring the historic-access cutoff:
// other apps' rows older than the cutoff are excluded, the caller's
// own rows always contribute. SUM over the priority-weighted
// categories (Activity, Sleep, Wellness) attributes overlapping
// intervals to the highest-priority app; every other operator and
// category aggregates unweighted.
func (e *Engine) Aggregate(ctx context.Context, callerPackage string, req AggregateRequest, opts ReadOptions) (AggregateResult, error) {
	d, err := e.registry.Descriptor(req.RecordType)
	if err != nil {
		e.metrics.Operation("aggregate", "error")
		return AggregateResult{}, invalidRequest("aggregate", "%v", err)
	}
	opName, ok := aggNames[req.Operation]
	if !ok {
		e.metrics.Operation("aggregate", "error")
		return AggregateResult{}, invalidRequest("aggregate", "unknown operator %d", req.Operation)
	}

	var result AggregateResult
	err = e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		callerAppID, err := appID(ctx, tx, callerPackage)
		if err != nil {
			return err
		}

		where := clause.NewWhere(clause.And)
		if len(req.PackageNames) > 0 {
			ids, err := appIDsForPackages(ctx, tx, req.PackageNames)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			where.InLongs(record.ColAppInfoID, ids)
		}
		timeCol := d.TimeColumn()
		where.BetweenTime(timeCol, req.TimeRange.Start, req.TimeRange.End)
		if opts.HistoricCutoffMillis >= 0 {
			where.Nest(clause.NewWhere(clause.Or).
				EqualsInt(record.ColAppInfoID, callerAppID).
				GreaterThanOrEqual(timeCol, opts.HistoricCutoffMillis))
		}

		if req.Operation == AggSum && d.SupportsPriority() && d.Interval {
			result, err = prioritySum(ctx, tx, d, where)
			return err
		}

		expr := aggregateExpr(d, opName)
		rows, err := tx.Query(ctx,
			"SELECT "+expr+" AS value, COUNT(*) AS n FROM "+d.Table+where.Render(true))
		if err != nil {
			return err
		}
		if len(rows) == 1 {
			result.Count = asInt64(rows[0]["n"])
			result.Value = asFloat64(rows[0]["value"])
		}
		return nil
	})
	e.metrics.Operation("aggregate", outcome(err))
	if err != nil {
		return AggregateResult{}, err
	}
	return result, nil
}

// aggregateExpr renders the SQL aggregate. Types without an
// aggregation column aggregate the interval duration itself.
func aggregateExpr(d *record.Descriptor, opName string) string {
	if opName == "COUNT" {
		return "COUNT(*)"
	}
	if d.AggregationColumn != "" {
		return opName + "(" + d.AggregationColumn + ")"
	}
	return opName + "(" + record.ColEndTime + " - " + record.ColStartTime + ")"
}

// prioritySum attributes overlapping intervals by priority: rows from
// apps on the category's priority list are walked highest precedence
// first, and a lower-priority row only contributes the fraction of its
// interval not already covered. Apps absent from the list do not
// contribute.
func prioritySum(ctx context.Context, tx *store.Tx, d *record.Descriptor, where *clause.Where) (AggregateResult, error) {
	order, err := prefs.PriorityOrder(ctx, tx, d.Category)
	if err != nil {
		return AggregateResult{}, err
	}
	if len(order) == 0 {
		return AggregateResult{}, nil
	}

	cols := []string{record.ColAppInfoID, record.ColStartTime, record.ColEndTime}
	if d.AggregationColumn != "" {
		cols = append(cols, d.AggregationColumn)
	}
	rows, err := tx.Read(ctx, plan.ReadTable{
		Table:   d.Table,
		Columns: cols,
		Where:   where,
		Order:   new(clause.OrderBy).Asc(record.ColStartTime).Asc(record.ColRowID),
	})
	if err != nil {
		return AggregateResult{}, err
	}

	byApp := make(map[int64][]map[string]any)
	for _, row := range rows {
		id := asInt64(row[record.ColAppInfoID])
		byApp[id] = append(byApp[id], row)
	}

	var result AggregateResult
	var covered []span
	for _, appID := range order {
		for _, row := range byApp[appID] {
			s := span{
				start: asInt64(row[record.ColStartTime]),
				end:   asInt64(row[record.ColEndTime]),
			}
			free := s.length() - overlap(covered, s)
			if free > 0 {
				if d.AggregationColumn != "" {
					value := asFloat64(row[d.AggregationColumn])
					result.Value += value * float64(free) / float64(s.length())
				} else {
					result.Value += float64(free)
				}
				result.Count++
			}
			covered = addSpan(covered, s)
		}
	}
	return result, nil
}

// span is a half-open [start, end) interval in milliseconds.
type span struct {
	start, end int64
}

func (s span) length() int64 {
	if s.end <= s.start {
		return 0
	}
	return s.end - s.start
}

// overlap returns the total length of s already covered.
func overlap(covered []span, s span) int64 {
	var total int64
	for _, c := range covered {
		lo, hi := max64(c.start, s.start), min64(c.end, s.end)
		if hi > lo {
			total += hi - lo
		}
	}
	return total
}

// addSpan merges s into the covered set, keeping it sorted and
// non-overlapping.
func addSpan(covered []span, s span) []span {
	if s.length() == 0 {
		return covered
	}
	merged := covered[:0:0]
	for _, c := range covered {
		if c.end < s.start || s.end < c.start {
			merged = append(merged, c)
			continue
		}
		s.start = min64(s.start, c.start)
		s.end = max64(s.end, c.end)
	}
	merged = append(merged, s)
	sort.Slice(merged, func(i, j int) bool { return merged[i].start < merged[j].start })
	return merged
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func asFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case nil:
		return 0
	}
	var f float64
	_, _ = fmt.Sscanf(fmt.Sprint(v), "%g", &f)
	return f
}
