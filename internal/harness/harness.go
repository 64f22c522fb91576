package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openvital/vitalstore/internal/engine"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
	"github.com/openvital/vitalstore/internal/testutil"
)

// Event is one transcript entry. Fields beyond Seq and Op are set per
// operation; pointers distinguish "not applicable" from a zero value.
type Event struct {
	Seq     int              `json:"seq"`
	Op      string           `json:"op"`
	App     string           `json:"app,omitempty"`
	Error   string           `json:"error,omitempty"`
	UUIDs   []string         `json:"uuids,omitempty"`
	Deleted *int64           `json:"deleted,omitempty"`
	Records []RecordSnapshot `json:"records,omitempty"`
	Changes []ChangeSnapshot `json:"changes,omitempty"`
	Value   *float64         `json:"value,omitempty"`
	Count   *int64           `json:"count,omitempty"`
}

// RecordSnapshot is the deterministic projection of a read row. Row
// ids and last-modified timestamps stay out so transcripts survive
// storage-level reshuffling.
type RecordSnapshot struct {
	UUID      string         `json:"uuid"`
	Package   string         `json:"package"`
	Time      int64          `json:"time,omitempty"`
	StartTime int64          `json:"start_time,omitempty"`
	EndTime   int64          `json:"end_time,omitempty"`
	Payload   map[string]any `json:"payload"`
}

// ChangeSnapshot is one change stream entry.
type ChangeSnapshot struct {
	Type      string `json:"type"`
	UUID      string `json:"uuid"`
	Operation string `json:"operation"`
}

// Result holds the transcript of one scenario run.
type Result struct {
	Scenario *Scenario
	Events   []Event
}

type harness struct {
	engine   *engine.Engine
	registry *record.Registry
	clock    *testutil.FixedClock
	tokens   map[string]string
}

var aggOps = map[string]engine.AggOp{
	"sum":   engine.AggSum,
	"avg":   engine.AggAvg,
	"min":   engine.AggMin,
	"max":   engine.AggMax,
	"count": engine.AggCount,
}

// Run executes a scenario against a fresh in-memory store and returns
// the transcript. Steps run sequentially; a step outcome that differs
// from its expect_error declaration aborts the run.
func Run(scenario *Scenario) (*Result, error) {
	discard := slog.New(slog.DiscardHandler)
	st, err := store.Open(":memory:", discard)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	reg := record.NewRegistry()
	for _, id := range reg.TypeIDs() {
		d, err := reg.Descriptor(id)
		if err != nil {
			return nil, err
		}
		if err := st.ApplyTables(ctx, d.CreatePlans()); err != nil {
			return nil, fmt.Errorf("apply tables for %s: %w", d.Name, err)
		}
	}

	clock := testutil.NewFixedClock(scenario.Now)
	h := &harness{
		engine: engine.New(st, reg,
			engine.WithClock(clock),
			engine.WithLogger(discard)),
		registry: reg,
		clock:    clock,
		tokens:   make(map[string]string),
	}

	result := &Result{Scenario: scenario}
	for i, step := range scenario.Steps {
		ev, err := h.runStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		result.Events = append(result.Events, ev)
	}
	return result, nil
}

func (h *harness) runStep(ctx context.Context, seq int, st Step) (Event, error) {
	ev := Event{Seq: seq, Op: st.Op, App: st.App}

	switch st.Op {
	case OpInsert, OpUpdate:
		records, err := h.buildRecords(st.Records)
		if err != nil {
			return ev, err
		}
		var ids []uuid.UUID
		var opErr error
		if st.Op == OpUpdate {
			ids, opErr = h.engine.Update(ctx, st.App, records)
		} else {
			ids, opErr = h.engine.Insert(ctx, st.App, records)
		}
		if done, err := h.settle(&ev, st, opErr); done || err != nil {
			return ev, err
		}
		ev.UUIDs = uuidStrings(ids)

	case OpRead:
		d, err := h.registry.ByName(st.Type)
		if err != nil {
			return ev, err
		}
		recs, _, opErr := h.engine.ReadPaged(ctx, st.App, engine.ReadRequest{
			RecordType:   d.TypeID,
			PackageNames: st.Packages,
			TimeRange:    window(st),
			Ascending:    true,
			PageToken:    engine.NoPageToken,
		}, engine.ReadOptions{HistoricCutoffMillis: -1})
		if done, err := h.settle(&ev, st, opErr); done || err != nil {
			return ev, err
		}
		ev.Records = snapshotRecords(recs)

	case OpDelete:
		d, err := h.registry.ByName(st.Type)
		if err != nil {
			return ev, err
		}
		var n int64
		var opErr error
		if len(st.ClientIDs) > 0 {
			filters := make([]engine.IDFilter, len(st.ClientIDs))
			for i, id := range st.ClientIDs {
				filters[i] = engine.IDFilter{RecordType: d.TypeID, ClientRecordID: id}
			}
			n, opErr = h.engine.DeleteByIDs(ctx, st.App, filters, false, false)
		} else {
			n, opErr = h.engine.DeleteByFilter(ctx, st.App, engine.DeleteFilter{
				RecordTypes:  []int{d.TypeID},
				PackageNames: st.Packages,
				TimeRange:    window(st),
			}, false, false)
		}
		if done, err := h.settle(&ev, st, opErr); done || err != nil {
			return ev, err
		}
		ev.Deleted = &n

	case OpToken:
		typeIDs := make([]int, len(st.Types))
		for i, name := range st.Types {
			d, err := h.registry.ByName(name)
			if err != nil {
				return ev, err
			}
			typeIDs[i] = d.TypeID
		}
		token, opErr := h.engine.GetChangeLogToken(ctx, st.App, typeIDs, st.Packages)
		if done, err := h.settle(&ev, st, opErr); done || err != nil {
			return ev, err
		}
		h.tokens[st.As] = token

	case OpChanges:
		token, ok := h.tokens[st.Token]
		if !ok {
			return ev, fmt.Errorf("no saved token named %q", st.Token)
		}
		page, opErr := h.engine.GetChanges(ctx, token, 0)
		if done, err := h.settle(&ev, st, opErr); done || err != nil {
			return ev, err
		}
		changes, err := h.snapshotChanges(page.Changes)
		if err != nil {
			return ev, err
		}
		ev.Changes = changes
		if st.As != "" {
			h.tokens[st.As] = page.NextToken
		}

	case OpAggregate:
		d, err := h.registry.ByName(st.Type)
		if err != nil {
			return ev, err
		}
		op, ok := aggOps[st.Operator]
		if !ok {
			return ev, fmt.Errorf("unknown aggregate operator %q", st.Operator)
		}
		res, opErr := h.engine.Aggregate(ctx, st.App, engine.AggregateRequest{
			RecordType:   d.TypeID,
			Operation:    op,
			TimeRange:    window(st),
			PackageNames: st.Packages,
		}, engine.ReadOptions{HistoricCutoffMillis: -1})
		if done, err := h.settle(&ev, st, opErr); done || err != nil {
			return ev, err
		}
		ev.Value = &res.Value
		ev.Count = &res.Count

	case OpAdvance:
		h.clock.Advance(st.Millis)

	default:
		return ev, fmt.Errorf("unknown op %q", st.Op)
	}

	return ev, nil
}

// settle reconciles a step outcome with its expect_error declaration.
// Returns done=true when the event is final (an anticipated failure).
func (h *harness) settle(ev *Event, st Step, opErr error) (bool, error) {
	if st.ExpectError == "" {
		return false, opErr
	}
	if opErr == nil {
		return false, fmt.Errorf("expected error %s, step succeeded", st.ExpectError)
	}
	code := string(engine.CodeOf(opErr))
	if code != st.ExpectError {
		return false, fmt.Errorf("expected error %s, got %s: %w", st.ExpectError, code, opErr)
	}
	ev.Error = code
	return true, nil
}

func (h *harness) buildRecords(specs []RecordSpec) ([]*record.Record, error) {
	out := make([]*record.Record, len(specs))
	for i, s := range specs {
		d, err := h.registry.ByName(s.Type)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		out[i] = &record.Record{
			Type:           d.TypeID,
			ClientRecordID: s.ClientRecordID,
			Time:           s.Time,
			StartTime:      s.StartTime,
			EndTime:        s.EndTime,
			Payload:        s.Payload,
		}
	}
	return out, nil
}

func (h *harness) snapshotChanges(changes []engine.Change) ([]ChangeSnapshot, error) {
	out := make([]ChangeSnapshot, len(changes))
	for i, c := range changes {
		d, err := h.registry.Descriptor(c.RecordType)
		if err != nil {
			return nil, err
		}
		op := "upsert"
		if c.Operation == engine.OpDelete {
			op = "delete"
		}
		out[i] = ChangeSnapshot{Type: d.Name, UUID: c.UUID.String(), Operation: op}
	}
	return out, nil
}

func snapshotRecords(recs []*record.Record) []RecordSnapshot {
	out := make([]RecordSnapshot, len(recs))
	for i, r := range recs {
		out[i] = RecordSnapshot{
			UUID:      r.UUID.String(),
			Package:   r.PackageName,
			Time:      r.Time,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			Payload:   r.Payload,
		}
	}
	return out
}

func window(st Step) engine.TimeRange {
	tr := engine.TimeRange{Start: -1, End: -1}
	if st.Start != nil {
		tr.Start = *st.Start
	}
	if st.End != nil {
		tr.End = *st.End
	}
	return tr
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
