package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvital/vitalstore/internal/prefs"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
	"github.com/openvital/vitalstore/internal/testutil"
)

func setPriority(t *testing.T, e *Engine, category record.Category, packages ...string) {
	t.Helper()
	err := e.store.RunAsTransaction(context.Background(), func(tx *store.Tx) error {
		ids := make([]int64, len(packages))
		for i, pkg := range packages {
			id, err := getOrCreateAppID(context.Background(), tx, pkg)
			if err != nil {
				return err
			}
			ids[i] = id
		}
		return prefs.SetPriorityOrder(context.Background(), tx, category, ids)
	})
	require.NoError(t, err)
}

func TestAggregateBasicOperators(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Weight(appA, baseTime, 70_000),
		testutil.Weight(appA, baseTime+1000, 72_000),
		testutil.Weight(appA, baseTime+2000, 74_000),
	})
	require.NoError(t, err)

	opts := ReadOptions{HistoricCutoffMillis: -1}
	cases := []struct {
		op    AggOp
		value float64
		count int64
	}{
		{AggSum, 216_000, 3},
		{AggAvg, 72_000, 3},
		{AggMin, 70_000, 3},
		{AggMax, 74_000, 3},
		{AggCount, 3, 3},
	}
	for _, tc := range cases {
		got, err := e.Aggregate(ctx, appA, AggregateRequest{
			RecordType: record.TypeWeight,
			Operation:  tc.op,
			TimeRange:  UnboundedRange(),
		}, opts)
		require.NoError(t, err)
		assert.InDelta(t, tc.value, got.Value, 1e-9, "operator %s", aggNames[tc.op])
		assert.Equal(t, tc.count, got.Count)
	}
}

func TestAggregateTimeRangeAndCutoff(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	old := baseTime - 100_000
	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Weight(appA, old, 60_000),
	})
	require.NoError(t, err)
	_, err = e.Insert(ctx, appB, []*record.Record{
		testutil.Weight(appB, old, 80_000),
		testutil.Weight(appB, baseTime+1000, 90_000),
	})
	require.NoError(t, err)

	got, err := e.Aggregate(ctx, appA, AggregateRequest{
		RecordType: record.TypeWeight,
		Operation:  AggSum,
		TimeRange:  UnboundedRange(),
	}, ReadOptions{HistoricCutoffMillis: baseTime})
	require.NoError(t, err)
	assert.InDelta(t, 150_000, got.Value, 1e-9, "own old row counts, the other app's old row does not")
	assert.Equal(t, int64(2), got.Count)

	got, err = e.Aggregate(ctx, appA, AggregateRequest{
		RecordType: record.TypeWeight,
		Operation:  AggSum,
		TimeRange:  TimeRange{Start: baseTime, End: baseTime + 10_000},
	}, ReadOptions{HistoricCutoffMillis: -1})
	require.NoError(t, err)
	assert.InDelta(t, 90_000, got.Value, 1e-9)
}

func TestAggregateUnknownPackageFilter(t *testing.T) {
	e, _ := newTestEngine(t)
	got, err := e.Aggregate(context.Background(), appA, AggregateRequest{
		RecordType:   record.TypeWeight,
		Operation:    AggSum,
		TimeRange:    UnboundedRange(),
		PackageNames: []string{"com.example.never-seen"},
	}, ReadOptions{HistoricCutoffMillis: -1})
	require.NoError(t, err)
	assert.Zero(t, got.Value)
	assert.Zero(t, got.Count)
}

func TestAggregatePrioritySum(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// A covers [0, 60s) with 600 steps; B overlaps [30s, 90s) with 600.
	// With A above B, B only contributes its uncovered half.
	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+60_000, 600),
	})
	require.NoError(t, err)
	_, err = e.Insert(ctx, appB, []*record.Record{
		testutil.Steps(appB, baseTime+30_000, baseTime+90_000, 600),
	})
	require.NoError(t, err)

	setPriority(t, e, record.CategoryActivity, appA, appB)

	got, err := e.Aggregate(ctx, appA, AggregateRequest{
		RecordType: record.TypeSteps,
		Operation:  AggSum,
		TimeRange:  UnboundedRange(),
	}, ReadOptions{HistoricCutoffMillis: -1})
	require.NoError(t, err)
	assert.InDelta(t, 900, got.Value, 1e-9)
	assert.Equal(t, int64(2), got.Count)

	// Apps off the priority list do not contribute at all.
	setPriority(t, e, record.CategoryActivity, appB)
	got, err = e.Aggregate(ctx, appA, AggregateRequest{
		RecordType: record.TypeSteps,
		Operation:  AggSum,
		TimeRange:  UnboundedRange(),
	}, ReadOptions{HistoricCutoffMillis: -1})
	require.NoError(t, err)
	assert.InDelta(t, 600, got.Value, 1e-9)
	assert.Equal(t, int64(1), got.Count)
}

func TestAggregatePriorityEmptyListYieldsNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+60_000, 600),
	})
	require.NoError(t, err)

	got, err := e.Aggregate(ctx, appA, AggregateRequest{
		RecordType: record.TypeSteps,
		Operation:  AggSum,
		TimeRange:  UnboundedRange(),
	}, ReadOptions{HistoricCutoffMillis: -1})
	require.NoError(t, err)
	assert.Zero(t, got.Value)
	assert.Zero(t, got.Count)
}

func TestAggregateSleepDuration(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	sleep := &record.Record{
		Type:        record.TypeSleepSession,
		PackageName: appA,
		StartTime:   baseTime,
		EndTime:     baseTime + 8*3600_000,
		Payload:     map[string]any{"title": "night"},
	}
	_, err := e.Insert(ctx, appA, []*record.Record{sleep})
	require.NoError(t, err)
	setPriority(t, e, record.CategorySleep, appA)

	got, err := e.Aggregate(ctx, appA, AggregateRequest{
		RecordType: record.TypeSleepSession,
		Operation:  AggSum,
		TimeRange:  UnboundedRange(),
	}, ReadOptions{HistoricCutoffMillis: -1})
	require.NoError(t, err)
	assert.InDelta(t, float64(8*3600_000), got.Value, 1e-9, "types without a numeric column aggregate duration")
}

func TestAggregateRejectsUnknownType(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Aggregate(context.Background(), appA, AggregateRequest{
		RecordType: 999,
		Operation:  AggSum,
		TimeRange:  UnboundedRange(),
	}, ReadOptions{HistoricCutoffMillis: -1})
	assert.True(t, IsInvalidRequest(err))
}

func TestAutoDeleteRetention(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
	})
	require.NoError(t, err)

	token, err := e.GetChangeLogToken(ctx, appB, []int{record.TypeSteps}, nil)
	require.NoError(t, err)

	err = e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		return prefs.SetRetentionDays(ctx, tx, 30)
	})
	require.NoError(t, err)

	// Within the retention window nothing happens.
	n, err := e.AutoDelete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, readAll(t, e, appA, record.TypeSteps), 1)

	// Once the record ages past the window it is deleted with a
	// change-log entry, so sync consumers observe the expiry.
	clock.Advance(31 * millisPerDay)
	n, err = e.AutoDelete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Empty(t, readAll(t, e, appA, record.TypeSteps))

	page, err := e.GetChanges(ctx, token, 100)
	require.NoError(t, err)
	require.Len(t, page.Changes, 1)
	assert.Equal(t, OpDelete, page.Changes[0].Operation)
}

func TestAutoDeleteDisabledByDefault(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
	})
	require.NoError(t, err)

	clock.Advance(365 * millisPerDay)
	n, err := e.AutoDelete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, readAll(t, e, appA, record.TypeSteps), 1)
}

func TestAutoDeleteTrimsLogs(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
	})
	require.NoError(t, err)

	clock.Advance(40 * millisPerDay)
	_, err = e.AutoDelete(ctx)
	require.NoError(t, err)

	err = e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		n, err := tx.Count(ctx, changeLogsTable, nil)
		if err != nil {
			return err
		}
		assert.Zero(t, n, "change logs older than the log window are trimmed")

		n, err = tx.Count(ctx, accessLogsTable, nil)
		if err != nil {
			return err
		}
		assert.Zero(t, n, "stale access logs are trimmed")
		return nil
	})
	require.NoError(t, err)
}
