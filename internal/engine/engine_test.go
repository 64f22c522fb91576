package engine

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvital/vitalstore/internal/identity"
	"github.com/openvital/vitalstore/internal/record"
	"github.com/openvital/vitalstore/internal/store"
	"github.com/openvital/vitalstore/internal/testutil"
)

const (
	appA = "com.example.tracker"
	appB = "com.example.scale"

	baseTime = int64(1_700_000_000_000)
)

func newTestEngine(t *testing.T) (*Engine, *testutil.FixedClock) {
	t.Helper()
	reg := record.NewRegistry()
	s := testutil.OpenStore(t, reg)
	clock := testutil.NewFixedClock(baseTime)
	e := New(s, reg,
		WithClock(clock),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
	return e, clock
}

// readAll fetches every record of one type visible without any cutoff.
func readAll(t *testing.T, e *Engine, caller string, recordType int) []*record.Record {
	t.Helper()
	recs, _, err := e.ReadPaged(context.Background(), caller, ReadRequest{
		RecordType: recordType,
		TimeRange:  UnboundedRange(),
		Ascending:  true,
		PageToken:  NoPageToken,
	}, ReadOptions{HistoricCutoffMillis: -1})
	require.NoError(t, err)
	return recs
}

func TestInsertClientIDConverges(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first := testutil.Steps(appA, baseTime, baseTime+1000, 100)
	first.ClientRecordID = "morning-walk"
	ids1, err := e.Insert(ctx, appA, []*record.Record{first})
	require.NoError(t, err)
	require.Len(t, ids1, 1)

	second := testutil.Steps(appA, baseTime, baseTime+1000, 250)
	second.ClientRecordID = "morning-walk"
	ids2, err := e.Insert(ctx, appA, []*record.Record{second})
	require.NoError(t, err)

	assert.Equal(t, ids1[0], ids2[0], "same client record id must map to the same identity")
	assert.Equal(t, identity.Deterministic(appA, "morning-walk", 101), ids1[0])

	recs := readAll(t, e, appA, record.TypeSteps)
	require.Len(t, recs, 1, "second insert replaces, never duplicates")
	assert.Equal(t, int64(250), recs[0].Payload["count"])
}

func TestInsertRandomIdentitiesAreDistinct(t *testing.T) {
	e, _ := newTestEngine(t)
	ids, err := e.Insert(context.Background(), appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
		testutil.Steps(appA, baseTime+2000, baseTime+3000, 20),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, uuid.Nil, ids[0])
}

func TestInsertForcesCallerPackage(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := testutil.Steps("com.example.spoofed", baseTime, baseTime+1000, 10)
	_, err := e.Insert(context.Background(), appA, []*record.Record{rec})
	require.NoError(t, err)

	recs := readAll(t, e, appA, record.TypeSteps)
	require.Len(t, recs, 1)
	assert.Equal(t, appA, recs[0].PackageName)
}

func TestBatchDuplicateCollapses(t *testing.T) {
	e, _ := newTestEngine(t)
	ids, err := e.Insert(context.Background(), appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, ids[0], ids[1], "in-batch duplicate resolves to the first record's identity")

	recs := readAll(t, e, appA, record.TypeSteps)
	assert.Len(t, recs, 1)
}

func TestDedupeExemptTypeKeepsDuplicates(t *testing.T) {
	e, _ := newTestEngine(t)
	ids, err := e.Insert(context.Background(), appA, []*record.Record{
		testutil.Hydration(appA, baseTime, baseTime+1000, 0.5),
		testutil.Hydration(appA, baseTime, baseTime+1000, 0.5),
	})
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], ids[1])

	recs := readAll(t, e, appA, record.TypeHydration)
	assert.Len(t, recs, 2)
}

func TestCrossCallDuplicateReplaced(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
	})
	require.NoError(t, err)

	second, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 99),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first[0], second[0], "cross-call duplicate gets a fresh identity")

	recs := readAll(t, e, appA, record.TypeSteps)
	require.Len(t, recs, 1, "later duplicate replaces the earlier row")
	assert.Equal(t, second[0], recs[0].UUID)
	assert.Equal(t, int64(99), recs[0].Payload["count"])
}

func TestInsertRejectsDerivedType(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := &record.Record{
		Type:        record.TypeTotalCaloriesBurned,
		PackageName: appA,
		StartTime:   baseTime,
		EndTime:     baseTime + 1000,
		Payload:     map[string]any{"energy_kcal": 120.5},
	}
	_, err := e.Insert(context.Background(), appA, []*record.Record{rec})
	assert.True(t, IsInvalidRequest(err))
}

func TestInsertRejectsEmptyBatch(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Insert(context.Background(), appA, nil)
	assert.True(t, IsInvalidRequest(err))
}

func TestUpdateScopedToOwner(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	ids, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Weight(appA, baseTime, 70_000),
	})
	require.NoError(t, err)

	// The owner updates in place.
	upd := testutil.Weight(appA, baseTime, 71_000)
	upd.UUID = ids[0]
	got, err := e.Update(ctx, appA, []*record.Record{upd})
	require.NoError(t, err)
	assert.Equal(t, ids[0], got[0])

	recs := readAll(t, e, appA, record.TypeWeight)
	require.Len(t, recs, 1)
	assert.Equal(t, 71_000.0, recs[0].Payload["weight_grams"])

	// Another app cannot move the row.
	foreign := testutil.Weight(appB, baseTime, 1)
	foreign.UUID = ids[0]
	_, err = e.Update(ctx, appB, []*record.Record{foreign})
	assert.True(t, IsInvalidRequest(err))

	recs = readAll(t, e, appA, record.TypeWeight)
	require.Len(t, recs, 1)
	assert.Equal(t, 71_000.0, recs[0].Payload["weight_grams"], "failed update leaves the row untouched")
}

func TestUpdateNeedsIdentity(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Update(context.Background(), appA, []*record.Record{
		testutil.Weight(appA, baseTime, 70_000),
	})
	assert.True(t, IsInvalidRequest(err))
}

func TestDeleteByIDsOwnershipIsAtomic(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mine, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
	})
	require.NoError(t, err)
	theirs, err := e.Insert(ctx, appB, []*record.Record{
		testutil.Steps(appB, baseTime+2000, baseTime+3000, 20),
	})
	require.NoError(t, err)

	_, err = e.DeleteByIDs(ctx, appA, []IDFilter{
		{RecordType: record.TypeSteps, UUID: mine[0]},
		{RecordType: record.TypeSteps, UUID: theirs[0]},
	}, false, false)
	assert.True(t, IsOwnershipViolation(err))

	recs := readAll(t, e, appA, record.TypeSteps)
	assert.Len(t, recs, 2, "failed delete must leave every row in place, the caller's own included")
}

func TestDeleteByIDsElevated(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mine, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
	})
	require.NoError(t, err)
	theirs, err := e.Insert(ctx, appB, []*record.Record{
		testutil.Steps(appB, baseTime+2000, baseTime+3000, 20),
	})
	require.NoError(t, err)

	n, err := e.DeleteByIDs(ctx, appA, []IDFilter{
		{RecordType: record.TypeSteps, UUID: mine[0]},
		{RecordType: record.TypeSteps, UUID: theirs[0]},
	}, true, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Empty(t, readAll(t, e, appA, record.TypeSteps))
}

func TestDeleteByClientRecordID(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	rec := testutil.Steps(appA, baseTime, baseTime+1000, 10)
	rec.ClientRecordID = "run-1"
	_, err := e.Insert(ctx, appA, []*record.Record{rec})
	require.NoError(t, err)

	n, err := e.DeleteByIDs(ctx, appA, []IDFilter{
		{RecordType: record.TypeSteps, ClientRecordID: "run-1"},
	}, false, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteByIDsRejectsAmbiguousFilter(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.DeleteByIDs(context.Background(), appA, []IDFilter{
		{RecordType: record.TypeSteps, UUID: identity.Random(), ClientRecordID: "both"},
	}, false, false)
	assert.True(t, IsInvalidRequest(err))
}

func TestDeleteByFilterPinsToCaller(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
	})
	require.NoError(t, err)
	_, err = e.Insert(ctx, appB, []*record.Record{
		testutil.Steps(appB, baseTime+2000, baseTime+3000, 20),
	})
	require.NoError(t, err)

	n, err := e.DeleteByFilter(ctx, appB, DeleteFilter{TimeRange: UnboundedRange()}, false, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs := readAll(t, e, appA, record.TypeSteps)
	require.Len(t, recs, 1)
	assert.Equal(t, appA, recs[0].PackageName)
}

func TestDeleteByFilterUnknownPackageMatchesNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	n, err := e.DeleteByFilter(context.Background(), appA, DeleteFilter{
		PackageNames: []string{"com.example.never-seen"},
		TimeRange:    UnboundedRange(),
	}, true, false)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadPagination(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	recs := make([]*record.Record, 5)
	for i := range recs {
		start := baseTime + int64(i)*60_000
		recs[i] = testutil.Steps(appA, start, start+30_000, int64(10*(i+1)))
	}
	_, err := e.Insert(ctx, appA, recs)
	require.NoError(t, err)

	var seen []uuid.UUID
	token := int64(NoPageToken)
	opts := ReadOptions{HistoricCutoffMillis: -1}
	for page := 0; page < 3; page++ {
		got, next, err := e.ReadPaged(ctx, appA, ReadRequest{
			RecordType: record.TypeSteps,
			TimeRange:  UnboundedRange(),
			Ascending:  true,
			PageSize:   2,
			PageToken:  token,
		}, opts)
		require.NoError(t, err)
		for _, r := range got {
			seen = append(seen, r.UUID)
		}
		if page < 2 {
			require.Len(t, got, 2)
			require.NotEqual(t, token, next)
		} else {
			require.Len(t, got, 1)
			assert.Equal(t, token, next, "exhausted stream echoes the caller's token")
		}
		token = next
	}

	distinct := make(map[uuid.UUID]struct{})
	for _, id := range seen {
		distinct[id] = struct{}{}
	}
	assert.Len(t, distinct, 5, "pages overlap-free and complete")

	// Replaying the final token is stable.
	again, next, err := e.ReadPaged(ctx, appA, ReadRequest{
		RecordType: record.TypeSteps,
		TimeRange:  UnboundedRange(),
		Ascending:  true,
		PageSize:   2,
		PageToken:  token,
	}, opts)
	require.NoError(t, err)
	assert.Len(t, again, 1)
	assert.Equal(t, token, next)
}

func TestReadPaginationSameTimestamp(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	recs := make([]*record.Record, 3)
	for i := range recs {
		recs[i] = testutil.Hydration(appA, baseTime, baseTime+1000, float64(i+1))
	}
	_, err := e.Insert(ctx, appA, recs)
	require.NoError(t, err)

	opts := ReadOptions{HistoricCutoffMillis: -1}
	first, next, err := e.ReadPaged(ctx, appA, ReadRequest{
		RecordType: record.TypeHydration,
		TimeRange:  UnboundedRange(),
		Ascending:  true,
		PageSize:   2,
		PageToken:  NoPageToken,
	}, opts)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, _, err := e.ReadPaged(ctx, appA, ReadRequest{
		RecordType: record.TypeHydration,
		TimeRange:  UnboundedRange(),
		Ascending:  true,
		PageSize:   2,
		PageToken:  next,
	}, opts)
	require.NoError(t, err)
	require.Len(t, second, 1)

	distinct := map[uuid.UUID]struct{}{
		first[0].UUID: {}, first[1].UUID: {}, second[0].UUID: {},
	}
	assert.Len(t, distinct, 3, "same-timestamp rows never repeat across pages")
}

func TestReadTokenDirectionMismatch(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
		testutil.Steps(appA, baseTime+2000, baseTime+3000, 20),
	})
	require.NoError(t, err)

	_, next, err := e.ReadPaged(ctx, appA, ReadRequest{
		RecordType: record.TypeSteps,
		TimeRange:  UnboundedRange(),
		Ascending:  true,
		PageSize:   1,
		PageToken:  NoPageToken,
	}, ReadOptions{HistoricCutoffMillis: -1})
	require.NoError(t, err)

	_, _, err = e.ReadPaged(ctx, appA, ReadRequest{
		RecordType: record.TypeSteps,
		TimeRange:  UnboundedRange(),
		Ascending:  false,
		PageSize:   1,
		PageToken:  next,
	}, ReadOptions{HistoricCutoffMillis: -1})
	assert.True(t, IsInvalidRequest(err))
}

func TestHistoricCutoff(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	old := baseTime - 100_000
	recent := baseTime + 100_000
	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, old, old+1000, 1),
	})
	require.NoError(t, err)
	_, err = e.Insert(ctx, appB, []*record.Record{
		testutil.Steps(appB, old, old+1000, 2),
		testutil.Steps(appB, recent, recent+1000, 3),
	})
	require.NoError(t, err)

	recs, _, err := e.ReadPaged(ctx, appA, ReadRequest{
		RecordType: record.TypeSteps,
		TimeRange:  UnboundedRange(),
		Ascending:  true,
		PageToken:  NoPageToken,
	}, ReadOptions{HistoricCutoffMillis: baseTime})
	require.NoError(t, err)

	require.Len(t, recs, 2, "own old row stays visible, the other app's old row does not")
	owners := map[string]int{}
	for _, r := range recs {
		owners[r.PackageName]++
	}
	assert.Equal(t, map[string]int{appA: 1, appB: 1}, owners)
}

func TestSelfReadSkipsCutoff(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	old := baseTime - 100_000
	_, err := e.Insert(ctx, appA, []*record.Record{
		testutil.Steps(appA, old, old+1000, 1),
	})
	require.NoError(t, err)

	recs, _, err := e.ReadPaged(ctx, appA, ReadRequest{
		RecordType:   record.TypeSteps,
		PackageNames: []string{appA},
		TimeRange:    UnboundedRange(),
		Ascending:    true,
		PageToken:    NoPageToken,
	}, ReadOptions{HistoricCutoffMillis: baseTime})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestReadByClientRecordIDs(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	rec := testutil.Weight(appA, baseTime, 70_000)
	rec.ClientRecordID = "scale-1"
	_, err := e.Insert(ctx, appA, []*record.Record{rec})
	require.NoError(t, err)

	recs, _, err := e.ReadPaged(ctx, appA, ReadRequest{
		RecordType:      record.TypeWeight,
		ClientRecordIDs: []string{"scale-1", "scale-2"},
	}, ReadOptions{HistoricCutoffMillis: baseTime + 1})
	require.NoError(t, err)
	require.Len(t, recs, 1, "self-read by client id ignores the cutoff; unknown ids match nothing")
	assert.Equal(t, "scale-1", recs[0].ClientRecordID)
}

func TestExerciseRouteRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	session := &record.Record{
		Type:        record.TypeExerciseSession,
		PackageName: appA,
		StartTime:   baseTime,
		EndTime:     baseTime + 3600_000,
		Payload:     map[string]any{"exercise_type": int64(8), "title": "morning run"},
	}
	ids, err := e.Insert(ctx, appA, []*record.Record{session})
	require.NoError(t, err)

	// Route points live in the child table keyed by session identity.
	err = e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		for i := 0; i < 2; i++ {
			if _, err := tx.Exec(ctx,
				"INSERT INTO "+record.ExerciseRouteTable+
					" (session_uuid, route_time, latitude, longitude) VALUES (?, ?, ?, ?)",
				identity.EncodeUUID(ids[0]), baseTime+int64(i)*1000, 52.1+float64(i), 4.3,
			); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	recs := readAll(t, e, appA, record.TypeExerciseSession)
	require.Len(t, recs, 1)
	points, _ := recs[0].Extra["route"].([]map[string]any)
	require.Len(t, points, 2)

	// Deleting the session removes its route points with it.
	_, err = e.DeleteByIDs(ctx, appA, []IDFilter{
		{RecordType: record.TypeExerciseSession, UUID: ids[0]},
	}, false, false)
	require.NoError(t, err)

	err = e.store.RunAsTransaction(ctx, func(tx *store.Tx) error {
		n, err := tx.Count(ctx, record.ExerciseRouteTable, nil)
		if err != nil {
			return err
		}
		assert.Zero(t, n)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertUnrestrictedPreservesIdentity(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	id := identity.Random()
	rec := testutil.Steps(appA, baseTime, baseTime+1000, 10)
	rec.UUID = id
	rec.LastModifiedTime = baseTime - 5_000

	ids, err := e.InsertUnrestricted(ctx, []*record.Record{rec}, false)
	require.NoError(t, err)
	assert.Equal(t, id, ids[0])

	recs := readAll(t, e, appA, record.TypeSteps)
	require.Len(t, recs, 1)
	assert.Equal(t, baseTime-5_000, recs[0].LastModifiedTime, "restore keeps original timestamps")

	// First writer wins: a restore never clobbers an existing row.
	clobber := testutil.Steps(appA, baseTime+2000, baseTime+3000, 999)
	clobber.UUID = id
	clobber.LastModifiedTime = baseTime
	_, err = e.InsertUnrestricted(ctx, []*record.Record{clobber}, false)
	require.NoError(t, err)

	recs = readAll(t, e, appA, record.TypeSteps)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(10), recs[0].Payload["count"])
}

func TestInsertUnrestrictedRequiresIdentity(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.InsertUnrestricted(context.Background(), []*record.Record{
		testutil.Steps(appA, baseTime, baseTime+1000, 10),
	}, false)
	assert.True(t, IsInvalidRequest(err))
}
