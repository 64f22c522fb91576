package record

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvital/vitalstore/internal/identity"
)

func TestNewRegistryCoversAllTypes(t *testing.T) {
	r := NewRegistry()
	want := []int{
		TypeSteps, TypeDistance, TypeTotalCaloriesBurned, TypeBasalMetabolicRate,
		TypeHeartRate, TypeWeight, TypeHydration, TypeNutrition, TypeSleepSession,
		TypeExerciseSession, TypePlannedExerciseSession, TypeMindfulnessSession,
	}
	assert.ElementsMatch(t, want, r.TypeIDs())
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	d, err := r.Descriptor(TypeSteps)
	require.NoError(t, err)
	assert.Equal(t, "steps", d.Name)
	assert.Equal(t, StepsTable, d.Table)

	byName, err := r.ByName("steps")
	require.NoError(t, err)
	assert.Same(t, d, byName)

	_, err = r.Descriptor(999)
	assert.Error(t, err)
	_, err = r.ByName("nope")
	assert.Error(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	dup := func(mutate func(*Descriptor)) []*Descriptor {
		a := &Descriptor{TypeID: 1, Name: "a", Table: "ta", UUIDNamespace: 1}
		b := &Descriptor{TypeID: 2, Name: "b", Table: "tb", UUIDNamespace: 2}
		mutate(b)
		return []*Descriptor{a, b}
	}

	_, err := NewRegistryFromDescriptors(dup(func(d *Descriptor) { d.TypeID = 1 }))
	assert.Error(t, err)
	_, err = NewRegistryFromDescriptors(dup(func(d *Descriptor) { d.Name = "a" }))
	assert.Error(t, err)
	_, err = NewRegistryFromDescriptors(dup(func(d *Descriptor) { d.UUIDNamespace = 1 }))
	assert.Error(t, err)
	_, err = NewRegistryFromDescriptors(dup(func(d *Descriptor) { d.Table = "ta" }))
	assert.Error(t, err)
}

func TestSupportsPriority(t *testing.T) {
	r := NewRegistry()

	priority := map[int]bool{
		TypeSteps:              true,  // activity
		TypeSleepSession:       true,  // sleep
		TypeMindfulnessSession: true,  // wellness
		TypeHeartRate:          false, // vitals
		TypeWeight:             false, // body measurements
		TypeHydration:          false, // nutrition
	}
	for id, want := range priority {
		d, err := r.Descriptor(id)
		require.NoError(t, err)
		assert.Equal(t, want, d.SupportsPriority(), d.Name)
	}
}

func TestDerivedFlags(t *testing.T) {
	r := NewRegistry()
	for id, want := range map[int]bool{
		TypeBasalMetabolicRate:  true,
		TypeTotalCaloriesBurned: true,
		TypeSteps:               false,
	} {
		d, err := r.Descriptor(id)
		require.NoError(t, err)
		assert.Equal(t, want, d.Derived, d.Name)
	}
}

func TestCreatePlansCommonColumns(t *testing.T) {
	r := NewRegistry()

	steps, _ := r.Descriptor(TypeSteps)
	plans := steps.CreatePlans()
	require.Len(t, plans, 1)
	sql := plans[0].SQL()
	for _, col := range []string{
		"uuid BLOB NOT NULL UNIQUE", "dedupe_hash BLOB UNIQUE",
		"start_time INTEGER NOT NULL", "end_time INTEGER NOT NULL",
		"count INTEGER NOT NULL",
	} {
		assert.Contains(t, sql, col)
	}

	weight, _ := r.Descriptor(TypeWeight)
	sql = weight.CreatePlans()[0].SQL()
	assert.Contains(t, sql, "time INTEGER NOT NULL")
	assert.NotContains(t, sql, "start_time")

	exercise, _ := r.Descriptor(TypeExerciseSession)
	plans = exercise.CreatePlans()
	require.Len(t, plans, 2, "exercise session owns the route child table")
	assert.Contains(t, plans[1].SQL(), ExerciseRouteTable)
}

func TestContentValuesDecodeRoundTrip(t *testing.T) {
	r := NewRegistry()
	steps, _ := r.Descriptor(TypeSteps)

	rec := &Record{
		Type:             TypeSteps,
		UUID:             identity.Random(),
		ClientRecordID:   "walk-1",
		PackageName:      "com.example.fit",
		AppInfoID:        3,
		DeviceInfoID:     1,
		LastModifiedTime: 5000,
		StartTime:        1000,
		EndTime:          2000,
		Payload:          map[string]any{"count": int64(250)},
	}

	cols, vals, err := steps.ContentValues(rec)
	require.NoError(t, err)
	require.Len(t, vals, len(cols))

	row := make(map[string]any, len(cols))
	for i, c := range cols {
		row[c] = vals[i]
	}
	got, err := steps.Decode(row)
	require.NoError(t, err)
	assert.Equal(t, rec.UUID, got.UUID)
	assert.Equal(t, rec.ClientRecordID, got.ClientRecordID)
	assert.Equal(t, rec.StartTime, got.StartTime)
	assert.Equal(t, rec.EndTime, got.EndTime)
	assert.Equal(t, int64(250), got.Payload["count"])
}

func TestContentValuesMissingRequiredField(t *testing.T) {
	r := NewRegistry()
	steps, _ := r.Descriptor(TypeSteps)

	_, _, err := steps.ContentValues(&Record{UUID: identity.Random(), StartTime: 1, EndTime: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count")
}

func TestFingerprintRules(t *testing.T) {
	r := NewRegistry()
	steps, _ := r.Descriptor(TypeSteps)
	nutrition, _ := r.Descriptor(TypeNutrition)
	hydration, _ := r.Descriptor(TypeHydration)

	rec := &Record{AppInfoID: 1, DeviceInfoID: 2, StartTime: 10, EndTime: 20}
	assert.Len(t, steps.Fingerprint(rec), 32)

	// A client id suppresses the fingerprint.
	withClient := *rec
	withClient.ClientRecordID = "x"
	assert.Nil(t, steps.Fingerprint(&withClient))

	// Exempt types never fingerprint.
	assert.Nil(t, nutrition.Fingerprint(rec))
	assert.Nil(t, hydration.Fingerprint(rec))

	weight, _ := r.Descriptor(TypeWeight)
	instant := &Record{AppInfoID: 1, DeviceInfoID: 2, Time: 10}
	assert.Len(t, weight.Fingerprint(instant), 24)
}

func TestExerciseUpsertCascade(t *testing.T) {
	r := NewRegistry()
	exercise, _ := r.Descriptor(TypeExerciseSession)
	require.NotNil(t, exercise.ModifiedByUpsert)

	planned := identity.Random()
	rec := &Record{
		UUID:    identity.Random(),
		Payload: map[string]any{ColPlannedSessionID: planned},
	}
	reads := exercise.ModifiedByUpsert(rec, 7)
	require.Len(t, reads, 2)

	// First read carries the planned-session reference as a literal
	// row under the caller's app id.
	assert.Equal(t, TypePlannedExerciseSession, reads[0].RecordType)
	assert.Contains(t, reads[0].Query, "VALUES")
	assert.Equal(t, []any{identity.EncodeUUID(planned), int64(7)}, reads[0].Args)

	// Second read finds plan rows already linking back to the session.
	assert.Contains(t, reads[1].Query, ColCompletedSessionID)

	// Without a plan reference only the back-link lookup remains.
	reads = exercise.ModifiedByUpsert(&Record{UUID: identity.Random()}, 7)
	assert.Len(t, reads, 1)
}

func TestDeleteCascades(t *testing.T) {
	r := NewRegistry()
	exercise, _ := r.Descriptor(TypeExerciseSession)
	planned, _ := r.Descriptor(TypePlannedExerciseSession)

	id := identity.Random()
	reads := exercise.ModifiedByDelete(id)
	require.Len(t, reads, 1)
	assert.Equal(t, TypePlannedExerciseSession, reads[0].RecordType)

	reads = planned.ModifiedByDelete(id)
	require.Len(t, reads, 1)
	assert.Equal(t, TypeExerciseSession, reads[0].RecordType)
	assert.Contains(t, reads[0].Query, ColPlannedSessionID)
}

func TestExerciseRouteReads(t *testing.T) {
	r := NewRegistry()
	exercise, _ := r.Descriptor(TypeExerciseSession)

	assert.Nil(t, exercise.ExtraReads(nil))

	a, b := identity.Random(), identity.Random()
	reads := exercise.ExtraReads([]uuid.UUID{a, b})
	require.Len(t, reads, 1)
	assert.Contains(t, reads[0].Query, identity.HexLiteral(a))
	assert.Contains(t, reads[0].Query, identity.HexLiteral(b))

	parent := &Record{UUID: a}
	byUUID := map[uuid.UUID]*Record{a: parent}
	err := reads[0].Merge(byUUID, map[string]any{
		ColSessionUUID: identity.EncodeUUID(a),
		"route_time":   int64(100),
		"latitude":     51.5,
		"longitude":    -0.1,
	})
	require.NoError(t, err)
	points, ok := parent.Extra["route"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, points, 1)
	assert.Equal(t, int64(100), points[0]["time"])

	// A point for a session outside the page is ignored.
	err = reads[0].Merge(byUUID, map[string]any{ColSessionUUID: identity.EncodeUUID(b)})
	assert.NoError(t, err)
}

func TestDynamicRegistryMatchesStatic(t *testing.T) {
	doc := `
types:
  - id: 1
    name: steps
    table: steps_record_table
    uuid_namespace: 101
    category: activity
    shape: interval
    aggregation_column: count
    payload:
      - {name: count, kind: integer, not_null: true}
  - id: 10
    name: exercise_session
    table: exercise_session_record_table
    uuid_namespace: 110
    category: activity
    shape: interval
    payload:
      - {name: exercise_type, kind: integer, not_null: true}
      - {name: title, kind: text}
      - {name: notes, kind: text}
      - {name: planned_exercise_session_id, kind: blob}
`
	dyn, err := NewRegistryFromReader(strings.NewReader(doc))
	require.NoError(t, err)

	static := NewRegistry()
	sd, _ := static.Descriptor(TypeSteps)
	dd, err := dyn.Descriptor(TypeSteps)
	require.NoError(t, err)

	assert.Equal(t, sd.Table, dd.Table)
	assert.Equal(t, sd.UUIDNamespace, dd.UUIDNamespace)
	assert.Equal(t, sd.Category, dd.Category)
	assert.Equal(t, sd.Interval, dd.Interval)
	assert.Equal(t, sd.AggregationColumn, dd.AggregationColumn)
	assert.Equal(t, sd.Payload, dd.Payload)

	// Behavior hooks attach by type id on both paths.
	de, err := dyn.Descriptor(TypeExerciseSession)
	require.NoError(t, err)
	assert.NotNil(t, de.ModifiedByUpsert)
	assert.NotNil(t, de.ExtraReads)
	assert.Len(t, de.CreatePlans(), 2)
}

func TestDynamicRegistryValidation(t *testing.T) {
	cases := map[string]string{
		"empty":        `types: []`,
		"bad category": "types:\n  - {id: 1, name: a, table: t, uuid_namespace: 1, category: nope, shape: instant}",
		"bad shape":    "types:\n  - {id: 1, name: a, table: t, uuid_namespace: 1, category: vitals, shape: weird}",
		"bad kind":     "types:\n  - id: 1\n    name: a\n    table: t\n    uuid_namespace: 1\n    category: vitals\n    shape: instant\n    payload:\n      - {name: x, kind: decimal}",
		"missing id":   "types:\n  - {name: a, table: t, uuid_namespace: 1, category: vitals, shape: instant}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistryFromReader(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
