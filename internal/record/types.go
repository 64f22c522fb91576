package record

import (
	"strings"

	"github.com/google/uuid"

	"github.com/openvital/vitalstore/internal/identity"
	"github.com/openvital/vitalstore/internal/plan"
)

// Table names.
const (
	StepsTable           = "steps_record_table"
	DistanceTable        = "distance_record_table"
	TotalCaloriesTable   = "total_calories_burned_record_table"
	BasalMetabolicTable  = "basal_metabolic_rate_record_table"
	HeartRateTable       = "heart_rate_record_table"
	WeightTable          = "weight_record_table"
	HydrationTable       = "hydration_record_table"
	NutritionTable       = "nutrition_record_table"
	SleepSessionTable    = "sleep_session_record_table"
	ExerciseSessionTable = "exercise_session_record_table"
	PlannedSessionTable  = "planned_exercise_session_record_table"
	MindfulnessTable     = "mindfulness_session_record_table"

	ExerciseRouteTable = "exercise_route_table"
)

// Exercise-session linkage columns.
const (
	ColPlannedSessionID   = "planned_exercise_session_id"
	ColCompletedSessionID = "completed_session_id"
	ColSessionUUID        = "session_uuid"
)

// builtinDescriptors returns the static descriptor table. The dynamic
// path loads the same shape from a descriptor file and attaches the
// same behavior hooks, so both paths are behaviorally identical.
func builtinDescriptors() []*Descriptor {
	ds := []*Descriptor{
		{
			TypeID: TypeSteps, Name: "steps", Table: StepsTable,
			UUIDNamespace: 101, Category: CategoryActivity, Interval: true,
			AggregationColumn: "count",
			Payload:           []Column{{Name: "count", Kind: ColInteger, NotNull: true}},
		},
		{
			TypeID: TypeDistance, Name: "distance", Table: DistanceTable,
			UUIDNamespace: 102, Category: CategoryActivity, Interval: true,
			AggregationColumn: "distance_meters",
			Payload:           []Column{{Name: "distance_meters", Kind: ColReal, NotNull: true}},
		},
		{
			TypeID: TypeTotalCaloriesBurned, Name: "total_calories_burned", Table: TotalCaloriesTable,
			UUIDNamespace: 103, Category: CategoryActivity, Interval: true, Derived: true,
			AggregationColumn: "energy_kcal",
			Payload:           []Column{{Name: "energy_kcal", Kind: ColReal, NotNull: true}},
		},
		{
			TypeID: TypeBasalMetabolicRate, Name: "basal_metabolic_rate", Table: BasalMetabolicTable,
			UUIDNamespace: 104, Category: CategoryBodyMeasurements, Derived: true,
			AggregationColumn: "basal_rate_watts",
			Payload:           []Column{{Name: "basal_rate_watts", Kind: ColReal, NotNull: true}},
		},
		{
			TypeID: TypeHeartRate, Name: "heart_rate", Table: HeartRateTable,
			UUIDNamespace: 105, Category: CategoryVitals,
			AggregationColumn: "beats_per_minute",
			Payload:           []Column{{Name: "beats_per_minute", Kind: ColInteger, NotNull: true}},
		},
		{
			TypeID: TypeWeight, Name: "weight", Table: WeightTable,
			UUIDNamespace: 106, Category: CategoryBodyMeasurements,
			AggregationColumn: "weight_grams",
			Payload:           []Column{{Name: "weight_grams", Kind: ColReal, NotNull: true}},
		},
		{
			TypeID: TypeHydration, Name: "hydration", Table: HydrationTable,
			UUIDNamespace: 107, Category: CategoryNutrition, Interval: true,
			DedupeExempt:      true,
			AggregationColumn: "volume_liters",
			Payload:           []Column{{Name: "volume_liters", Kind: ColReal, NotNull: true}},
		},
		{
			TypeID: TypeNutrition, Name: "nutrition", Table: NutritionTable,
			UUIDNamespace: 108, Category: CategoryNutrition, Interval: true,
			DedupeExempt:      true,
			AggregationColumn: "energy_kcal",
			Payload: []Column{
				{Name: "energy_kcal", Kind: ColReal},
				{Name: "protein_grams", Kind: ColReal},
				{Name: "carbs_grams", Kind: ColReal},
				{Name: "fat_grams", Kind: ColReal},
				{Name: "meal_type", Kind: ColInteger},
			},
		},
		{
			TypeID: TypeSleepSession, Name: "sleep_session", Table: SleepSessionTable,
			UUIDNamespace: 109, Category: CategorySleep, Interval: true,
			Payload: []Column{
				{Name: "title", Kind: ColText},
				{Name: "notes", Kind: ColText},
			},
		},
		{
			TypeID: TypeExerciseSession, Name: "exercise_session", Table: ExerciseSessionTable,
			UUIDNamespace: 110, Category: CategoryActivity, Interval: true,
			Payload: []Column{
				{Name: "exercise_type", Kind: ColInteger, NotNull: true},
				{Name: "title", Kind: ColText},
				{Name: "notes", Kind: ColText},
				{Name: ColPlannedSessionID, Kind: ColBlob},
			},
		},
		{
			TypeID: TypePlannedExerciseSession, Name: "planned_exercise_session", Table: PlannedSessionTable,
			UUIDNamespace: 111, Category: CategoryActivity, Interval: true,
			Payload: []Column{
				{Name: "plan_name", Kind: ColText},
				{Name: ColCompletedSessionID, Kind: ColBlob},
			},
		},
		{
			TypeID: TypeMindfulnessSession, Name: "mindfulness_session", Table: MindfulnessTable,
			UUIDNamespace: 112, Category: CategoryWellness, Interval: true,
			Payload: []Column{
				{Name: "mindfulness_type", Kind: ColInteger},
				{Name: "title", Kind: ColText},
			},
		},
	}
	for _, d := range ds {
		attachHooks(d)
	}
	return ds
}

// attachHooks wires the behavior closures and child tables for a
// descriptor. Shared by the static table and the dynamic
// descriptor-file path so the two stay behaviorally identical.
func attachHooks(d *Descriptor) {
	switch d.TypeID {
	case TypeExerciseSession:
		d.ChildTables = []plan.CreateTable{{
			Table: ExerciseRouteTable,
			Columns: []plan.ColumnDef{
				{Name: ColRowID, Def: "INTEGER PRIMARY KEY AUTOINCREMENT"},
				{Name: ColSessionUUID, Def: "BLOB NOT NULL"},
				{Name: "route_time", Def: "INTEGER NOT NULL"},
				{Name: "latitude", Def: "REAL NOT NULL"},
				{Name: "longitude", Def: "REAL NOT NULL"},
			},
		}}
		d.ModifiedByUpsert = exerciseUpsertCascade
		d.ModifiedByDelete = exerciseDeleteCascade
		d.ExtraReads = exerciseRouteReads
		d.ChildCleanup = exerciseRouteCleanup
	case TypePlannedExerciseSession:
		d.ModifiedByDelete = plannedSessionDeleteCascade
	}
}

// exerciseUpsertCascade reports records affected by writing an
// exercise session: the referenced training plan (logged under the
// caller's app id, via a literal row) and any plan row already linking
// back to this session.
func exerciseUpsertCascade(r *Record, callerAppID int64) []CascadeRead {
	var out []CascadeRead
	if planned, ok := plannedSessionRef(r); ok {
		out = append(out, CascadeRead{
			RecordType: TypePlannedExerciseSession,
			Query:      "SELECT column1, column2 FROM (VALUES (?, ?))",
			Args:       []any{identity.EncodeUUID(planned), callerAppID},
		})
	}
	out = append(out, CascadeRead{
		RecordType: TypePlannedExerciseSession,
		Query: "SELECT " + ColUUID + ", " + ColAppInfoID + " FROM " + PlannedSessionTable +
			" WHERE " + ColCompletedSessionID + " = ?",
		Args: []any{identity.EncodeUUID(r.UUID)},
	})
	return out
}

func exerciseDeleteCascade(id uuid.UUID) []CascadeRead {
	return []CascadeRead{{
		RecordType: TypePlannedExerciseSession,
		Query: "SELECT " + ColUUID + ", " + ColAppInfoID + " FROM " + PlannedSessionTable +
			" WHERE " + ColCompletedSessionID + " = ?",
		Args: []any{identity.EncodeUUID(id)},
	}}
}

func plannedSessionDeleteCascade(id uuid.UUID) []CascadeRead {
	return []CascadeRead{{
		RecordType: TypeExerciseSession,
		Query: "SELECT " + ColUUID + ", " + ColAppInfoID + " FROM " + ExerciseSessionTable +
			" WHERE " + ColPlannedSessionID + " = ?",
		Args: []any{identity.EncodeUUID(id)},
	}}
}

// exerciseRouteReads fetches route points for a page of sessions and
// merges them onto their parent records.
func exerciseRouteReads(ids []uuid.UUID) []ExtraRead {
	if len(ids) == 0 {
		return nil
	}
	literals := make([]string, len(ids))
	for i, id := range ids {
		literals[i] = identity.HexLiteral(id)
	}
	in := strings.Join(literals, ", ")
	return []ExtraRead{{
		Query: "SELECT " + ColSessionUUID + ", route_time, latitude, longitude FROM " +
			ExerciseRouteTable + " WHERE " + ColSessionUUID + " IN (" + in + ") ORDER BY route_time ASC",
		Merge: mergeRoutePoint,
	}}
}

func mergeRoutePoint(byUUID map[uuid.UUID]*Record, row map[string]any) error {
	b, _ := row[ColSessionUUID].([]byte)
	id, err := identity.DecodeUUID(b)
	if err != nil {
		return err
	}
	parent, ok := byUUID[id]
	if !ok {
		return nil
	}
	if parent.Extra == nil {
		parent.Extra = make(map[string]any)
	}
	points, _ := parent.Extra["route"].([]map[string]any)
	parent.Extra["route"] = append(points, map[string]any{
		"time":      intOf(row["route_time"]),
		"latitude":  row["latitude"],
		"longitude": row["longitude"],
	})
	return nil
}

// exerciseRouteCleanup removes route points when their sessions are
// deleted.
func exerciseRouteCleanup(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	literals := make([]string, len(ids))
	for i, id := range ids {
		literals[i] = identity.HexLiteral(id)
	}
	return []string{
		"DELETE FROM " + ExerciseRouteTable + " WHERE " + ColSessionUUID +
			" IN (" + strings.Join(literals, ", ") + ")",
	}
}

// plannedSessionRef extracts the planned-session reference from an
// exercise session payload, if present.
func plannedSessionRef(r *Record) (uuid.UUID, bool) {
	v, ok := r.Payload[ColPlannedSessionID]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	switch ref := v.(type) {
	case uuid.UUID:
		return ref, ref != uuid.Nil
	case []byte:
		id, err := identity.DecodeUUID(ref)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	case string:
		id, err := uuid.Parse(ref)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	}
	return uuid.Nil, false
}
