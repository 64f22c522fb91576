// Package record defines the record type registry: one descriptor per
// record type, holding the type's schema, identity namespace,
// aggregation eligibility and the plan-building hooks the engines call.
// The engines never branch on a concrete record type; everything
// type-specific lives behind a descriptor.
package record

import (
	"github.com/google/uuid"
)

// Category groups record types for priority-weighted aggregation and
// the priority list.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryActivity
	CategoryBodyMeasurements
	CategoryNutrition
	CategorySleep
	CategoryVitals
	CategoryWellness
)

var categoryNames = map[Category]string{
	CategoryActivity:         "activity",
	CategoryBodyMeasurements: "body_measurements",
	CategoryNutrition:        "nutrition",
	CategorySleep:            "sleep",
	CategoryVitals:           "vitals",
	CategoryWellness:         "wellness",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "unknown"
}

// Record type identifiers. These are the external ids callers use;
// each descriptor carries a separate uuid-namespace id so identity
// hashing survives renumbering.
const (
	TypeUnknown                = 0
	TypeSteps                  = 1
	TypeDistance               = 2
	TypeTotalCaloriesBurned    = 3
	TypeBasalMetabolicRate     = 4
	TypeHeartRate              = 5
	TypeWeight                 = 6
	TypeHydration              = 7
	TypeNutrition              = 8
	TypeSleepSession           = 9
	TypeExerciseSession        = 10
	TypePlannedExerciseSession = 11
	TypeMindfulnessSession     = 12
)

// Common column names shared by every record table.
const (
	ColRowID               = "row_id"
	ColUUID                = "uuid"
	ColLastModifiedTime    = "last_modified_time"
	ColClientRecordID      = "client_record_id"
	ColClientRecordVersion = "client_record_version"
	ColAppInfoID           = "app_info_id"
	ColDeviceInfoID        = "device_info_id"
	ColRecordingMethod     = "recording_method"
	ColDedupeHash          = "dedupe_hash"
	ColTime                = "time"
	ColZoneOffset          = "zone_offset"
	ColStartTime           = "start_time"
	ColStartZoneOffset     = "start_zone_offset"
	ColEndTime             = "end_time"
	ColEndZoneOffset       = "end_zone_offset"
)

// Kind is the storage class of a payload column.
type Kind int

const (
	ColInteger Kind = iota
	ColReal
	ColText
	ColBlob
)

// Column is one payload column of a record table.
type Column struct {
	Name    string
	Kind    Kind
	NotNull bool
}

// Record is the engine-facing form of one health record. Server-owned
// fields (UUID, AppInfoID, DeviceInfoID, LastModifiedTime) are
// populated by the upsert engine before persistence. Payload holds the
// type-specific columns; Extra holds auxiliary data merged in on read
// (for example an exercise route).
type Record struct {
	Type                int
	RowID               int64
	UUID                uuid.UUID
	ClientRecordID      string
	ClientRecordVersion int64
	PackageName         string
	AppInfoID           int64
	DeviceInfoID        int64
	Manufacturer        string
	Model               string
	LastModifiedTime    int64
	RecordingMethod     int64

	// Instant types use Time/ZoneOffset; interval types use the
	// Start/End pairs. Exactly one shape applies per concrete type.
	Time            int64
	ZoneOffset      int64
	StartTime       int64
	StartZoneOffset int64
	EndTime         int64
	EndZoneOffset   int64

	Payload map[string]any
	Extra   map[string]any
}
