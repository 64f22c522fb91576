package testutil

import (
	"github.com/openvital/vitalstore/internal/record"
)

// Steps builds an interval steps record ready for insert.
func Steps(pkg string, start, end, count int64) *record.Record {
	return &record.Record{
		Type:        record.TypeSteps,
		PackageName: pkg,
		StartTime:   start,
		EndTime:     end,
		Payload:     map[string]any{"count": count},
	}
}

// Weight builds an instant weight record ready for insert.
func Weight(pkg string, at int64, grams float64) *record.Record {
	return &record.Record{
		Type:        record.TypeWeight,
		PackageName: pkg,
		Time:        at,
		Payload:     map[string]any{"weight_grams": grams},
	}
}

// Hydration builds a dedupe-exempt hydration record ready for insert.
func Hydration(pkg string, start, end int64, liters float64) *record.Record {
	return &record.Record{
		Type:        record.TypeHydration,
		PackageName: pkg,
		StartTime:   start,
		EndTime:     end,
		Payload:     map[string]any{"volume_liters": liters},
	}
}
