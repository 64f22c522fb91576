package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openvital/vitalstore/internal/record"
)

// recordsFile is the YAML document accepted by insert and update:
// the writing app plus a list of records keyed by type name.
type recordsFile struct {
	App     string       `yaml:"app"`
	Records []recordSpec `yaml:"records"`
}

type recordSpec struct {
	Type                string         `yaml:"type"`
	ClientRecordID      string         `yaml:"client_record_id"`
	ClientRecordVersion int64          `yaml:"client_record_version"`
	Manufacturer        string         `yaml:"manufacturer"`
	Model               string         `yaml:"model"`
	RecordingMethod     int64          `yaml:"recording_method"`
	Time                int64          `yaml:"time"`
	ZoneOffset          int64          `yaml:"zone_offset"`
	StartTime           int64          `yaml:"start_time"`
	StartZoneOffset     int64          `yaml:"start_zone_offset"`
	EndTime             int64          `yaml:"end_time"`
	EndZoneOffset       int64          `yaml:"end_zone_offset"`
	Payload             map[string]any `yaml:"payload"`
}

// loadRecordsFile parses a records document and resolves each entry
// against the registry.
func loadRecordsFile(path string, reg *record.Registry) (string, []*record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()

	var doc recordsFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return "", nil, fmt.Errorf("parse records file %s: %w", path, err)
	}
	if doc.App == "" {
		return "", nil, fmt.Errorf("records file %s: app is required", path)
	}
	if len(doc.Records) == 0 {
		return "", nil, fmt.Errorf("records file %s: no records", path)
	}

	out := make([]*record.Record, len(doc.Records))
	for i, spec := range doc.Records {
		d, err := reg.ByName(spec.Type)
		if err != nil {
			return "", nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = &record.Record{
			Type:                d.TypeID,
			ClientRecordID:      spec.ClientRecordID,
			ClientRecordVersion: spec.ClientRecordVersion,
			PackageName:         doc.App,
			Manufacturer:        spec.Manufacturer,
			Model:               spec.Model,
			RecordingMethod:     spec.RecordingMethod,
			Time:                spec.Time,
			ZoneOffset:          spec.ZoneOffset,
			StartTime:           spec.StartTime,
			StartZoneOffset:     spec.StartZoneOffset,
			EndTime:             spec.EndTime,
			EndZoneOffset:       spec.EndZoneOffset,
			Payload:             spec.Payload,
		}
	}
	return doc.App, out, nil
}
