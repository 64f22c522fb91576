package record

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// descriptorFile is the YAML shape of a dynamic descriptor set.
type descriptorFile struct {
	Types []descriptorSpec `yaml:"types"`
}

type descriptorSpec struct {
	ID                int          `yaml:"id"`
	Name              string       `yaml:"name"`
	Table             string       `yaml:"table"`
	UUIDNamespace     int32        `yaml:"uuid_namespace"`
	Category          string       `yaml:"category"`
	Shape             string       `yaml:"shape"`
	DedupeExempt      bool         `yaml:"dedupe_exempt"`
	Derived           bool         `yaml:"derived"`
	AggregationColumn string       `yaml:"aggregation_column"`
	Payload           []columnSpec `yaml:"payload"`
}

type columnSpec struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	NotNull bool   `yaml:"not_null"`
}

var categoriesByName = map[string]Category{
	"activity":          CategoryActivity,
	"body_measurements": CategoryBodyMeasurements,
	"nutrition":         CategoryNutrition,
	"sleep":             CategorySleep,
	"vitals":            CategoryVitals,
	"wellness":          CategoryWellness,
}

var kindsByName = map[string]Kind{
	"integer": ColInteger,
	"real":    ColReal,
	"text":    ColText,
	"blob":    ColBlob,
}

// NewRegistryFromFile builds a registry from a YAML descriptor file.
// The loaded descriptors get the same behavior hooks as the built-in
// table, keyed by type id, so a descriptor file listing the built-in
// types yields an identically behaving registry.
func NewRegistryFromFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load descriptors: %w", err)
	}
	defer f.Close()
	return NewRegistryFromReader(f)
}

// NewRegistryFromReader is NewRegistryFromFile for an open stream.
func NewRegistryFromReader(r io.Reader) (*Registry, error) {
	var file descriptorFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("load descriptors: %w", err)
	}
	if len(file.Types) == 0 {
		return nil, fmt.Errorf("load descriptors: no types declared")
	}

	ds := make([]*Descriptor, 0, len(file.Types))
	for _, spec := range file.Types {
		d, err := spec.descriptor()
		if err != nil {
			return nil, fmt.Errorf("load descriptors: %w", err)
		}
		attachHooks(d)
		ds = append(ds, d)
	}
	return NewRegistryFromDescriptors(ds)
}

func (s descriptorSpec) descriptor() (*Descriptor, error) {
	if s.ID == 0 || s.Name == "" || s.Table == "" || s.UUIDNamespace == 0 {
		return nil, fmt.Errorf("type %q: id, name, table and uuid_namespace are required", s.Name)
	}
	cat, ok := categoriesByName[s.Category]
	if !ok {
		return nil, fmt.Errorf("type %q: unknown category %q", s.Name, s.Category)
	}
	var interval bool
	switch s.Shape {
	case "instant":
	case "interval":
		interval = true
	default:
		return nil, fmt.Errorf("type %q: shape must be instant or interval, got %q", s.Name, s.Shape)
	}

	cols := make([]Column, 0, len(s.Payload))
	for _, c := range s.Payload {
		kind, ok := kindsByName[c.Kind]
		if !ok {
			return nil, fmt.Errorf("type %q: column %q has unknown kind %q", s.Name, c.Name, c.Kind)
		}
		cols = append(cols, Column{Name: c.Name, Kind: kind, NotNull: c.NotNull})
	}

	return &Descriptor{
		TypeID:            s.ID,
		Name:              s.Name,
		Table:             s.Table,
		UUIDNamespace:     s.UUIDNamespace,
		Category:          cat,
		Interval:          interval,
		DedupeExempt:      s.DedupeExempt,
		Derived:           s.Derived,
		AggregationColumn: s.AggregationColumn,
		Payload:           cols,
	}, nil
}
