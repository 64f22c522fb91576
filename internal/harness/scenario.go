package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one conformance scenario: a named flow of engine
// operations executed against a fresh store.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Now seeds the fixed clock, in epoch millis.
	Now int64 `yaml:"now"`

	// Steps run in order. A step that fails in a way its expect_error
	// does not anticipate aborts the scenario.
	Steps []Step `yaml:"steps"`
}

// Step is a single engine operation.
type Step struct {
	// Op selects the operation: insert, update, delete, read, token,
	// changes, aggregate or advance.
	Op string `yaml:"op"`

	// App is the calling package name. Required for every op that
	// touches records.
	App string `yaml:"app,omitempty"`

	// Type names the record type for read, delete and aggregate steps.
	Type string `yaml:"type,omitempty"`

	// Types names the record types a token step follows.
	Types []string `yaml:"types,omitempty"`

	// Records are the payloads for insert and update steps.
	Records []RecordSpec `yaml:"records,omitempty"`

	// ClientIDs selects records for delete steps. When empty the
	// delete runs as a filter delete over Type, Packages and the time
	// window.
	ClientIDs []string `yaml:"client_ids,omitempty"`

	// Packages restricts read, delete, token and aggregate steps to
	// records written by these apps.
	Packages []string `yaml:"packages,omitempty"`

	// Start and End bound the time window in epoch millis. Nil means
	// unbounded.
	Start *int64 `yaml:"start,omitempty"`
	End   *int64 `yaml:"end,omitempty"`

	// Operator is the aggregate operator: sum, avg, min, max or count.
	Operator string `yaml:"operator,omitempty"`

	// Token names a previously saved change token for changes steps.
	Token string `yaml:"token,omitempty"`

	// As saves the token produced by a token step, or the next token
	// of a changes step, under this name.
	As string `yaml:"as,omitempty"`

	// Millis moves the clock forward for advance steps.
	Millis int64 `yaml:"millis,omitempty"`

	// ExpectError names the engine error code this step must fail
	// with. The step succeeding, or failing with a different code, is
	// a scenario error.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// RecordSpec is one record in an insert or update step.
type RecordSpec struct {
	Type           string         `yaml:"type"`
	ClientRecordID string         `yaml:"client_record_id,omitempty"`
	Time           int64          `yaml:"time,omitempty"`
	StartTime      int64          `yaml:"start_time,omitempty"`
	EndTime        int64          `yaml:"end_time,omitempty"`
	Payload        map[string]any `yaml:"payload"`
}

// Step operations.
const (
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpRead      = "read"
	OpToken     = "token"
	OpChanges   = "changes"
	OpAggregate = "aggregate"
	OpAdvance   = "advance"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly instead of silently dropping a
// step attribute.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Now <= 0 {
		return fmt.Errorf("now must be a positive epoch millis value")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	for i := range s.Steps {
		if err := validateStep(i, &s.Steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Op {
	case OpInsert, OpUpdate:
		if st.App == "" {
			return fmt.Errorf("steps[%d]: app is required for %s", index, st.Op)
		}
		if len(st.Records) == 0 {
			return fmt.Errorf("steps[%d]: records list is required for %s", index, st.Op)
		}
		for j, r := range st.Records {
			if r.Type == "" {
				return fmt.Errorf("steps[%d].records[%d]: type is required", index, j)
			}
		}
	case OpRead, OpAggregate:
		if st.App == "" {
			return fmt.Errorf("steps[%d]: app is required for %s", index, st.Op)
		}
		if st.Type == "" {
			return fmt.Errorf("steps[%d]: type is required for %s", index, st.Op)
		}
	case OpDelete:
		if st.App == "" {
			return fmt.Errorf("steps[%d]: app is required for delete", index)
		}
		if st.Type == "" {
			return fmt.Errorf("steps[%d]: type is required for delete", index)
		}
	case OpToken:
		if st.App == "" {
			return fmt.Errorf("steps[%d]: app is required for token", index)
		}
		if len(st.Types) == 0 {
			return fmt.Errorf("steps[%d]: types list is required for token", index)
		}
		if st.As == "" {
			return fmt.Errorf("steps[%d]: as is required for token", index)
		}
	case OpChanges:
		if st.Token == "" {
			return fmt.Errorf("steps[%d]: token is required for changes", index)
		}
	case OpAdvance:
		if st.Millis <= 0 {
			return fmt.Errorf("steps[%d]: millis must be positive for advance", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	return nil
}
