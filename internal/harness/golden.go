package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// transcript is the serialized form of a scenario run.
type transcript struct {
	Scenario string  `json:"scenario"`
	Events   []Event `json:"events"`
}

// RunWithGolden loads a scenario, runs it, and compares the transcript
// against testdata/golden/{name}.golden. Regenerate fixtures with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, path string) {
	t.Helper()

	scenario, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("run scenario %s: %v", scenario.Name, err)
	}

	data, err := json.MarshalIndent(transcript{
		Scenario: scenario.Name,
		Events:   result.Events,
	}, "", "  ")
	if err != nil {
		t.Fatalf("marshal transcript: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
}
