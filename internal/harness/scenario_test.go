package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
name: basic
description: a minimal scenario
now: 1700000000000
steps:
  - op: insert
    app: com.example.tracker
    records:
      - type: steps
        client_record_id: walk
        start_time: 1700000000000
        end_time: 1700003600000
        payload: {count: 10}
  - op: advance
    millis: 1000
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "basic", s.Name)
	assert.Equal(t, int64(1700000000000), s.Now)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, OpInsert, s.Steps[0].Op)
	assert.Equal(t, int64(1000), s.Steps[1].Millis)
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: catches misspelled keys
now: 1700000000000
stepz:
  - op: advance
    millis: 1
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenarioValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nnow: 1\nsteps: [{op: advance, millis: 1}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing now",
			content: "name: n\ndescription: d\nsteps: [{op: advance, millis: 1}]\n",
			wantErr: "now must be a positive",
		},
		{
			name:    "no steps",
			content: "name: n\ndescription: d\nnow: 1\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown op",
			content: "name: n\ndescription: d\nnow: 1\nsteps: [{op: teleport}]\n",
			wantErr: `unknown op "teleport"`,
		},
		{
			name:    "insert without records",
			content: "name: n\ndescription: d\nnow: 1\nsteps: [{op: insert, app: a}]\n",
			wantErr: "records list is required",
		},
		{
			name:    "read without type",
			content: "name: n\ndescription: d\nnow: 1\nsteps: [{op: read, app: a}]\n",
			wantErr: "type is required",
		},
		{
			name:    "token without as",
			content: "name: n\ndescription: d\nnow: 1\nsteps: [{op: token, app: a, types: [steps]}]\n",
			wantErr: "as is required",
		},
		{
			name:    "changes without token",
			content: "name: n\ndescription: d\nnow: 1\nsteps: [{op: changes}]\n",
			wantErr: "token is required",
		},
		{
			name:    "advance without millis",
			content: "name: n\ndescription: d\nnow: 1\nsteps: [{op: advance}]\n",
			wantErr: "millis must be positive",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
