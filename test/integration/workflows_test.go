//go:build integration

package integration

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type field struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// TestWorkflow_ReadOnlyJourney resolves names, renders a filter and reads a
// page of records.
func TestWorkflow_ReadOnlyJourney(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	runner := NewCommandRunner(config, t)

	stdout, stderr, err := runner.Run("tables", config.App, "-o", "json")
	require.NoError(t, err, stderr)
	assert.Contains(t, stdout, config.Table)

	stdout, stderr, err = runner.Run("fields", config.App, config.Table, "-o", "json")
	require.NoError(t, err, stderr)

	var fields []field
	require.NoError(t, json.Unmarshal([]byte(stdout), &fields))
	require.NotEmpty(t, fields)

	stdout, stderr, err = runner.Run("query", config.App, config.Table, "--gt", "Record ID#=0", "--dry-run")
	require.NoError(t, err, stderr)
	assert.Equal(t, "{3.GT.0}", strings.TrimSpace(stdout))

	stdout, stderr, err = runner.Run("query", config.App, config.Table, "--top", "5", "-o", "json")
	require.NoError(t, err, stderr)

	var result struct {
		Records []map[string]any `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.LessOrEqual(t, len(result.Records), 5)
}

// TestWorkflow_OutputFormats checks every output format on the same listing.
func TestWorkflow_OutputFormats(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	runner := NewCommandRunner(config, t)

	for _, format := range []string{"table", "json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			stdout, stderr, err := runner.Run("fields", config.App, config.Table, "-o", format)
			require.NoError(t, err, stderr)
			assert.Contains(t, stdout, "Record ID#")
		})
	}
}

// TestWorkflow_ErrorScenarios checks that bad names fail with a hint.
func TestWorkflow_ErrorScenarios(t *testing.T) {
	config := LoadTestConfig()
	config.SkipIfMissingConfig(t)

	runner := NewCommandRunner(config, t)

	_, stderr, err := runner.Run("fields", config.App, "No Such Table 0000")
	require.Error(t, err)
	assert.Contains(t, stderr, "table not found")

	_, stderr, err = runner.Run("query", config.App, config.Table, "--eq", "No Such Field 0000=1", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, stderr, "No Such Field 0000")
}
