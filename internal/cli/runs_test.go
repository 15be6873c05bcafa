package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunsCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "no runs recorded")
}

func TestRunsTable(t *testing.T) {
	dbPath, runID := recordRun(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunsCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath})
	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "RUN")
	assert.Contains(t, output, "PLAN")
	assert.Contains(t, output, runID)
	assert.Contains(t, output, "scan")
	assert.Contains(t, output, "success")
}

func TestRunsJSON(t *testing.T) {
	dbPath, runID := recordRun(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewRunsCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--db", dbPath})
	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	listings, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, listings, 1)

	row, ok := listings[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, runID, row["run_id"])
	assert.Equal(t, "scan", row["plan"])
	assert.Equal(t, "success", row["exit_status"])
	assert.Equal(t, float64(5), row["events"])
}
