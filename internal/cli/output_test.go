package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"run_id": "abc"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("plan rejected", "detectors must be non-empty")
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "plan rejected", resp.Error.Message)
	assert.Equal(t, "detectors must be non-empty", resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("run recorded")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "run recorded")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error("run failed", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error: run failed")
}

func TestOutputFormatter_TextErrorVerboseDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("run failed", "motor stalled")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error: run failed")
	assert.Contains(t, buf.String(), "motor stalled")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	quiet := &OutputFormatter{Format: "text", Writer: out}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, out.String())

	verbose := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
	verbose.VerboseLog("loaded %d plans", 3)
	assert.Empty(t, out.String(), "diagnostics must not corrupt the JSON stream")
	assert.Contains(t, errOut.String(), "loaded 3 plans")
}

func TestExitError(t *testing.T) {
	underlying := errors.New("no such table")
	err := WrapExitError(ExitCommandError, "failed to open run log", underlying)

	assert.Equal(t, "failed to open run log: no such table", err.Error())
	assert.ErrorIs(t, err, underlying)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bare := NewExitError(ExitFailure, "stream verification failed")
	assert.Equal(t, "stream verification failed", bare.Error())
	assert.Equal(t, ExitFailure, GetExitCode(bare))
}

func TestGetExitCodeDefaultsToFailure(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain error")))
}

func TestGetExitCodeUnwrapsWrappedErrors(t *testing.T) {
	inner := NewExitError(ExitCommandError, "database not found")
	wrapped := errors.Join(errors.New("context"), inner)
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}
