package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidateCmd(t *testing.T, format string, paths ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetArgs(paths)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidate_Draft(t *testing.T) {
	out, err := runValidateCmd(t, "text", writeDraft(t, "sum.yaml", sumDraft))
	require.NoError(t, err)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "(2 steps)")
}

func TestValidate_Invalid(t *testing.T) {
	good := writeDraft(t, "sum.yaml", sumDraft)
	bad := writeDraft(t, "bad.yaml", "project: bad\nauthor: alice@x\nsteps:\n  - first: {}\n")

	out, err := runValidateCmd(t, "json", good, bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data []ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.True(t, resp.Data[0].Valid)
	assert.False(t, resp.Data[1].Valid)
	assert.NotEmpty(t, resp.Data[1].Error)
}

func TestValidate_LegacyPipeline(t *testing.T) {
	legacy := `project: add
author: alice@x
steps:
  - run: alice@x
    input_1: StaticPipe(1)
    input_2: StaticPipe(2)
    operation: add
    output:
      path: "{datasite}/fedreduce/{project}/step_{step}"
`
	out, err := runValidateCmd(t, "json", writeDraft(t, "add.yaml", legacy))
	require.NoError(t, err)

	var resp struct {
		Data []ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.True(t, resp.Data[0].Valid, resp.Data[0].Error)
	assert.True(t, resp.Data[0].Legacy)
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := runValidateCmd(t, "text", "/does/not/exist.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
