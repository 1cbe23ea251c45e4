package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteJoinList(t *testing.T) {
	root := t.TempDir()
	alice := newSite(t, root, "alice@x")
	bob := newSite(t, root, "bob@x")

	out, err := alice.exec(t, "invite", writeDraft(t, "sum.yaml", sumDraft))
	require.NoError(t, err)
	assert.Contains(t, out, "Invited alice@x/sum at alice@x/public/fedreduce/invite/sum/sum.yaml")

	count := strings.Replace(sumDraft, "project: sum", "project: count", 1)
	_, err = bob.exec(t, "invite", writeDraft(t, "count.yaml", count))
	require.NoError(t, err)

	out, err = bob.exec(t, "join", "alice@x/sum")
	require.NoError(t, err)
	assert.Equal(t, "Joined alice@x/sum\n", out)

	out, err = bob.exec(t, "--format", "json", "list")
	require.NoError(t, err)
	newGolden(t).Assert(t, "list_json", []byte(out))

	out, err = bob.exec(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "PROJECT")
	assert.Contains(t, out, "alice@x/sum")
	assert.Contains(t, out, "participant")
	assert.Contains(t, out, "bob@x/count")
}

func TestInvite_Duplicate(t *testing.T) {
	alice := newSite(t, t.TempDir(), "alice@x")
	draft := writeDraft(t, "sum.yaml", sumDraft)

	_, err := alice.exec(t, "invite", draft)
	require.NoError(t, err)

	out, err := alice.exec(t, "--format", "json", "invite", draft)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeExists, resp.Error.Code)
}

func TestInvite_InvalidDescriptor(t *testing.T) {
	alice := newSite(t, t.TempDir(), "alice@x")

	_, err := alice.exec(t, "invite", writeDraft(t, "bad.yaml", "project: bad\nsteps: []\n"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestJoinLeave(t *testing.T) {
	bob := newSite(t, t.TempDir(), "bob@x")

	_, err := bob.exec(t, "join", "alice@x", "sum")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(bob.root, "bob@x", "public", "fedreduce", "join", "alice@x", "sum.yaml.join"))

	out, err := bob.exec(t, "leave", "alice@x/sum")
	require.NoError(t, err)
	assert.Equal(t, "Left alice@x/sum\n", out)
	assert.NoFileExists(t, filepath.Join(bob.root, "bob@x", "public", "fedreduce", "join", "alice@x", "sum.yaml.join"))

	out, err = bob.exec(t, "leave", "alice@x/sum")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}

func TestJoin_BadSource(t *testing.T) {
	bob := newSite(t, t.TempDir(), "bob@x")

	_, err := bob.exec(t, "join", "sum")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStart(t *testing.T) {
	root := t.TempDir()
	alice := newSite(t, root, "alice@x")
	bob := newSite(t, root, "bob@x")

	_, err := alice.exec(t, "invite", writeDraft(t, "sum.yaml", sumDraft))
	require.NoError(t, err)

	out, err := alice.exec(t, "start", "sum")
	require.NoError(t, err)
	assert.Equal(t, "Started alice@x/sum\n", out)
	assert.FileExists(t, filepath.Join(root, "alice@x", "public", "fedreduce", "running", "sum", "sum.yaml"))

	out, err = alice.exec(t, "start", "sum")
	require.NoError(t, err)
	assert.Equal(t, "alice@x/sum is already running\n", out)

	_, err = alice.exec(t, "start", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = bob.exec(t, "--format", "json", "start", "alice@x/sum")
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, ErrCodeNotAuthor, resp.Error.Code)
}
