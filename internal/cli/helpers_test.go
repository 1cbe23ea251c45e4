package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

const sumDraft = `project: sum
description: Add five per datasite.
workflow:
  datasites: [alice@x]
complete: 'FilePipe("{last_datasite}/fedreduce/{project}/result")'
steps:
  - first:
      inputs:
        - prev: StaticPipe(0)
  - foreach:
      inputs:
        - prev: 'FilePipe("{prev_datasite}/fedreduce/{project}/result")'
        - in: StaticPipe(5)
      function: add
      output:
        path: "{datasite}/fedreduce/{project}/result"
        permissions: ["{next_datasite}"]
`

// site is one datasite's view of a shared sync root.
type site struct {
	root   string
	config string
	db     string
}

func newSite(t *testing.T, root, email string) site {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.json")
	data, err := json.Marshal(map[string]string{"email": email, "sync_folder": root})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg, data, 0o644))
	return site{root: root, config: cfg, db: filepath.Join(dir, "fedreduce.db")}
}

// exec runs the CLI as s and returns stdout.
func (s site) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", s.config, "--db", s.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeDraft(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
