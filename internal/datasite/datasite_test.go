package datasite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alice@x.org", Normalize("  Alice@X.org "))
	// e + combining acute composes to the precomposed rune.
	assert.Equal(t, "jos\u00e9@x", Normalize("jose\u0301@x"))
}

func TestIsIdentity(t *testing.T) {
	assert.True(t, IsIdentity("bob@openmined.org"))
	for _, s := range []string{"", "bob", "@x", "bob@", "a@b@c", "a/b@x", "a b@x"} {
		assert.False(t, IsIdentity(s), s)
	}
}

func TestExtract_LastIdentitySegment(t *testing.T) {
	p := "/sync/me@x/public/fedreduce/join/author@y/sum.yaml.join"
	assert.Equal(t, "author@y", Extract(p))
	assert.Equal(t, "", Extract("/no/identities/here"))
}

func TestOwner(t *testing.T) {
	assert.Equal(t, "a@x", Owner("a@x/public/file"))
	assert.Equal(t, "a@x", Owner("/a@x"))
}

func TestDedupe_SortedUnion(t *testing.T) {
	got := Dedupe([]string{"c@x", "A@x"}, []string{"a@x", "b@x", ""})
	assert.Equal(t, []string{"a@x", "b@x", "c@x"}, got)
}

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient("", t.TempDir())
	assert.ErrorIs(t, err, ErrNoIdentity)

	_, err = NewClient("nobody", t.TempDir())
	assert.Error(t, err)

	c, err := NewClient("Bob@X", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "bob@x", c.Email)
}

func TestLoadClient(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{"email":"a@x","sync_folder":"`+filepath.ToSlash(dir)+`","port":8080}`), 0o644))

	c, err := LoadClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "a@x", c.Email)
	assert.Equal(t, filepath.Join(dir, "a@x"), c.Home())
}

func TestGlob_RecursiveAcrossDatasites(t *testing.T) {
	root := t.TempDir()
	c, err := NewClient("me@x", root)
	require.NoError(t, err)

	touch(t, filepath.Join(root, "a@x", "public", "fedreduce", "join", "me@x", "p.yaml.join"))
	touch(t, filepath.Join(root, "b@x", "public", "fedreduce", "running", "me@x", "p.yaml.join"))
	touch(t, filepath.Join(root, "b@x", "public", "fedreduce", "running", "me@x", "p.log"))
	touch(t, filepath.Join(root, "b@x", "public", "other", "q.yaml.join"))
	touch(t, filepath.Join(root, "c@x", ".staging", "public", "fedreduce", "join", "x.yaml.join"))

	matches, err := c.Glob("**/public/fedreduce/**/*.yaml.join")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a@x", matches[0].Datasite)
	assert.Equal(t, "b@x", matches[1].Datasite)

	matches, err = c.Glob("*/public/fedreduce/join/me@x/p.yaml.join")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a@x", matches[0].Datasite)
}

func TestGlob_DoubleStarMatchesZeroSegments(t *testing.T) {
	root := t.TempDir()
	c, err := NewClient("me@x", root)
	require.NoError(t, err)
	touch(t, filepath.Join(root, "a@x", "top.yaml"))

	matches, err := c.Glob("**/*.yaml")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestGlob_BadPattern(t *testing.T) {
	c, err := NewClient("me@x", t.TempDir())
	require.NoError(t, err)
	_, err = c.Glob("[")
	assert.Error(t, err)
}

func TestDatasites(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b@x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a@x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "apps"), 0o755))
	c, err := NewClient("a@x", root)
	require.NoError(t, err)

	ids, err := c.Datasites()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x", "b@x"}, ids)
}

func TestFilePermissions_EnsureWritesAndReads(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	var ps FilePermissions

	require.NoError(t, ps.Ensure(dir, Shared("b@x", "a@x", "a@x")))

	got, err := ReadPermission(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x", "b@x"}, got.Read)
	assert.Equal(t, got.Read, got.Admin)
	assert.Equal(t, got.Read, got.Write)

	// Re-applying the same permission is a no-op.
	require.NoError(t, ps.Ensure(dir, Shared("a@x", "b@x")))
}

func TestMineWithPublicRead(t *testing.T) {
	p := MineWithPublicRead("a@x")
	assert.Equal(t, []string{"a@x"}, p.Admin)
	assert.Contains(t, p.Read, Everyone)
}
