package pipe

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/fedreduce/internal/tmpl"
)

func TestParse_Forms(t *testing.T) {
	tests := []struct {
		in   string
		want Config
	}{
		{`StaticPipe(5)`, Static(5)},
		{`StaticPipe( -3 )`, Static(-3)},
		{`StaticPipe()`, Static(0)},
		{`FilePipe("a/{datasite}/out")`, File("a/{datasite}/out")},
		{`FilePipe('b/out')`, File("b/out")},
		{`42`, Static(42)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{`SocketPipe(1)`, `StaticPipe(abc)`, `FilePipe()`, `hello`} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	src := `
call: 'FilePipe("{prev_datasite}/out")'
static: StaticPipe(5)
mapped_static: {type: StaticPipe, value: 3}
mapped_file:
  type: FilePipe
  path: "{datasite}/x"
bare: 7
`
	var got map[string]Config
	require.NoError(t, yaml.Unmarshal([]byte(src), &got))

	assert.Equal(t, File("{prev_datasite}/out"), got["call"])
	assert.Equal(t, Static(5), got["static"])
	assert.Equal(t, Static(3), got["mapped_static"])
	assert.Equal(t, File("{datasite}/x"), got["mapped_file"])
	assert.Equal(t, Static(7), got["bare"])
}

func TestConfig_UnmarshalYAMLUnknownType(t *testing.T) {
	var c Config
	err := yaml.Unmarshal([]byte(`{type: HTTPPipe, path: x}`), &c)
	assert.ErrorContains(t, err, "unknown type")
}

func TestConfig_MarshalYAMLUsesCallForm(t *testing.T) {
	out, err := yaml.Marshal(map[string]Config{"in": File("a/b")})
	require.NoError(t, err)

	var back map[string]Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, File("a/b"), back["in"])
}

func TestConfig_ResolveFileJoinsRoot(t *testing.T) {
	root := t.TempDir()
	p, err := File("{datasite}/out").Resolve(root, tmpl.Vars{tmpl.VarDatasite: "a@x"})
	require.NoError(t, err)

	fp, ok := p.(*FilePipe)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(root, "a@x", "out"), fp.Path)
}

func TestConfig_ResolveUnresolvedPlaceholder(t *testing.T) {
	_, err := File("{next_datasite}/out").Resolve(t.TempDir(), tmpl.Vars{})
	assert.ErrorIs(t, err, tmpl.ErrUnresolvedPlaceholder)
}

func TestConfig_ResolveStatic(t *testing.T) {
	p, err := Static(11).Resolve("", nil)
	require.NoError(t, err)
	v, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, int64(11), v)
}
