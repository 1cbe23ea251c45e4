package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRingSum_Golden(t *testing.T) {
	s := loadScenario(t, "ring_sum")

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Len(t, result.Trace, len(s.Flow))
	assert.True(t, result.Trace[len(result.Trace)-1].Failed, "a complete project cannot be started again")
}

func TestLeaveBeforeStart(t *testing.T) {
	result, err := Run(loadScenario(t, "leave_before_start"))
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.True(t, result.Trace[4].Failed)
	assert.True(t, result.Trace[6].Failed)
}

func TestRun_ReportsExpectMismatch(t *testing.T) {
	s := loadScenario(t, "ring_sum")
	s.Flow[2].Expect.Transitions = []string{"start alice@x/sum invite->running"}
	zero := 0
	s.Flow[3].Expect.Errors = &zero

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "flow[2] pass as alice@x: transitions")
	assert.Contains(t, result.Errors[1], "flow[3] pass as bob@x: errors: expected 0, got 1")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	s := &Scenario{
		Name:        "unexpected",
		Description: "leave without a marker",
		Datasites:   []string{"bob@x"},
		Flow:        []FlowStep{{Action: ActionLeave, As: "bob@x", Source: "alice@x/sum"}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error")
}

func TestRun_FailedAssertions(t *testing.T) {
	s := loadScenario(t, "leave_before_start")
	s.Assertions = []Assertion{
		{Type: AssertFileEquals, Path: "alice@x/public/fedreduce/invite/sum/sum.yaml", Content: "nope"},
		{Type: AssertFileAbsent, Path: "alice@x/public/fedreduce/invite/sum"},
		{Type: AssertTraceCount, Item: "start alice@x/sum invite->running", Count: 1},
		{Type: AssertStepValue, As: "alice@x", Project: "sum", Value: 5},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "file_equals")
	assert.Contains(t, result.Errors[1], "present")
	assert.Contains(t, result.Errors[2], "0 time(s)")
	assert.Contains(t, result.Errors[3], "no completed step recorded")
}

func TestAssertTraceOrder(t *testing.T) {
	applied := []string{"a", "x", "b", "c"}

	assert.NoError(t, assertTraceOrder(applied, Assertion{Type: AssertTraceOrder, Items: []string{"a", "b", "c"}}))
	assert.NoError(t, assertTraceOrder(applied, Assertion{Type: AssertTraceOrder, Items: []string{"x", "c"}}))

	err := assertTraceOrder(applied, Assertion{Type: AssertTraceOrder, Items: []string{"b", "a"}})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, `stopped before "a"`, ae.Actual)
	assert.Contains(t, err.Error(), "[2] x")
}

func TestLoadScenario_ResolvesInviteSource(t *testing.T) {
	s := loadScenario(t, "ring_sum")
	assert.Equal(t, filepath.Join("testdata", "scenarios", "sum.yaml"), s.Flow[0].Source)
	assert.Equal(t, "alice@x/sum", s.Flow[1].Source)
	assert.Zero(t, s.StepTimeout)
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown field", "name: x\ndescription: y\ndatasites: [a@x]\nflows: []\n", "field flows not found"},
		{"no name", "description: y\ndatasites: [a@x]\nflow: [{action: pass, as: a@x}]\n", "name is required"},
		{"no datasites", "name: x\ndescription: y\nflow: [{action: pass, as: a@x}]\n", "datasites list is required"},
		{"unknown action", "name: x\ndescription: y\ndatasites: [a@x]\nflow: [{action: fly, as: a@x}]\n", `unknown action "fly"`},
		{"stranger", "name: x\ndescription: y\ndatasites: [a@x]\nflow: [{action: pass, as: b@x}]\n", "not a scenario datasite"},
		{"no source", "name: x\ndescription: y\ndatasites: [a@x]\nflow: [{action: join, as: a@x}]\n", "join requires source"},
		{"bad assertion", "name: x\ndescription: y\ndatasites: [a@x]\nflow: [{action: pass, as: a@x}]\nassertions: [{type: vibes}]\n", `unknown assertion type "vibes"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_StepTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\ndescription: y\ndatasites: [a@x]\nstep_timeout: 10s\nflow: [{action: pass, as: a@x}]\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "10s", s.StepTimeout.String())
}
