package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

var t0 = time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)

func TestOpen_CreatesDatabaseWithSchema(t *testing.T) {
	l, path := openTestLedger(t)

	_, err := os.Stat(path)
	require.NoError(t, err)

	for _, table := range []string{"passes", "step_runs", "transitions", "settings"} {
		var name string
		err := l.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}

	var version int
	require.NoError(t, l.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpen_Pragmas(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	assert.NoError(t, l.verifyPragma(ctx, "journal_mode", "wal"))
	assert.NoError(t, l.verifyPragma(ctx, "synchronous", "1"))
	assert.NoError(t, l.verifyPragma(ctx, "busy_timeout", "5000"))
	assert.NoError(t, l.verifyPragma(ctx, "foreign_keys", "1"))
}

func TestOpen_ResumesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	l1, err := Open(path)
	require.NoError(t, err)
	_, err = l1.BeginPass(ctx, "pass-1", "alice@x", t0)
	require.NoError(t, err)
	_, err = l1.RecordStep(ctx, StepRun{PassID: "pass-1", Project: "sum", Role: "first", Status: "completed", Attempts: 1})
	require.NoError(t, err)
	require.NoError(t, l1.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()
	assert.Equal(t, int64(2), l2.seq.Current())

	p, err := l2.BeginPass(ctx, "pass-2", "alice@x", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Seq)
}

func TestPasses_BeginFinishRead(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	_, err := l.BeginPass(ctx, "pass-1", "alice@x", t0)
	require.NoError(t, err)
	require.NoError(t, l.FinishPass(ctx, "pass-1", t0.Add(3*time.Second), 2))
	_, err = l.BeginPass(ctx, "pass-2", "alice@x", t0.Add(time.Minute))
	require.NoError(t, err)

	passes, err := l.ReadPasses(ctx, 0)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, "pass-1", passes[0].ID)
	assert.Equal(t, t0, passes[0].StartedAt)
	assert.Equal(t, t0.Add(3*time.Second), passes[0].FinishedAt)
	assert.Equal(t, 2, passes[0].Errors)
	assert.True(t, passes[1].FinishedAt.IsZero())

	latest, err := l.ReadPasses(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "pass-2", latest[0].ID)
}

func TestFinishPass_Unknown(t *testing.T) {
	l, _ := openTestLedger(t)
	assert.Error(t, l.FinishPass(context.Background(), "nope", t0, 0))
}

func TestBeginPass_Idempotent(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	_, err := l.BeginPass(ctx, "pass-1", "alice@x", t0)
	require.NoError(t, err)
	_, err = l.BeginPass(ctx, "pass-1", "alice@x", t0)
	require.NoError(t, err)

	passes, err := l.ReadPasses(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, passes, 1)
}

func TestSteps_RecordAndReadByProject(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	_, err := l.BeginPass(ctx, "pass-1", "bob@x", t0)
	require.NoError(t, err)

	v := int64(15)
	_, err = l.RecordStep(ctx, StepRun{
		PassID: "pass-1", Project: "sum", Position: 1, Role: "foreach",
		Status: "completed", Attempts: 3, Value: &v, Output: "bob@x/out", Elapsed: 2 * time.Second,
	})
	require.NoError(t, err)
	_, err = l.RecordStep(ctx, StepRun{
		PassID: "pass-1", Project: "other", Position: 0, Role: "first",
		Status: "timed_out", Attempts: 121, Error: "step timed out",
	})
	require.NoError(t, err)

	runs, err := l.ReadSteps(ctx, "sum", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Value)
	assert.Equal(t, int64(15), *runs[0].Value)
	assert.Equal(t, 2*time.Second, runs[0].Elapsed)
	assert.Equal(t, "bob@x/out", runs[0].Output)

	all, err := l.ReadSteps(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Nil(t, all[1].Value)
	assert.Less(t, all[0].Seq, all[1].Seq)
}

func TestSteps_RequirePass(t *testing.T) {
	l, _ := openTestLedger(t)
	_, err := l.RecordStep(context.Background(), StepRun{PassID: "missing", Project: "sum", Role: "first", Status: "completed"})
	assert.Error(t, err, "foreign key on pass_id")
}

func TestTransitions_RecordAndRead(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	_, err := l.BeginPass(ctx, "pass-1", "alice@x", t0)
	require.NoError(t, err)

	_, err = l.RecordTransition(ctx, Transition{
		PassID: "pass-1", Project: "sum", Author: "alice@x",
		Kind: "author_start", From: "invite", To: "running",
	})
	require.NoError(t, err)

	got, err := l.ReadTransitions(ctx, "sum")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "author_start", got[0].Kind)
	assert.Equal(t, "running", got[0].To)

	none, err := l.ReadTransitions(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSettings_RoundTrip(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	var last time.Time
	ok, err := l.Setting(ctx, SettingLastRun, &last)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.SetSetting(ctx, SettingLastRun, t0))
	require.NoError(t, l.SetSetting(ctx, SettingLastRun, t0.Add(time.Hour)))

	ok, err = l.Setting(ctx, SettingLastRun, &last)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, t0.Add(time.Hour).Equal(last))

	all, err := l.Settings(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-11-01T13:00:00Z"`, string(all[SettingLastRun]))
}

func TestSequence(t *testing.T) {
	s := NewSequenceAt(10)
	assert.Equal(t, int64(11), s.Next())
	assert.Equal(t, int64(11), s.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('7'), a[14], "version nibble")
}
