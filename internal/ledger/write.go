package ledger

import (
	"context"
	"fmt"
	"time"
)

// BeginPass inserts a pass row. Re-beginning an existing ID is a no-op.
func (l *Ledger) BeginPass(ctx context.Context, id, identity string, startedAt time.Time) (Pass, error) {
	p := Pass{ID: id, Seq: l.seq.Next(), Identity: identity, StartedAt: startedAt}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO passes (id, seq, identity, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, p.ID, p.Seq, p.Identity, formatTime(p.StartedAt))
	if err != nil {
		return Pass{}, fmt.Errorf("begin pass: %w", err)
	}
	return p, nil
}

// FinishPass stamps a pass with its end time and error count.
func (l *Ledger) FinishPass(ctx context.Context, id string, finishedAt time.Time, errors int) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE passes SET finished_at = ?, errors = ? WHERE id = ?
	`, formatTime(finishedAt), errors, id)
	if err != nil {
		return fmt.Errorf("finish pass: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish pass: unknown pass %q", id)
	}
	return nil
}

// RecordStep appends a step run. A zero Seq is assigned from the ledger's
// sequence; the assigned row is returned.
func (l *Ledger) RecordStep(ctx context.Context, r StepRun) (StepRun, error) {
	if r.Seq == 0 {
		r.Seq = l.seq.Next()
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO step_runs
		(pass_id, seq, project, position, role, status, attempts, value, output, error, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.PassID,
		r.Seq,
		r.Project,
		r.Position,
		r.Role,
		r.Status,
		r.Attempts,
		r.Value,
		r.Output,
		r.Error,
		r.Elapsed.Milliseconds(),
	)
	if err != nil {
		return StepRun{}, fmt.Errorf("record step: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return r, nil
}

// RecordTransition appends a lifecycle transition.
func (l *Ledger) RecordTransition(ctx context.Context, t Transition) (Transition, error) {
	if t.Seq == 0 {
		t.Seq = l.seq.Next()
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO transitions
		(pass_id, seq, project, author, kind, from_state, to_state, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.PassID, t.Seq, t.Project, t.Author, t.Kind, t.From, t.To, t.Error)
	if err != nil {
		return Transition{}, fmt.Errorf("record transition: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	return t, nil
}
