package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReadPasses returns the most recent passes, oldest first. limit <= 0
// returns all of them.
func (l *Ledger) ReadPasses(ctx context.Context, limit int) ([]Pass, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, seq, identity, started_at, finished_at, errors FROM (
			SELECT * FROM passes ORDER BY seq DESC, id COLLATE BINARY DESC LIMIT ?
		) ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	passes := []Pass{}
	for rows.Next() {
		var (
			p                 Pass
			started, finished string
		)
		if err := rows.Scan(&p.ID, &p.Seq, &p.Identity, &started, &finished, &p.Errors); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		if p.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("pass %s: %w", p.ID, err)
		}
		if p.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("pass %s: %w", p.ID, err)
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return passes, nil
}

// ReadSteps returns step runs for project (all projects when empty),
// ordered by seq. limit <= 0 returns all rows.
func (l *Ledger) ReadSteps(ctx context.Context, project string, limit int) ([]StepRun, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, pass_id, seq, project, position, role, status, attempts, value, output, error, elapsed_ms FROM (
			SELECT * FROM step_runs
			WHERE ? = '' OR project = ?
			ORDER BY seq DESC, id DESC LIMIT ?
		) ORDER BY seq ASC, id ASC
	`, project, project, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query step runs: %w", err)
	}
	defer rows.Close()

	runs := []StepRun{}
	for rows.Next() {
		var (
			r       StepRun
			value   sql.NullInt64
			elapsed int64
		)
		if err := rows.Scan(&r.ID, &r.PassID, &r.Seq, &r.Project, &r.Position, &r.Role,
			&r.Status, &r.Attempts, &value, &r.Output, &r.Error, &elapsed); err != nil {
			return nil, fmt.Errorf("scan step run: %w", err)
		}
		if value.Valid {
			v := value.Int64
			r.Value = &v
		}
		r.Elapsed = time.Duration(elapsed) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step runs: %w", err)
	}
	return runs, nil
}

// ReadTransitions returns transitions for project (all when empty),
// ordered by seq.
func (l *Ledger) ReadTransitions(ctx context.Context, project string) ([]Transition, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, pass_id, seq, project, author, kind, from_state, to_state, error
		FROM transitions
		WHERE ? = '' OR project = ?
		ORDER BY seq ASC, id ASC
	`, project, project)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	out := []Transition{}
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.ID, &t.PassID, &t.Seq, &t.Project, &t.Author, &t.Kind, &t.From, &t.To, &t.Error); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// sqlLimit maps "no limit" onto SQLite's LIMIT -1.
func sqlLimit(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}
