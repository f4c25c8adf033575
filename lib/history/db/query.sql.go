package db

import (
	"context"
	"database/sql"
)

const createRun = `-- name: CreateRun :one
insert into run(started_at, finished_at, final_state, attempts, submissions, error, notify_error)
values (?, ?, ?, ?, ?, ?, ?)
returning id
`

type CreateRunParams struct {
	StartedAt   int64
	FinishedAt  int64
	FinalState  string
	Attempts    int64
	Submissions int64
	Error       sql.NullString
	NotifyError sql.NullString
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createRun,
		arg.StartedAt,
		arg.FinishedAt,
		arg.FinalState,
		arg.Attempts,
		arg.Submissions,
		arg.Error,
		arg.NotifyError,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createTransition = `-- name: CreateTransition :exec
insert into transition(run_id, seq, state, attempt)
values (?, ?, ?, ?)
`

type CreateTransitionParams struct {
	RunID   int64
	Seq     int64
	State   string
	Attempt int64
}

func (q *Queries) CreateTransition(ctx context.Context, arg CreateTransitionParams) error {
	_, err := q.db.ExecContext(ctx, createTransition,
		arg.RunID,
		arg.Seq,
		arg.State,
		arg.Attempt,
	)
	return err
}

const getRecentRuns = `-- name: GetRecentRuns :many
select id, started_at, finished_at, final_state, attempts, submissions, error, notify_error from run
order by started_at desc, id desc
limit ?
`

func (q *Queries) GetRecentRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, getRecentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(
			&i.ID,
			&i.StartedAt,
			&i.FinishedAt,
			&i.FinalState,
			&i.Attempts,
			&i.Submissions,
			&i.Error,
			&i.NotifyError,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTransitions = `-- name: GetTransitions :many
select run_id, seq, state, attempt from transition
where run_id = ?
order by seq asc
`

func (q *Queries) GetTransitions(ctx context.Context, runID int64) ([]Transition, error) {
	rows, err := q.db.QueryContext(ctx, getTransitions, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transition
	for rows.Next() {
		var i Transition
		if err := rows.Scan(
			&i.RunID,
			&i.Seq,
			&i.State,
			&i.Attempt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
