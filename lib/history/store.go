package history

import (
	"context"
	"database/sql"
	"time"

	"github.com/sankforever/gkcx/lib/history/db"
	"github.com/sankforever/gkcx/lib/timezone"

	_ "modernc.org/sqlite"
)

type Step struct {
	State   string
	Attempt int
}

// Run is one invocation of the poller.
type Run struct {
	ID          int64
	StartedAt   time.Time
	FinishedAt  time.Time
	Final       string
	Attempts    int
	Submissions int
	// Error is the reason the run was aborted.
	Error       string
	NotifyError string
	Steps       []Step
}

func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Store struct {
	db  *sql.DB
	qry *db.Queries
}

// Open opens (and creates if necessary) the sqlite database at path.
func Open(path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = database.Exec(db.Schema)
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func NewStore(database *sql.DB) Store {
	return Store{
		db:  database,
		qry: db.New(database),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s Store) Record(ctx context.Context, run Run) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	id, err := txqry.CreateRun(ctx, db.CreateRunParams{
		StartedAt:   run.StartedAt.UnixMilli(),
		FinishedAt:  run.FinishedAt.UnixMilli(),
		FinalState:  run.Final,
		Attempts:    int64(run.Attempts),
		Submissions: int64(run.Submissions),
		Error:       nullString(run.Error),
		NotifyError: nullString(run.NotifyError),
	})
	if err != nil {
		return 0, err
	}

	for i, step := range run.Steps {
		err = txqry.CreateTransition(ctx, db.CreateTransitionParams{
			RunID:   id,
			Seq:     int64(i),
			State:   step.State,
			Attempt: int64(step.Attempt),
		})
		if err != nil {
			return 0, err
		}
	}

	return id, tx.Commit()
}

// Recent returns the latest runs first, steps are included when withSteps
// is set.
func (s Store) Recent(ctx context.Context, limit int, withSteps bool) ([]Run, error) {
	rows, err := s.qry.GetRecentRuns(ctx, int64(limit))
	if err != nil {
		return nil, err
	}

	runs := make([]Run, len(rows))
	for i, row := range rows {
		runs[i] = Run{
			ID:          row.ID,
			StartedAt:   time.UnixMilli(row.StartedAt).In(timezone.Location),
			FinishedAt:  time.UnixMilli(row.FinishedAt).In(timezone.Location),
			Final:       row.FinalState,
			Attempts:    int(row.Attempts),
			Submissions: int(row.Submissions),
			Error:       row.Error.String,
			NotifyError: row.NotifyError.String,
		}
		if !withSteps {
			continue
		}

		transitions, err := s.qry.GetTransitions(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range transitions {
			runs[i].Steps = append(runs[i].Steps, Step{State: t.State, Attempt: int(t.Attempt)})
		}
	}
	return runs, nil
}
