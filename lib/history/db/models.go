package db

import "database/sql"

type Run struct {
	ID          int64
	StartedAt   int64
	FinishedAt  int64
	FinalState  string
	Attempts    int64
	Submissions int64
	Error       sql.NullString
	NotifyError sql.NullString
}

type Transition struct {
	RunID   int64
	Seq     int64
	State   string
	Attempt int64
}
