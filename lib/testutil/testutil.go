package testutil

import (
	"database/sql"
	"log/slog"
	"strings"
	"testing"

	"github.com/sankforever/gkcx/lib/telemetry"

	_ "modernc.org/sqlite"
)

// SetupDB opens an in-memory sqlite database with the given schema, it is
// closed when the test ends.
func SetupDB(t testing.TB, schema string) *sql.DB {
	sqlite, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// every connection to :memory: gets its own database
	sqlite.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlite.Close()
	})

	_, err = sqlite.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}
	return sqlite
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// SetupSlog routes the default logger into the test log.
func SetupSlog(t testing.TB) {
	previous := slog.Default()
	slog.SetDefault(telemetry.NewLogger(testWriter{t: t}, true))
	t.Cleanup(func() {
		slog.SetDefault(previous)
	})
}
