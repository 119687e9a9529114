package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"bgmtrack/lib/telemetry"

	_ "modernc.org/sqlite"
)

type DBParams struct {
	Name string
	// executed on open, "already exists" errors are ignored so a schema
	// can be applied to a reused file
	Schema string
}

func SetupDB(t testing.TB, params DBParams) (*sql.DB, func()) {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(params.Schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}

	return db, cleanup
}
