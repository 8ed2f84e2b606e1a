package database

import (
	"context"
	"strings"
	"testing"
)

func TestLoadMigrations(t *testing.T) {
	// loading only reads the embedded files
	runner, err := NewMigrationsRunner(nil, quietLogger())
	if err != nil {
		t.Fatalf("Expected NewMigrationsRunner to succeed: %v", err)
	}

	migrations := runner.Migrations()
	if len(migrations) != 3 {
		t.Fatalf("Expected 3 migrations, got %d", len(migrations))
	}

	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Errorf("Expected migrations to be sorted by version, but %d >= %d",
				migrations[i-1].Version, migrations[i].Version)
		}
	}

	if migrations[0].Name != "observations" {
		t.Errorf("Expected first migration to be observations, got %s", migrations[0].Name)
	}

	for _, migration := range migrations {
		if migration.SQL == "" {
			t.Errorf("Expected migration %d SQL to be non-empty", migration.Version)
		}
		if strings.Contains(migration.SQL, "DROP TABLE") {
			t.Errorf("Migration %d loaded a down file", migration.Version)
		}
	}
}

func TestParseMigrationFilename(t *testing.T) {
	testCases := []struct {
		filename    string
		wantVersion int
		wantName    string
		wantOK      bool
	}{
		{"000001_observations.up.sql", 1, "observations", true},
		{"000002_publish_progress.up.sql", 2, "publish_progress", true},
		{"000001_observations.down.sql", 0, "", false},
		{"readme.md", 0, "", false},
		{"abc_name.up.sql", 0, "", false},
		{"000004.up.sql", 0, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tc.filename)
			if ok != tc.wantOK || version != tc.wantVersion || name != tc.wantName {
				t.Errorf("Expected (%d, %q, %v), got (%d, %q, %v)",
					tc.wantVersion, tc.wantName, tc.wantOK, version, name, ok)
			}
		})
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer db.Close()

	if err := dropAllTables(db); err != nil {
		t.Fatalf("Failed to drop tables: %v", err)
	}

	runner, err := NewMigrationsRunner(db, quietLogger())
	if err != nil {
		t.Fatalf("Expected NewMigrationsRunner to succeed: %v", err)
	}

	ctx := context.Background()
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	applied, err := runner.getAppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("Failed to read applied migrations: %v", err)
	}
	if len(applied) != 3 {
		t.Errorf("Expected 3 applied migrations, got %d", len(applied))
	}

	for _, table := range []string{"observations", "publish_progress", "netatmo_tokens"} {
		var exists bool
		err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE tablename = $1)`, table).Scan(&exists)
		if err != nil || !exists {
			t.Errorf("Expected table %s to exist (err: %v)", table, err)
		}
	}
}

func TestRun_TransactionRollback(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer db.Close()

	if err := dropAllTables(db); err != nil {
		t.Fatalf("Failed to drop tables: %v", err)
	}

	runner := &MigrationsRunner{
		db:     db,
		logger: quietLogger(),
		migrations: []Migration{
			{Version: 1, Name: "broken", SQL: "CREATE TABLE broken (id INT); SELECT * FROM missing_table;"},
		},
	}

	if err := runner.Run(context.Background()); err == nil {
		t.Fatal("Expected broken migration to fail")
	}

	var exists bool
	if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM pg_tables WHERE tablename = 'broken')`).Scan(&exists); err != nil {
		t.Fatalf("Failed to query pg_tables: %v", err)
	}
	if exists {
		t.Error("Expected failed migration to be rolled back")
	}
}
