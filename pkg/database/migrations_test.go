package database

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	runner, err := NewMigrationsRunner(nil)
	if err != nil {
		t.Fatalf("Expected NewMigrationsRunner to succeed: %v", err)
	}

	migrations := runner.Migrations()
	if len(migrations) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(migrations))
	}

	expected := []struct {
		version int
		name    string
		table   string
	}{
		{version: 1, name: "create_readings", table: "readings"},
		{version: 2, name: "create_alerts", table: "alerts"},
	}
	for i, e := range expected {
		m := migrations[i]
		if m.Version != e.version {
			t.Errorf("Expected version %d, got %d", e.version, m.Version)
		}
		if m.Name != e.name {
			t.Errorf("Expected name %s, got %s", e.name, m.Name)
		}
		if !strings.Contains(m.Up, "CREATE TABLE IF NOT EXISTS "+e.table) {
			t.Errorf("Expected migration %d to create %s", m.Version, e.table)
		}
		if !strings.Contains(m.Down, "DROP TABLE IF EXISTS "+e.table) {
			t.Errorf("Expected migration %d to drop %s on revert", m.Version, e.table)
		}
	}
}

func TestLoadMigrations_FromFS(t *testing.T) {
	testCases := []struct {
		name        string
		files       fstest.MapFS
		expectError bool
		expectCount int
	}{
		{
			name: "Paired scripts sorted by version",
			files: fstest.MapFS{
				"m/000010_second.up.sql":   {Data: []byte("SELECT 2")},
				"m/000010_second.down.sql": {Data: []byte("SELECT -2")},
				"m/000002_first.up.sql":    {Data: []byte("SELECT 1")},
				"m/000002_first.down.sql":  {Data: []byte("SELECT -1")},
				"m/README.md":              {Data: []byte("ignored")},
			},
			expectCount: 2,
		},
		{
			name: "Missing down script",
			files: fstest.MapFS{
				"m/000001_only_up.up.sql": {Data: []byte("SELECT 1")},
			},
			expectError: true,
		},
		{
			name: "Invalid version prefix is skipped",
			files: fstest.MapFS{
				"m/abc_bad.up.sql":   {Data: []byte("SELECT 1")},
				"m/abc_bad.down.sql": {Data: []byte("SELECT 1")},
			},
			expectCount: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			migrations, err := loadMigrations(tc.files, "m")
			if tc.expectError {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if len(migrations) != tc.expectCount {
				t.Fatalf("Expected %d migrations, got %d", tc.expectCount, len(migrations))
			}
			for i := 1; i < len(migrations); i++ {
				if migrations[i-1].Version >= migrations[i].Version {
					t.Error("Expected migrations sorted by version")
				}
			}
		})
	}
}

func TestEnableDisableLogging(t *testing.T) {
	runner, err := NewMigrationsRunner(nil)
	if err != nil {
		t.Fatalf("Expected NewMigrationsRunner to succeed: %v", err)
	}

	runner.DisableLogging()
	runner.EnableLogging()
	if runner.logger == nil {
		t.Error("Expected logger to be set")
	}
}

func TestRun(t *testing.T) {
	db := setupTestDB(t)
	if db == nil {
		t.Skip("Skipping test that requires real database connection")
	}
	defer db.Close()

	if err := dropAllTables(db); err != nil {
		t.Fatalf("Failed to drop tables: %v", err)
	}

	runner, err := NewMigrationsRunner(db)
	if err != nil {
		t.Fatalf("Expected NewMigrationsRunner to succeed: %v", err)
	}
	runner.DisableLogging()

	pending, err := runner.Pending()
	if err != nil {
		t.Fatalf("Expected Pending to succeed: %v", err)
	}
	if len(pending) != len(runner.migrations) {
		t.Errorf("Expected all %d migrations pending, got %d", len(runner.migrations), len(pending))
	}

	if err := runner.Run(); err != nil {
		t.Fatalf("Expected Run to succeed: %v", err)
	}
	if err := runner.Run(); err != nil {
		t.Fatalf("Expected second Run to succeed: %v", err)
	}

	ctx := context.Background()
	applied, err := runner.getAppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("Expected getAppliedMigrations to succeed: %v", err)
	}
	if len(applied) != len(runner.migrations) {
		t.Errorf("Expected %d applied migrations, got %d", len(runner.migrations), len(applied))
	}

	reverted, err := runner.Rollback(ctx)
	if err != nil || !reverted {
		t.Fatalf("Expected Rollback to revert a migration, got %v, %v", reverted, err)
	}
	pending, err = runner.Pending()
	if err != nil {
		t.Fatalf("Expected Pending to succeed: %v", err)
	}
	if len(pending) != 1 || pending[0].Name != "create_alerts" {
		t.Errorf("Expected create_alerts to be pending after rollback, got %v", pending)
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

	runner, err := NewMigrationsRunner(db)
	if err != nil {
		t.Fatalf("Expected NewMigrationsRunner to succeed: %v", err)
	}
	runner.DisableLogging()
	runner.migrations = append(runner.migrations, Migration{Version: 99999, Name: "invalid", Up: "THIS IS INVALID SQL;"})

	err = runner.Run()
	if err == nil || !strings.Contains(err.Error(), "failed to apply migration") {
		t.Fatalf("Expected apply failure, got %v", err)
	}

	applied, err := runner.getAppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("Expected getAppliedMigrations to succeed: %v", err)
	}
	if applied[99999] {
		t.Error("Expected invalid migration to not be recorded")
	}
}
