package trackdb

import (
	"path/filepath"
	"testing"
)

// TestPragmasApplied verifies that essential PRAGMAs are set on all databases
func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout=5000, got %d", busyTimeout)
	}

	var synchronous int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&synchronous); err != nil {
		t.Fatalf("Failed to query synchronous: %v", err)
	}
	if synchronous != 1 { // 1 = NORMAL
		t.Errorf("Expected synchronous=1 (NORMAL), got %d", synchronous)
	}
}

// TestNewDBCreatesSchema verifies migrations run on open and produce the
// expected tables.
func TestNewDBCreatesSchema(t *testing.T) {
	db := newTestDB(t)

	tables := []string{"events", "hits", "event_t0", "reco_runs", "tracklets", "tracklet_hits", "schema_migrations"}
	for _, table := range tables {
		var count int
		err := db.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to check table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestMigrateVersionFreshDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("Expected version 0 clean on fresh db, got %d (dirty=%v)", version, dirty)
	}
}

func TestMigrateUpDownCycle(t *testing.T) {
	db := newTestDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Fatal("Database should not be dirty after migrate up")
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("Expected version %d after NewDB, got %d", latest, version)
	}

	if err := db.CheckMigrations(migrationsFS); err != nil {
		t.Errorf("CheckMigrations on current db should pass, got %v", err)
	}

	if err := db.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	if err := db.CheckMigrations(migrationsFS); err == nil {
		t.Error("CheckMigrations should report an out of date schema")
	}

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	// Idempotent when already at latest.
	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp at latest should be a no-op, got %v", err)
	}
}

func TestBaselineAtVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	if err := db.BaselineAtVersion(1); err != nil {
		t.Fatalf("BaselineAtVersion failed: %v", err)
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}
	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("Expected clean version 1 after baseline, got %d (dirty=%v)", version, dirty)
	}

	// A second baseline must refuse to overwrite history.
	if err := db.BaselineAtVersion(1); err == nil {
		t.Error("Expected error baselining twice, got nil")
	}
}

func TestGetMigrationStatus(t *testing.T) {
	db := newTestDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	status, err := db.GetMigrationStatus(migrationsFS)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if exists, ok := status["schema_migrations_exists"].(bool); !ok || !exists {
		t.Errorf("Expected schema_migrations_exists=true, got %v", status["schema_migrations_exists"])
	}
	if dirty, ok := status["dirty"].(bool); !ok || dirty {
		t.Errorf("Expected dirty=false, got %v", status["dirty"])
	}
}
