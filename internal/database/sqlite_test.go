package database

import (
	"path/filepath"
	"testing"

	"github.com/solsticelabs/beacon/internal/identity"
	"go.uber.org/zap"
)

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.db")

	db, err := OpenSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	for _, model := range identity.Models() {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}

	var applied int64
	if err := db.Model(&migrationRecord{}).Count(&applied).Error; err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", applied)
	}
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.db")

	first, err := OpenSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	if err := first.Create(&identity.Client{ID: "c-1", ClientID: "spa", ClientName: "SPA", Enabled: true}).Error; err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	sqlDB, err := first.DB()
	if err != nil {
		t.Fatalf("failed to access connection: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("failed to close connection: %v", err)
	}

	second, err := OpenSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}

	var clients int64
	if err := second.Model(&identity.Client{}).Count(&clients).Error; err != nil {
		t.Fatalf("failed to count clients: %v", err)
	}
	if clients != 1 {
		t.Fatalf("expected seeded client to survive reopen, got %d", clients)
	}

	var applied int64
	if err := second.Model(&migrationRecord{}).Count(&applied).Error; err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("migrations must not reapply, got %d records", applied)
	}
}

func TestMigrationsRepairLegacyRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.db")

	db, err := OpenSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	// Simulate legacy rows and a cleared migration ledger, then reopen.
	if err := db.Exec("INSERT INTO clients (id, client_id, client_name, enabled) VALUES ('c-legacy', 'legacy', 'Legacy', 1);").Error; err != nil {
		t.Fatalf("failed to insert client: %v", err)
	}
	if err := db.Exec("INSERT INTO client_cors_origins (id, client_id, origin) VALUES ('o-legacy', 'c-legacy', '  https://legacy.example.com ');").Error; err != nil {
		t.Fatalf("failed to insert origin: %v", err)
	}
	if err := db.Exec("INSERT INTO users (id, user_name, normalized_user_name, email, normalized_email, password_hash, concurrency_stamp, updated_at) VALUES ('u-legacy', 'legacy', '', 'legacy@example.com', '', '', 's-1', '2020-01-01 00:00:00');").Error; err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}
	if err := db.Exec("DELETE FROM db_migrations;").Error; err != nil {
		t.Fatalf("failed to clear ledger: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access connection: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("failed to close connection: %v", err)
	}

	reopened, err := OpenSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	var origin string
	if err := reopened.Raw("SELECT origin FROM client_cors_origins WHERE id = 'o-legacy';").Scan(&origin).Error; err != nil {
		t.Fatalf("failed to read origin: %v", err)
	}
	if origin != "https://legacy.example.com" {
		t.Fatalf("expected trimmed origin, got %q", origin)
	}

	var normalized string
	if err := reopened.Raw("SELECT normalized_user_name FROM users WHERE id = 'u-legacy';").Scan(&normalized).Error; err != nil {
		t.Fatalf("failed to read user: %v", err)
	}
	if normalized != "LEGACY" {
		t.Fatalf("expected backfilled normalized username, got %q", normalized)
	}
}
