package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestTeamCartOrderMigrationContainsConstraints(t *testing.T) {
	content := readEmbedded(t, "*_create_team_cart_orders.sql")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS team_cart_orders",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_team_cart_orders_team_cart ON team_cart_orders (team_cart_id)",
		"FOREIGN KEY (order_id) REFERENCES team_cart_orders(id) ON DELETE CASCADE",
		"CHECK (quantity > 0)",
		"DROP TABLE IF EXISTS team_cart_orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationDeduplicatesEvents(t *testing.T) {
	content := readEmbedded(t, "*_create_outbox.sql")
	if !strings.Contains(content, "ux_outbox_events_event_aggregate ON outbox_events (event_type, aggregate_type, aggregate_id)") {
		t.Fatalf("outbox migration lacks the per-aggregate unique index")
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)

	path, err := createAt(dir, "Add Coupon Usage!", at)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20260402083000_add_coupon_usage.sql" {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := createAt(dir, "add coupon usage", at); err == nil {
		t.Fatalf("expected duplicate migration to fail")
	}
	if _, err := createAt(dir, "!!!", at); err == nil {
		t.Fatalf("expected empty sanitized name to fail")
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected bad filename to fail")
	}

	dir = t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_only_up.sql"), []byte("-- +goose Up\nSELECT 1;\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected missing Down section to fail")
	}
}

func readEmbedded(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := fs.Glob(Embedded(), embeddedDir+"/"+pattern)
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := fs.ReadFile(Embedded(), matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(data)
}

func TestMigrationsFSServesEmbeddedRoot(t *testing.T) {
	fsys, err := migrationsFS("")
	if err != nil {
		t.Fatalf("embedded fs: %v", err)
	}
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil || len(files) != 4 {
		t.Fatalf("expected 4 embedded migrations at the root, got %v (%v)", files, err)
	}
	if _, err := New(nil, ""); err == nil {
		t.Fatalf("expected nil db to fail")
	}
}
