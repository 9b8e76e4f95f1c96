package migrate

import (
	"context"
	"testing"

	"lumenforge/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	ctx := context.Background()

	if v, err := Version(ctx, conn); err != nil || v != 0 {
		t.Fatalf("fresh database version = %d, %v; want 0, nil", v, err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatal(err)
	}
	v, err := Version(ctx, conn)
	if err != nil {
		t.Fatal(err)
	}
	if v == 0 {
		t.Fatal("schema version still 0 after migrate")
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if v2, err := Version(ctx, conn); err != nil || v2 != v {
		t.Fatalf("version after re-run = %d, %v; want %d", v2, err, v)
	}

	// Seeded settings row survives the re-run untouched.
	var threshold string
	if err := conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key='ai_confidence_threshold'`).Scan(&threshold); err != nil {
		t.Fatal(err)
	}
	if threshold != "70" {
		t.Fatalf("seeded threshold = %s, want 70", threshold)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("001_init.sql"); err != nil || v != 1 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("init.sql"); err == nil {
		t.Fatal("expected error for unversioned name")
	}
}
