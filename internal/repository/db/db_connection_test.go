package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestInitDB_MigratesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	conn, err := InitDB(path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	v, err := SchemaVersion(ctx, conn)
	if err != nil || v != len(migrations) {
		t.Fatalf("expected version %d, got %d (%v)", len(migrations), v, err)
	}
	for _, table := range []string{"users", "profiles", "device_events", "pin_readings"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
	if _, err := conn.ExecContext(ctx, `INSERT INTO users (username, password_hash) VALUES ('brewer', 'h')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = conn.Close()

	// a second open keeps the data and does not re-run migrations
	conn, err = InitDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer conn.Close()
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("expected the user to survive a reopen, got %d (%v)", n, err)
	}
}

func TestInitDB_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	conn, err := InitDB(path)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := conn.Exec("PRAGMA user_version = 999"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = conn.Close()

	if _, err := InitDB(path); err == nil {
		t.Fatalf("expected a newer schema to be rejected")
	}
}
