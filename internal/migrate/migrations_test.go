package migrate_test

import (
	"testing"

	"fieldops/internal/db"
	"fieldops/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if v, err := migrate.Current(conn); err != nil || v != 0 {
		t.Fatalf("fresh db should be at version 0, got %d %v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(conn); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatal(err)
	}
	current, err := migrate.Current(conn)
	if err != nil {
		t.Fatal(err)
	}
	if latest < 1 || current != latest {
		t.Fatalf("expected version %d, got %d", latest, current)
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='domination_captures'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("domination_captures table missing (%v)", err)
	}
}
