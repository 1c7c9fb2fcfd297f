package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenAppliesPragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "pragmas.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var mode string
	err = db.QueryRow(`PRAGMA journal_mode`).Scan(&mode)
	if err != nil {
		t.Fatal(err)
	}
	if strings.ToLower(mode) != "wal" {
		t.Errorf("journal_mode = %q want wal", mode)
	}

	var fk int
	err = db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk)
	if err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d want 1", fk)
	}

	var busy int
	err = db.QueryRow(`PRAGMA busy_timeout`).Scan(&busy)
	if err != nil {
		t.Fatal(err)
	}
	if busy < 5000 {
		t.Errorf("busy_timeout = %d want >= 5000", busy)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}

	for _, table := range []string{
		"provider", "asset_class", "provider_asset_class", "provider_symbol_map",
		"asset_manifest", "asset_coverage_bitmap", "asset_gaps", "engine_kv",
	} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("table %s: found %d definitions", table, n)
		}
	}
}

func TestBeginCommitRollback(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "tx.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	ctx := NewContext(context.Background(), db)

	// Committed write is visible.
	tx, txctx, err := Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Exec(txctx, `INSERT INTO engine_kv (k, v) VALUES ('a', '1')`)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	// Rollback after commit is a no-op.
	if err := tx.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	// Rolled-back write is not.
	tx, txctx, err = Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Exec(txctx, `INSERT INTO engine_kv (k, v) VALUES ('b', '2')`)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatal(err)
	}

	_, ok, err := KVGet(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("KVGet(a) = ok=%v err=%v, want present", ok, err)
	}
	_, ok, err = KVGet(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("KVGet(b): rolled-back write is visible")
	}
}

func TestKVPutOverwrites(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	ctx := NewContext(context.Background(), db)

	if err := KVPut(ctx, "watermark", "x"); err != nil {
		t.Fatal(err)
	}
	if err := KVPut(ctx, "watermark", "y"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := KVGet(ctx, "watermark")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v != "y" {
		t.Errorf("KVGet = %q, %v want %q, true", v, ok, "y")
	}
}
