package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestForeignKeysEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	var fkEnabled int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled)
	if err != nil {
		t.Fatalf("PRAGMA foreign_keys failed: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("foreign keys not enabled")
	}
}

func TestOpenSeededCopiesSeed(t *testing.T) {
	tmpDir := t.TempDir()
	seedPath := filepath.Join(tmpDir, "seed.db")
	dbPath := filepath.Join(tmpDir, "app.db")

	seed, err := Open(seedPath)
	if err != nil {
		t.Fatalf("Open seed failed: %v", err)
	}
	if _, err := seed.Exec("CREATE TABLE marker (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create marker table failed: %v", err)
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("close seed failed: %v", err)
	}

	db, err := OpenSeeded(dbPath, seedPath)
	if err != nil {
		t.Fatalf("OpenSeeded failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='marker'").Scan(&name)
	if err != nil {
		t.Errorf("marker table not found in seeded database: %v", err)
	}
}

func TestOpenSeededDoesNotOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	seedPath := filepath.Join(tmpDir, "seed.db")
	dbPath := filepath.Join(tmpDir, "app.db")

	for _, path := range []string{seedPath, dbPath} {
		db, err := Open(path)
		if err != nil {
			t.Fatalf("Open %s failed: %v", path, err)
		}
		if _, err := db.Exec("CREATE TABLE t (v TEXT)"); err != nil {
			t.Fatalf("create table failed: %v", err)
		}
		if _, err := db.Exec("INSERT INTO t (v) VALUES (?)", filepath.Base(path)); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		_ = db.Close()
	}

	db, err := OpenSeeded(dbPath, seedPath)
	if err != nil {
		t.Fatalf("OpenSeeded failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	var v string
	if err := db.QueryRow("SELECT v FROM t").Scan(&v); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if v != "app.db" {
		t.Errorf("v = %q, want existing database preserved", v)
	}
}
