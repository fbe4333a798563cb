package credstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	record := NewRecord("alice", "t1ck3t")
	if err := store.Put("blt-token", record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get("blt-token")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Principal != "alice" || got.Secret != "t1ck3t" {
		t.Errorf("Get = %+v, want alice/t1ck3t", got)
	}
	if got.ID != record.ID {
		t.Errorf("ID = %q, want %q", got.ID, record.ID)
	}
	if got.SavedAt.IsZero() {
		t.Error("SavedAt is zero, want save timestamp")
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if _, err := store.Get("absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if err := store.Put("k", NewRecord("bob", "s")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}

	// Deleting again is not an error.
	if err := store.Delete("k"); err != nil {
		t.Errorf("Delete of missing record = %v, want nil", err)
	}
}

func TestFileStorePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "creds")
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := store.Put("k", NewRecord("bob", "s")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("dir perm = %o, want 0700", perm)
	}

	info, err = os.Stat(filepath.Join(dir, "k.json"))
	if err != nil {
		t.Fatalf("stat record failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("record perm = %o, want 0600", perm)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()

	if _, err := store.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on empty store = %v, want ErrNotFound", err)
	}

	if err := store.Put("k", NewRecord("carol", "s")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Principal != "carol" {
		t.Errorf("Principal = %q, want carol", got.Principal)
	}

	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}
