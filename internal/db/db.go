// Package db opens the embedded sqlite database used by the sql protocol
// adapter. Schema ownership stays with the host application; this package
// only prepares the handle.
package db

import (
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the database at dbPath and applies the
// connection pragmas.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	return db, nil
}

// OpenSeeded opens the database at dbPath, first copying the seed database
// from seedPath when dbPath does not exist yet. An empty seedPath behaves
// like Open.
func OpenSeeded(dbPath, seedPath string) (*sql.DB, error) {
	if seedPath != "" {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			if err := copyFile(seedPath, dbPath); err != nil {
				return nil, fmt.Errorf("seed database from %s: %w", seedPath, err)
			}
		}
	}
	return Open(dbPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
