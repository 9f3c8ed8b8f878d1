// Package index maintains a local SQLite cache over the canonical record
// store for fast fingerprint and origin lookups during long runs. The cache
// is ephemeral: it is rebuilt whenever the store file changes underneath it.
package index

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/livrev/livrev/internal/config"
	"github.com/livrev/livrev/internal/dataset"
)

// DBFile is the index filename inside the project directory.
const DBFile = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS records (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  entry_type TEXT,
  year TEXT
);
CREATE TABLE IF NOT EXISTS hash_ids (
  hash_id TEXT PRIMARY KEY,
  record_id TEXT NOT NULL REFERENCES records(id)
);
CREATE TABLE IF NOT EXISTS origins (
  origin TEXT PRIMARY KEY,
  record_id TEXT NOT NULL REFERENCES records(id)
);
CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE TABLE IF NOT EXISTS _meta (
  key TEXT PRIMARY KEY,
  value TEXT
);
`

// Index is a read-mostly lookup cache over the record store.
type Index struct {
	db    *sql.DB
	store *dataset.Store
	root  string
}

// Open opens (or creates) the index for the project at root and refreshes
// it if the record store changed since the last build.
func Open(root string) (*Index, error) {
	path := filepath.Join(config.LivrevPath(root), DBFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	// SQLite does not support concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}

	idx := &Index{db: db, store: dataset.Open(root), root: root}
	if err := idx.Refresh(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Refresh rebuilds the index if the store file hash differs from the one
// recorded at the last build. A missing store file indexes as empty.
func (ix *Index) Refresh() error {
	current, err := fileHash(config.RecordsPath(ix.root))
	if err != nil {
		return err
	}
	stored, err := ix.storedHash()
	if err != nil {
		return err
	}
	if current == stored {
		return nil
	}
	if err := ix.rebuild(); err != nil {
		return err
	}
	_, err = ix.db.Exec(`INSERT OR REPLACE INTO _meta (key, value) VALUES ('store_hash', ?)`, current)
	return err
}

func (ix *Index) rebuild() error {
	records, err := ix.store.LoadRecords(false)
	if err != nil {
		return err
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"hash_ids", "origins", "records"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}
	for _, rec := range records {
		if _, err := tx.Exec(
			`INSERT INTO records (id, status, entry_type, year) VALUES (?, ?, ?, ?)`,
			rec.ID, string(rec.Status()), rec.EntryType, rec.GetField("year"),
		); err != nil {
			return err
		}
		for _, h := range rec.HashIDs {
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO hash_ids (hash_id, record_id) VALUES (?, ?)`,
				h, rec.ID,
			); err != nil {
				return err
			}
		}
		for _, o := range rec.Origins {
			if _, err := tx.Exec(
				`INSERT OR REPLACE INTO origins (origin, record_id) VALUES (?, ?)`,
				o, rec.ID,
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// HasHash reports whether any record claims the fingerprint.
func (ix *Index) HasHash(hashID string) (bool, error) {
	var id string
	err := ix.db.QueryRow(`SELECT record_id FROM hash_ids WHERE hash_id = ?`, hashID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ByHash returns the ID of the record claiming the fingerprint, or "".
func (ix *Index) ByHash(hashID string) (string, error) {
	var id string
	err := ix.db.QueryRow(`SELECT record_id FROM hash_ids WHERE hash_id = ?`, hashID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// ByOrigin returns the ID of the record claiming the origin, or "".
func (ix *Index) ByOrigin(origin string) (string, error) {
	var id string
	err := ix.db.QueryRow(`SELECT record_id FROM origins WHERE origin = ?`, origin).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// IDs returns every record ID in the index, for citation-key blacklists.
func (ix *Index) IDs() (map[string]bool, error) {
	rows, err := ix.db.Query(`SELECT id FROM records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// CountByStatus returns per-state record counts.
func (ix *Index) CountByStatus() (map[string]int, error) {
	rows, err := ix.db.Query(`SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// IDsByStatus returns the sorted record IDs currently in the given state.
func (ix *Index) IDsByStatus(status string) ([]string, error) {
	rows, err := ix.db.Query(`SELECT id FROM records WHERE status = ? ORDER BY id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (ix *Index) storedHash() (string, error) {
	var value sql.NullString
	err := ix.db.QueryRow(`SELECT value FROM _meta WHERE key = 'store_hash'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}

// fileHash returns the sha256 of a file, or a fixed marker when it does not
// exist so an empty store still gets a stable hash.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "absent", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
