package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/nbsync/internal/apperr"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Name        string
	Title       string
	Checksum    string
	Chunks      int
	Executable  int
	LastOutcome string
	UpdatedAt   time.Time
}

// HistoryRecord is one entry in the sync journal. Error is empty for
// successful passes; conflicts are recorded with their outcome tag, not as
// errors.
type HistoryRecord struct {
	Name       string
	Outcome    string
	RefHash    string
	StructHash string
	FlatHash   string
	Error      string
	SyncedAt   time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Name    string
	Title   string
	Snippet string
}

// UpsertDocument inserts or replaces a document row and its FTS entry within
// a transaction. body is the concatenated chunk text used for search.
func (db *DB) UpsertDocument(d DocumentRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (name, title, checksum, chunks, executable, last_outcome, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			title        = excluded.title,
			checksum     = excluded.checksum,
			chunks       = excluded.chunks,
			executable   = excluded.executable,
			last_outcome = excluded.last_outcome,
			body         = excluded.body,
			updated_at   = excluded.updated_at
	`, d.Name, d.Title, d.Checksum, d.Chunks, d.Executable, d.LastOutcome, body, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if err := ftsUpsert(tx, d.Name, d.Title, body); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteDocument removes a document row and its FTS entry.
func (db *DB) DeleteDocument(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, name)
	_, _ = tx.Exec(`DELETE FROM documents WHERE name = ?`, name)

	return tx.Commit()
}

// GetDocument returns a document row by name.
func (db *DB) GetDocument(name string) (*DocumentRow, error) {
	var d DocumentRow
	err := db.conn.QueryRow(`
		SELECT name, title, checksum, chunks, executable, last_outcome, updated_at
		FROM documents WHERE name = ?
	`, name).Scan(&d.Name, &d.Title, &d.Checksum, &d.Chunks, &d.Executable, &d.LastOutcome, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	return &d, nil
}

// ListDocuments returns all document rows ordered by name.
func (db *DB) ListDocuments() ([]DocumentRow, error) {
	rows, err := db.conn.Query(`
		SELECT name, title, checksum, chunks, executable, last_outcome, updated_at
		FROM documents ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.Name, &d.Title, &d.Checksum, &d.Chunks, &d.Executable, &d.LastOutcome, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AllChecksums returns the stored checksum for every document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT name, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, cs string
		if err := rows.Scan(&name, &cs); err != nil {
			return nil, err
		}
		out[name] = cs
	}
	return out, rows.Err()
}

// AppendHistory records one reconciliation pass in the sync journal.
func (db *DB) AppendHistory(rec HistoryRecord) error {
	when := rec.SyncedAt
	if when.IsZero() {
		when = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO sync_history (name, outcome, ref_hash, struct_hash, flat_hash, error, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.Name, rec.Outcome, rec.RefHash, rec.StructHash, rec.FlatHash, rec.Error, when)
	if err != nil {
		return fmt.Errorf("index: append history: %w", err)
	}
	return nil
}

// History returns journal entries, newest first. An empty name matches all
// documents.
func (db *DB) History(name string, limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT name, outcome, ref_hash, struct_hash, flat_hash, error, synced_at
		FROM sync_history
	`
	args := []any{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	return db.queryHistory(query, args...)
}

// Conflicts returns journal entries for conflicting or failed passes,
// newest first.
func (db *DB) Conflicts(limit int) ([]HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return db.queryHistory(`
		SELECT name, outcome, ref_hash, struct_hash, flat_hash, error, synced_at
		FROM sync_history
		WHERE outcome = 'conflict_structured_wins' OR error != ''
		ORDER BY id DESC LIMIT ?
	`, limit)
}

func (db *DB) queryHistory(query string, args ...any) ([]HistoryRecord, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.Name, &r.Outcome, &r.RefHash, &r.StructHash, &r.FlatHash, &r.Error, &r.SyncedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
