// Package storage persists indexed records in SQLite so the vector store can be
// restored without re-running ingestion.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nrcae/ai-s3-search/internal/models"
	"github.com/nrcae/ai-s3-search/pkg/utils"
)

// SQLiteJournal is an append-only record log in SQLite. Insertion order is kept in
// the seq column so Load returns records in the order they were indexed. The sources
// table lists documents whose every record has been written.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		source_id TEXT NOT NULL DEFAULT '',
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_source_id ON records(source_id);

	CREATE TABLE IF NOT EXISTS sources (
		key TEXT PRIMARY KEY,
		ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Append inserts records in a single transaction. Either all are written or none.
func (j *SQLiteJournal) Append(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, text, source_id, dimensions, vector, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, r.SourceID, len(r.Vector), utils.Float32sToBytes(r.Vector), now); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Load returns every record in insertion order.
func (j *SQLiteJournal) Load(ctx context.Context) ([]models.Record, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, text, source_id, dimensions, vector FROM records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			r    models.Record
			dims int
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Text, &r.SourceID, &dims, &blob); err != nil {
			return nil, err
		}
		r.Vector = utils.BytesToFloat32s(blob)
		if len(r.Vector) != dims {
			return nil, fmt.Errorf("record %s: stored vector has %d values, header says %d", r.ID, len(r.Vector), dims)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of journaled records.
func (j *SQLiteJournal) Count(ctx context.Context) (int64, error) {
	var count int64
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

// CountSources returns the number of fully ingested documents.
func (j *SQLiteJournal) CountSources(ctx context.Context) (int64, error) {
	var count int64
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, err
}

// MarkIngested records key as fully ingested.
func (j *SQLiteJournal) MarkIngested(ctx context.Context, key string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sources (key, ingested_at) VALUES (?, ?)`, key, time.Now())
	if err != nil {
		return fmt.Errorf("mark source %s: %w", key, err)
	}
	return nil
}

// IngestedSources returns the keys recorded by MarkIngested.
func (j *SQLiteJournal) IngestedSources(ctx context.Context) (map[string]struct{}, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT key FROM sources`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = struct{}{}
	}
	return out, rows.Err()
}

// PruneIncomplete deletes records of documents that were never marked ingested,
// so they can be ingested again from scratch. Records without a source are kept.
func (j *SQLiteJournal) PruneIncomplete(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM records WHERE source_id != '' AND source_id NOT IN (SELECT key FROM sources)`)
	if err != nil {
		return 0, fmt.Errorf("prune incomplete records: %w", err)
	}
	return res.RowsAffected()
}

// Reset deletes every record and source. Used before a full re-index.
func (j *SQLiteJournal) Reset(ctx context.Context) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources`); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
