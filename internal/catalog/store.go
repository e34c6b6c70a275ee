// Package catalog keeps an audit trail of ingest batches in a SQL database:
// one row per batch with its tallies and the generation it produced, and one
// row per document with its outcome.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/sqldb"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingest_batches (
    batch_id    TEXT PRIMARY KEY,
    generation  BIGINT NOT NULL,
    attempted   INTEGER NOT NULL,
    added       INTEGER NOT NULL,
    skipped     INTEGER NOT NULL,
    failed      INTEGER NOT NULL,
    started_at  TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS ingest_documents (
    batch_id    TEXT NOT NULL,
    doc_id      TEXT NOT NULL,
    path        TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    error       TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);`

// Entry is the outcome of one document within a batch.
type Entry struct {
	DocID      string    `json:"doc_id"`
	Path       string    `json:"path"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Batch summarises one commit and the documents that went into it.
type Batch struct {
	ID         string    `json:"batch_id"`
	Generation uint64    `json:"generation"`
	Attempted  int       `json:"attempted"`
	Added      int       `json:"added"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Entries    []Entry   `json:"entries,omitempty"`
}

// Store persists batches through a sqldb.Client.
type Store struct {
	db     *sqldb.Client
	logger *slog.Logger
}

func NewStore(db *sqldb.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "catalog"),
	}
}

// Migrate creates the catalog tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating catalog schema: %w", err)
	}
	return nil
}

// RecordBatch writes the batch row and all of its entries in one
// transaction.
func (s *Store) RecordBatch(ctx context.Context, b Batch) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.db.Rebind(
			`INSERT INTO ingest_batches (batch_id, generation, attempted, added, skipped, failed, started_at, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			b.ID, int64(b.Generation), b.Attempted, b.Added, b.Skipped, b.Failed, b.StartedAt.UTC(), b.FinishedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting batch: %w", err)
		}
		if len(b.Entries) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, s.db.Rebind(
			`INSERT INTO ingest_documents (batch_id, doc_id, path, outcome, error, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("preparing entry insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range b.Entries {
			if _, err := stmt.ExecContext(ctx, b.ID, e.DocID, e.Path, e.Outcome, e.Error, e.RecordedAt.UTC()); err != nil {
				return fmt.Errorf("inserting entry %s: %w", e.DocID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("batch recorded",
		"batch_id", b.ID,
		"generation", b.Generation,
		"entries", len(b.Entries),
	)
	return nil
}

// Batch loads a batch and its entries. It returns nil, nil for an unknown id.
func (s *Store) Batch(ctx context.Context, id string) (*Batch, error) {
	var (
		b   Batch
		gen int64
	)
	err := s.db.DB.QueryRowContext(ctx, s.db.Rebind(
		`SELECT batch_id, generation, attempted, added, skipped, failed, started_at, finished_at
		 FROM ingest_batches WHERE batch_id = ?`), id,
	).Scan(&b.ID, &gen, &b.Attempted, &b.Added, &b.Skipped, &b.Failed, &b.StartedAt, &b.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying batch %s: %w", id, err)
	}
	b.Generation = uint64(gen)

	rows, err := s.db.DB.QueryContext(ctx, s.db.Rebind(
		`SELECT doc_id, path, outcome, error, recorded_at
		 FROM ingest_documents WHERE batch_id = ? ORDER BY recorded_at, doc_id`), id)
	if err != nil {
		return nil, fmt.Errorf("querying entries of %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.DocID, &e.Path, &e.Outcome, &e.Error, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		b.Entries = append(b.Entries, e)
	}
	return &b, rows.Err()
}

// RecentBatches returns up to limit batch summaries, newest first, without
// their entries.
func (s *Store) RecentBatches(ctx context.Context, limit int) ([]Batch, error) {
	rows, err := s.db.DB.QueryContext(ctx, s.db.Rebind(
		`SELECT batch_id, generation, attempted, added, skipped, failed, started_at, finished_at
		 FROM ingest_batches ORDER BY finished_at DESC, generation DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var (
			b   Batch
			gen int64
		)
		if err := rows.Scan(&b.ID, &gen, &b.Attempted, &b.Added, &b.Skipped, &b.Failed, &b.StartedAt, &b.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning batch row: %w", err)
		}
		b.Generation = uint64(gen)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
