package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertRun records a finished import.
func (d *DB) InsertRun(ctx context.Context, r ImportRun) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO import_run (
			run_id, started_at, finished_at, source_path, source_digest,
			schema_version, rows_read, rows_normalized, rows_skipped,
			concepts_inserted, concepts_ignored, segments_skipped
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.StartedAt, r.FinishedAt, r.SourcePath, r.SourceDigest,
		r.SchemaVersion, r.RowsRead, r.RowsNormalized, r.RowsSkipped,
		r.ConceptsInserted, r.ConceptsIgnored, r.SegmentsSkipped)
	if err != nil {
		return fmt.Errorf("recording import run %s: %w", r.RunID, err)
	}
	return nil
}

// LastRun returns the most recent import, or nil if there is none.
func (d *DB) LastRun(ctx context.Context) (*ImportRun, error) {
	var r ImportRun
	err := d.conn.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, source_path, source_digest,
		       schema_version, rows_read, rows_normalized, rows_skipped,
		       concepts_inserted, concepts_ignored, segments_skipped
		FROM import_run ORDER BY finished_at DESC LIMIT 1
	`).Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.SourcePath, &r.SourceDigest,
		&r.SchemaVersion, &r.RowsRead, &r.RowsNormalized, &r.RowsSkipped,
		&r.ConceptsInserted, &r.ConceptsIgnored, &r.SegmentsSkipped)
	if errors.Is(err, sql.ErrNoRows) || isNoSuchTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
