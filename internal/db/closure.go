package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReplaceClosure drops hierarchy_closure and repopulates it with rows in a
// single transaction. Its id columns take the declared type of concept.id.
func (d *DB) ReplaceClosure(ctx context.Context, rows []ClosureRow) (int, error) {
	kt, err := d.KeyType(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`DROP TABLE IF EXISTS hierarchy_closure`,
		`CREATE TABLE hierarchy_closure (
			id ` + kt + ` NOT NULL,
			ancestor_id ` + kt + ` NOT NULL,
			level INTEGER NOT NULL,
			PRIMARY KEY (id, ancestor_id)
		)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return 0, fmt.Errorf("recreating hierarchy_closure: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO hierarchy_closure (id, ancestor_id, level) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ID, r.AncestorID, r.Level); err != nil {
			return 0, fmt.Errorf("inserting closure row (%s, %s, %d): %w", r.ID, r.AncestorID, r.Level, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`CREATE INDEX hierarchy_closure_ancestor_idx ON hierarchy_closure (ancestor_id)`); err != nil {
		return 0, fmt.Errorf("indexing hierarchy_closure: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(rows), nil
}

// Ancestors returns the ancestors of id nearest first.
func (d *DB) Ancestors(ctx context.Context, id string) ([]Ancestor, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT h.ancestor_id, c.label, h.level
		FROM hierarchy_closure h
		LEFT JOIN concept c ON c.id = h.ancestor_id
		WHERE h.id = ?
		ORDER BY h.level
	`, id)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, fmt.Errorf("no hierarchy_closure table in %s; run closure first", d.Path)
		}
		return nil, err
	}
	defer rows.Close()

	var out []Ancestor
	for rows.Next() {
		var a Ancestor
		if err := rows.Scan(&a.ID, &a.Label, &a.Level); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// IsAncestor reports whether ancestorID is an ancestor of id, and at which
// level.
func (d *DB) IsAncestor(ctx context.Context, id, ancestorID string) (int, bool, error) {
	var level int
	err := d.conn.QueryRowContext(ctx,
		`SELECT level FROM hierarchy_closure WHERE id = ? AND ancestor_id = ?`,
		id, ancestorID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		if isNoSuchTable(err) {
			return 0, false, fmt.Errorf("no hierarchy_closure table in %s; run closure first", d.Path)
		}
		return 0, false, err
	}
	return level, true, nil
}
