package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"fmadb/internal/schema"
)

// Layout is the shape of the store produced by one import: the key type and
// the inline and junction columns that carry data in the input.
type Layout struct {
	IntegerKeys bool
	Inline      []string
	Junctions   []string
}

// LayoutFor derives the layout from a mapping and the fields that survived
// the sparsity pass.
func LayoutFor(m *schema.Mapping, surviving []schema.Field) Layout {
	live := make(map[schema.Field]bool, len(surviving))
	for _, f := range surviving {
		live[f] = true
	}
	l := Layout{IntegerKeys: m.Keys == schema.KeyInteger}
	for _, f := range m.Inline {
		if live[f] {
			l.Inline = append(l.Inline, string(f))
		}
	}
	for _, f := range m.Junctions {
		if live[f] {
			l.Junctions = append(l.Junctions, string(f))
		}
	}
	return l
}

func (l Layout) keyType() string {
	if l.IntegerKeys {
		return "INTEGER"
	}
	return "TEXT"
}

// JunctionTable names the table of a junction system.
func JunctionTable(system string) string {
	return "concept_" + system
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ensureSchema creates missing tables and adds inline columns that an
// existing concept table lacks. A store created with the other key type is
// rejected. NewWriter runs it inside the import transaction.
func ensureSchema(ctx context.Context, q querier, l Layout) error {
	existing, err := columns(ctx, q, "concept")
	if err != nil {
		return err
	}

	kt := l.keyType()
	if len(existing) == 0 {
		cols := []string{
			"id " + kt + " NOT NULL PRIMARY KEY",
			"label TEXT",
			"parent_id " + kt,
		}
		for _, c := range l.Inline {
			cols = append(cols, c+" TEXT")
		}
		stmt := fmt.Sprintf("CREATE TABLE concept (\n\t%s\n)", strings.Join(cols, ",\n\t"))
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating concept table: %w", err)
		}
	} else {
		if got := existing["id"]; !strings.EqualFold(got, kt) {
			return fmt.Errorf("store keys are %s but this import needs %s keys; use a fresh store", got, kt)
		}
		for _, c := range l.Inline {
			if _, ok := existing[c]; ok {
				continue
			}
			if _, err := q.ExecContext(ctx, "ALTER TABLE concept ADD COLUMN "+c+" TEXT"); err != nil {
				return fmt.Errorf("adding concept column %s: %w", c, err)
			}
		}
	}

	stmts := []string{
		`CREATE INDEX IF NOT EXISTS concept_parent_idx ON concept (parent_id)`,
		`CREATE TABLE IF NOT EXISTS synonym (
			concept_id ` + kt + ` NOT NULL,
			term TEXT NOT NULL,
			term_type TEXT NOT NULL,
			lang TEXT,
			UNIQUE (concept_id, term, term_type)
		)`,
		`CREATE INDEX IF NOT EXISTS synonym_term_idx ON synonym (term COLLATE NOCASE)`,
		`CREATE TABLE IF NOT EXISTS definition (
			concept_id ` + kt + ` NOT NULL,
			label TEXT,
			text TEXT NOT NULL,
			lang TEXT,
			UNIQUE (concept_id, text)
		)`,
		`CREATE TABLE IF NOT EXISTS import_run (
			run_id TEXT NOT NULL PRIMARY KEY,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			source_path TEXT NOT NULL,
			source_digest TEXT NOT NULL,
			schema_version TEXT NOT NULL,
			rows_read INTEGER NOT NULL,
			rows_normalized INTEGER NOT NULL,
			rows_skipped INTEGER NOT NULL,
			concepts_inserted INTEGER NOT NULL,
			concepts_ignored INTEGER NOT NULL,
			segments_skipped INTEGER NOT NULL
		)`,
	}
	for _, sys := range l.Junctions {
		stmts = append(stmts, `CREATE TABLE IF NOT EXISTS `+JunctionTable(sys)+` (
			concept_id `+kt+` NOT NULL,
			code INTEGER NOT NULL,
			PRIMARY KEY (concept_id, code)
		)`)
	}
	for _, s := range stmts {
		if _, err := q.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// columns returns column name → declared type for table, empty when the
// table does not exist.
func columns(ctx context.Context, q querier, table string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name, type FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("reading %s columns: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		cols[name] = typ
	}
	return cols, rows.Err()
}

// KeyType returns the declared type of concept.id ("TEXT" or "INTEGER").
func (d *DB) KeyType(ctx context.Context) (string, error) {
	cols, err := columns(ctx, d.conn, "concept")
	if err != nil {
		return "", err
	}
	kt, ok := cols["id"]
	if !ok {
		return "", fmt.Errorf("no concept table in %s; run import first", d.Path)
	}
	return strings.ToUpper(kt), nil
}

// ConceptColumns lists the columns of the concept table in sorted order.
func (d *DB) ConceptColumns(ctx context.Context) ([]string, error) {
	cols, err := columns(ctx, d.conn, "concept")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(cols))
	for c := range cols {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}
