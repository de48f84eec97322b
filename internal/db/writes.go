package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fmadb/internal/schema"
)

// Writer writes normalized rows inside one transaction. Every insert is
// INSERT OR IGNORE, so re-running an import never fails on existing keys and
// never alters rows already written.
type Writer struct {
	tx     *sql.Tx
	layout Layout

	concept    *sql.Stmt
	synonym    *sql.Stmt
	definition *sql.Stmt
	codes      map[string]*sql.Stmt
}

// WriteResult reports what one Write did.
type WriteResult struct {
	Inserted        bool // false when the concept id already existed
	SegmentsSkipped int  // non-integer code segments dropped
}

// NewWriter begins the import transaction, brings the schema up to layout
// inside it and prepares its statements. Rolling back also undoes the DDL.
func (d *DB) NewWriter(ctx context.Context, l Layout) (*Writer, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	if err := ensureSchema(ctx, tx, l); err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	w := &Writer{tx: tx, layout: l, codes: make(map[string]*sql.Stmt)}

	cols := append([]string{"id", "label", "parent_id"}, l.Inline...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	prepare := map[**sql.Stmt]string{
		&w.concept: fmt.Sprintf("INSERT OR IGNORE INTO concept (%s) VALUES (%s)",
			strings.Join(cols, ", "), marks),
		&w.synonym: `INSERT OR IGNORE INTO synonym (concept_id, term, term_type, lang)
			VALUES (?, ?, ?, ?)`,
		&w.definition: `INSERT OR IGNORE INTO definition (concept_id, label, text, lang)
			VALUES (?, ?, ?, NULL)`,
	}
	for dst, q := range prepare {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("prepare insert: %w", err)
		}
		*dst = stmt
	}
	for _, sys := range l.Junctions {
		q := fmt.Sprintf("INSERT OR IGNORE INTO %s (concept_id, code) VALUES (?, ?)", JunctionTable(sys))
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("prepare insert: %w", err)
		}
		w.codes[sys] = stmt
	}
	return w, nil
}

// Write inserts the concept and explodes its multi-valued fields into the
// satellite and junction tables.
func (w *Writer) Write(ctx context.Context, row schema.Row) (WriteResult, error) {
	var res WriteResult
	label := nullable(row.Label())

	args := []any{row.ID, label, row.ParentID}
	for _, c := range w.layout.Inline {
		args = append(args, nullable(row.Values[schema.Field(c)]))
	}
	r, err := w.concept.ExecContext(ctx, args...)
	if err != nil {
		return res, fmt.Errorf("inserting concept %v: %w", row.ID, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return res, fmt.Errorf("inserting concept %v: %w", row.ID, err)
	}
	res.Inserted = n == 1

	// The preferred label doubles as a synonym so lookups need no special case.
	if l := row.Label(); l != "" {
		if err := w.addSynonym(ctx, row.ID, l, TermPreferredLabel, "en"); err != nil {
			return res, err
		}
	}
	for _, s := range schema.SplitMulti(row.Values[schema.FieldSynonyms]) {
		if err := w.addSynonym(ctx, row.ID, s, TermSynonym, nil); err != nil {
			return res, err
		}
	}
	for _, s := range schema.SplitMulti(row.Values[schema.FieldNonEnglish]) {
		if err := w.addSynonym(ctx, row.ID, s, TermNonEnglish, nil); err != nil {
			return res, err
		}
	}
	for _, def := range schema.SplitMulti(row.Values[schema.FieldDefinitions]) {
		if _, err := w.definition.ExecContext(ctx, row.ID, label, def); err != nil {
			return res, fmt.Errorf("inserting definition for %v: %w", row.ID, err)
		}
	}

	for _, sys := range w.layout.Junctions {
		codes, skipped := schema.SplitCodes(row.Values[schema.Field(sys)])
		res.SegmentsSkipped += skipped
		for _, code := range codes {
			if _, err := w.codes[sys].ExecContext(ctx, row.ID, code); err != nil {
				return res, fmt.Errorf("inserting %s code %d for %v: %w", sys, code, row.ID, err)
			}
		}
	}
	return res, nil
}

func (w *Writer) addSynonym(ctx context.Context, id any, term, termType string, lang any) error {
	if _, err := w.synonym.ExecContext(ctx, id, term, termType, lang); err != nil {
		return fmt.Errorf("inserting %s %q for %v: %w", termType, term, id, err)
	}
	return nil
}

// Commit commits the import transaction.
func (w *Writer) Commit() error {
	w.closeStmts()
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback abandons the import transaction.
func (w *Writer) Rollback() error {
	w.closeStmts()
	return w.tx.Rollback()
}

func (w *Writer) closeStmts() {
	for _, s := range []*sql.Stmt{w.concept, w.synonym, w.definition} {
		if s != nil {
			s.Close()
		}
	}
	for _, s := range w.codes {
		s.Close()
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
