package db

import (
	"context"
	"strings"
)

// scanConcept scans a (id, label, parent_id) row into a Concept.
func scanConcept(scanner interface{ Scan(dest ...any) error }) (Concept, error) {
	var c Concept
	err := scanner.Scan(&c.ID, &c.Label, &c.ParentID)
	return c, err
}

// AllConcepts returns every concept's id, label and parent, ordered by id
func (d *DB) AllConcepts(ctx context.Context) ([]Concept, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT id, label, parent_id FROM concept ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var concepts []Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}

// GetConcept returns a single concept by ID
func (d *DB) GetConcept(ctx context.Context, id string) (*Concept, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT id, label, parent_id FROM concept WHERE id = ?`, id)
	c, err := scanConcept(row)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CountRows returns the row count of one of the store's tables.
func (d *DB) CountRows(ctx context.Context, table string) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n)
	return n, err
}

// Synonyms returns every synonym row of a concept, preferred label first.
func (d *DB) Synonyms(ctx context.Context, id string) ([]Synonym, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT concept_id, term, term_type, lang FROM synonym
		WHERE concept_id = ?
		ORDER BY term_type != 'preferred_label', term_type, term
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Synonym
	for rows.Next() {
		var s Synonym
		if err := rows.Scan(&s.ConceptID, &s.Term, &s.TermType, &s.Lang); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Codes returns the codes a concept maps to in one junction system.
func (d *DB) Codes(ctx context.Context, system, id string) ([]int64, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT code FROM "+quoteIdent(JunctionTable(system))+" WHERE concept_id = ? ORDER BY code", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var c int64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// JunctionSystems lists the code systems that have a junction table, sorted.
func (d *DB) JunctionSystems(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name LIKE ? ESCAPE '\'
		ORDER BY name
	`, strings.ReplaceAll(JunctionTable(""), "_", `\_`)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, strings.TrimPrefix(name, JunctionTable("")))
	}
	return out, rows.Err()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
