package db

import (
	"context"
	"strings"
)

// FindByTerm returns concepts that have term as a preferred label, synonym
// or non-English equivalent. Matching is exact but case-insensitive.
// Returns an empty slice if the synonym table doesn't exist yet.
func (d *DB) FindByTerm(ctx context.Context, term string, limit int) ([]Concept, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []Concept{}, nil
	}

	rows, err := d.conn.QueryContext(ctx, `
		SELECT c.id, c.label, c.parent_id
		FROM synonym s
		JOIN concept c ON c.id = s.concept_id
		WHERE s.term = ?1 COLLATE NOCASE
		GROUP BY c.id
		ORDER BY MIN(s.term_type != 'preferred_label'), c.id
		LIMIT ?2
	`, term, limit)
	if err != nil {
		// Gracefully handle a store that was never imported into
		if isNoSuchTable(err) {
			return []Concept{}, nil
		}
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
