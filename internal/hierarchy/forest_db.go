package hierarchy

import (
	"context"

	"fmadb/internal/db"
)

// ForestFromDB loads the id → parent map from the concept table
func ForestFromDB(ctx context.Context, d *db.DB) (*Forest, error) {
	concepts, err := d.AllConcepts(ctx)
	if err != nil {
		return nil, err
	}

	links := make([]Link, 0, len(concepts))
	for _, c := range concepts {
		links = append(links, Link{ID: c.ID, ParentID: c.ParentID})
	}
	return NewForest(links), nil
}

// WriteClosure replaces the store's hierarchy_closure table with rows
func WriteClosure(ctx context.Context, d *db.DB, rows []ClosureRow) (int, error) {
	dbRows := make([]db.ClosureRow, len(rows))
	for i, r := range rows {
		dbRows[i] = db.ClosureRow{ID: r.ID, AncestorID: r.AncestorID, Level: r.Level}
	}
	return d.ReplaceClosure(ctx, dbRows)
}

// RebuildClosure reads the concept table, builds the closure and writes it.
func RebuildClosure(ctx context.Context, d *db.DB, opts ClosureOptions) (int, error) {
	forest, err := ForestFromDB(ctx, d)
	if err != nil {
		return 0, err
	}
	rows, err := BuildClosure(ctx, forest, opts)
	if err != nil {
		return 0, err
	}
	return WriteClosure(ctx, d, rows)
}
