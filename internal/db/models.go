package db

// Term types stored in synonym.term_type.
const (
	TermPreferredLabel = "preferred_label"
	TermSynonym        = "synonym"
	TermNonEnglish     = "non_english_equivalent"
)

// Concept represents a row in the concept table. IDs are read back as text
// whatever the key type of the store.
type Concept struct {
	ID       string  `json:"id"`
	Label    *string `json:"label"`
	ParentID *string `json:"parent_id"`
}

// Synonym represents a row in the synonym table
type Synonym struct {
	ConceptID string  `json:"concept_id"`
	Term      string  `json:"term"`
	TermType  string  `json:"term_type"` // "preferred_label", "synonym", "non_english_equivalent"
	Lang      *string `json:"lang"`
}

// ClosureRow is one (descendant, ancestor, level) triple of hierarchy_closure
type ClosureRow struct {
	ID         string `json:"id"`
	AncestorID string `json:"ancestor_id"`
	Level      int    `json:"level"` // 1 = direct parent
}

// Ancestor is a closure row joined with the ancestor's label
type Ancestor struct {
	ID    string  `json:"id"`
	Label *string `json:"label"`
	Level int     `json:"level"`
}

// ImportRun represents a row in the import_run table
type ImportRun struct {
	RunID            string `json:"run_id"`
	StartedAt        int64  `json:"started_at"`  // Unix millis
	FinishedAt       int64  `json:"finished_at"` // Unix millis
	SourcePath       string `json:"source_path"`
	SourceDigest     string `json:"source_digest"` // xxh3-64, hex
	SchemaVersion    string `json:"schema_version"`
	RowsRead         int    `json:"rows_read"`
	RowsNormalized   int    `json:"rows_normalized"`
	RowsSkipped      int    `json:"rows_skipped"`
	ConceptsInserted int    `json:"concepts_inserted"`
	ConceptsIgnored  int    `json:"concepts_ignored"`
	SegmentsSkipped  int    `json:"segments_skipped"`
}
