package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fmadb/internal/db"
	"fmadb/internal/logger"
	"fmadb/internal/schema"
)

// Options configures one import.
type Options struct {
	Input    string
	Version  schema.SchemaVersion // "" or "auto" detects from headers
	Registry *schema.Registry     // nil means schema.Builtin()
	Encoding string
	Comma    rune
	Logger   *logger.Logger
}

// Summary is the outcome of an import, also recorded in import_run.
type Summary struct {
	RunID            string   `json:"run_id"`
	SchemaVersion    string   `json:"schema_version"`
	SourceDigest     string   `json:"source_digest"`
	RowsRead         int      `json:"rows_read"`
	RowsNormalized   int      `json:"rows_normalized"`
	RowsSkipped      int      `json:"rows_skipped"`
	ConceptsInserted int      `json:"concepts_inserted"`
	ConceptsIgnored  int      `json:"concepts_ignored"`
	SegmentsSkipped  int      `json:"segments_skipped"`
	Columns          []string `json:"columns"`
	DroppedColumns   []string `json:"dropped_columns"`
}

// Run imports opts.Input into d. Pass one resolves the schema version and
// counts non-empty cells per column; pass two normalizes and writes every
// row inside one transaction. Malformed rows are skipped; a decode or store
// failure rolls the whole import back.
func Run(ctx context.Context, d *db.DB, opts Options) (*Summary, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = schema.Builtin()
	}
	dec, err := schema.NewDecoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	started := time.Now()

	// Pass one
	first, err := Open(opts.Input, opts.Comma, true)
	if err != nil {
		return nil, err
	}
	headers := first.Headers
	m, err := reg.Resolve(opts.Version, headers)
	if err != nil {
		first.Close()
		return nil, err
	}
	fields := m.Map(headers)
	counts, err := schema.CountNonEmpty(first.Next, len(headers))
	first.Close()
	if err != nil {
		return nil, fmt.Errorf("sparsity pass: %w", err)
	}

	mask := counts.Mask(fields)
	sum := &Summary{
		RunID:          uuid.NewString(),
		SchemaVersion:  string(m.Version),
		SourceDigest:   first.Digest(),
		Columns:        fieldNames(mask.Surviving(fields)),
		DroppedColumns: fieldNames(mask.Dropped(fields)),
	}
	log = log.With("run_id", sum.RunID)
	log.Info("schema resolved",
		"version", m.Version,
		"columns", len(sum.Columns),
		"dropped", sum.DroppedColumns,
	)

	layout := db.LayoutFor(m, mask.Surviving(fields))

	// Pass two
	second, err := Open(opts.Input, opts.Comma, false)
	if err != nil {
		return nil, err
	}
	defer second.Close()

	w, err := d.NewWriter(ctx, layout)
	if err != nil {
		return nil, err
	}
	norm := schema.NewNormalizer(m, headers, fields, mask, dec)
	if err := load(ctx, second, norm, w, sum, log); err != nil {
		_ = w.Rollback()
		return nil, err
	}
	if err := w.Commit(); err != nil {
		return nil, err
	}
	if sum.RowsSkipped > 0 || sum.SegmentsSkipped > 0 {
		log.Warn("input not fully imported",
			"rows_skipped", sum.RowsSkipped,
			"segments_skipped", sum.SegmentsSkipped,
		)
	}

	run := db.ImportRun{
		RunID:            sum.RunID,
		StartedAt:        started.UnixMilli(),
		FinishedAt:       time.Now().UnixMilli(),
		SourcePath:       absPath(opts.Input),
		SourceDigest:     sum.SourceDigest,
		SchemaVersion:    sum.SchemaVersion,
		RowsRead:         sum.RowsRead,
		RowsNormalized:   sum.RowsNormalized,
		RowsSkipped:      sum.RowsSkipped,
		ConceptsInserted: sum.ConceptsInserted,
		ConceptsIgnored:  sum.ConceptsIgnored,
		SegmentsSkipped:  sum.SegmentsSkipped,
	}
	if err := d.InsertRun(ctx, run); err != nil {
		return nil, err
	}

	log.Info("import finished",
		"read", sum.RowsRead,
		"inserted", sum.ConceptsInserted,
		"ignored", sum.ConceptsIgnored,
		"skipped", sum.RowsSkipped,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return sum, nil
}

func load(ctx context.Context, r *Reader, norm *schema.Normalizer, w *db.Writer, sum *Summary, log *logger.Logger) error {
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && !errors.Is(err, schema.ErrMalformedRow) {
			return fmt.Errorf("reading input: %w", err)
		}
		sum.RowsRead++
		if err != nil {
			sum.RowsSkipped++
			log.Debug("skipping row", "line", r.Line(), "error", err)
			continue
		}

		row, err := norm.Normalize(r.Line(), rec)
		if errors.Is(err, schema.ErrMalformedRow) {
			sum.RowsSkipped++
			log.Debug("skipping row", "line", r.Line(), "error", err)
			continue
		}
		if err != nil {
			return err
		}
		sum.RowsNormalized++

		res, err := w.Write(ctx, row)
		if err != nil {
			return err
		}
		if res.Inserted {
			sum.ConceptsInserted++
		} else {
			sum.ConceptsIgnored++
		}
		sum.SegmentsSkipped += res.SegmentsSkipped
	}
}

func fieldNames(fs []schema.Field) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, string(f))
	}
	return out
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
