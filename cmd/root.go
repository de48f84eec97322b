package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fmadb/internal/db"
	"fmadb/internal/logger"
	"fmadb/internal/schema"
)

var (
	dbPath  string
	verbose bool
	log     = logger.Nop()
)

var rootCmd = &cobra.Command{
	Use:           "fmadb",
	Short:         "Load the FMA anatomy ontology into SQLite and query its hierarchy",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logger.New(os.Getenv("FMADB_LOG"), verbose)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the FMA SQLite store (default $FMADB_DB)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// DiscoverDB finds the store path: --db flag, then FMADB_DB. The store must
// already exist.
func DiscoverDB() (string, error) {
	path := dbPath
	if path == "" {
		path = os.Getenv("FMADB_DB")
	}
	if path == "" {
		return "", fmt.Errorf("no store given (use --db or set FMADB_DB)")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("store not found: %s", path)
	}
	return path, nil
}

// OpenDatabase discovers and opens the store
func OpenDatabase() (*db.DB, error) {
	path, err := DiscoverDB()
	if err != nil {
		return nil, err
	}
	return db.OpenDB(path)
}

// ResolveConcept finds a concept by id, FMA URI, or exact term.
func ResolveConcept(ctx context.Context, d *db.DB, reference string) (*db.Concept, error) {
	reference = strings.TrimSpace(reference)
	id := strings.TrimPrefix(reference, schema.URIPrefix)
	if len(id) > 3 && strings.EqualFold(id[:3], "fma") {
		id = id[3:]
	}

	// 1. Exact id
	if c, err := d.GetConcept(ctx, id); err == nil {
		return c, nil
	}

	// 2. Preferred label, synonym or non-English equivalent
	matches, err := d.FindByTerm(ctx, reference, 10)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("concept not found: %s", reference)
	case 1:
		return &matches[0], nil
	}
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("  %s %s", m.ID, labelOf(m.Label))
	}
	return nil, fmt.Errorf("ambiguous reference '%s'. %d matches:\n%s\nUse a concept id instead.",
		reference, len(matches), strings.Join(lines, "\n"))
}

func labelOf(l *string) string {
	if l == nil {
		return "?"
	}
	return *l
}
