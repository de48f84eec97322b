package cmd

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fmadb/internal/db"
	"fmadb/internal/hierarchy"
)

var (
	analyzeJSON bool
	analyzeTopN int
)

// storeReport is the analyze output: the forest report plus store facts.
type storeReport struct {
	Store     string            `json:"store"`
	KeyType   string            `json:"key_type"`
	Columns   []string          `json:"columns"`
	Tables    map[string]int    `json:"tables"`
	LastRun   *db.ImportRun     `json:"last_run"`
	Hierarchy *hierarchy.Report `json:"hierarchy"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Report on the concept hierarchy: roots, trees, dangling parents, depth",
	RunE: func(cmd *cobra.Command, args []string) error {
		if analyzeTopN < 0 {
			return fmt.Errorf("--top-n must not be negative, got %d", analyzeTopN)
		}
		d, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer d.Close()
		ctx := cmd.Context()

		kt, err := d.KeyType(ctx)
		if err != nil {
			return err
		}
		cols, err := d.ConceptColumns(ctx)
		if err != nil {
			return err
		}
		forest, err := hierarchy.ForestFromDB(ctx, d)
		if err != nil {
			return fmt.Errorf("loading concepts: %w", err)
		}
		run, err := d.LastRun(ctx)
		if err != nil {
			return err
		}

		tables := map[string]int{}
		for _, t := range []string{"concept", "synonym", "definition", "hierarchy_closure"} {
			if n, err := d.CountRows(ctx, t); err == nil {
				tables[t] = n
			}
		}

		report := &storeReport{
			Store:     d.Path,
			KeyType:   kt,
			Columns:   cols,
			Tables:    tables,
			LastRun:   run,
			Hierarchy: hierarchy.ComputeReport(forest, analyzeTopN),
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		printHumanReadable(report)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output as JSON")
	analyzeCmd.Flags().IntVar(&analyzeTopN, "top-n", 10, "Number of ids to list per section")
	rootCmd.AddCommand(analyzeCmd)
}

func printHumanReadable(r *storeReport) {
	fmt.Printf("\n  Store: %s  (%s keys)\n", r.Store, strings.ToLower(r.KeyType))
	if r.LastRun != nil {
		fmt.Printf("  Last import: %s schema %s, %d rows read, %d skipped\n",
			time.UnixMilli(r.LastRun.FinishedAt).Format(time.RFC3339),
			r.LastRun.SchemaVersion, r.LastRun.RowsRead, r.LastRun.RowsSkipped)
	}
	fmt.Printf("  Columns: %s\n\n", strings.Join(r.Columns, ", "))

	fmt.Println("  TABLES")
	fmt.Println("  ────────────────────────────────────────")
	for _, t := range []string{"concept", "synonym", "definition", "hierarchy_closure"} {
		if n, ok := r.Tables[t]; ok {
			fmt.Printf("  %-18s %d\n", t, n)
		} else {
			fmt.Printf("  %-18s -\n", t)
		}
	}

	h := r.Hierarchy
	fmt.Println("\n  HIERARCHY")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Concepts: %d  Roots: %d  Trees: %d\n", h.Concepts, h.Roots, h.Trees)
	fmt.Printf("  Largest tree: %d  Max depth: %d\n", h.LargestTree, h.MaxDepth)

	if h.Dangling > 0 {
		fmt.Printf("  Dangling parents: %d concepts point at missing parents\n", h.Dangling)
		printIDs(h.DanglingIDs, h.Dangling, analyzeTopN)
	}
	if h.Cyclic > 0 {
		fmt.Printf("  Cyclic chains: %d concepts (closure will fail)\n", h.Cyclic)
		printIDs(h.CyclicIDs, h.Cyclic, analyzeTopN)
	}

	fmt.Println("\n  Depth distribution:")
	for _, b := range h.DepthHistogram {
		if b.Count > 0 {
			barWidth := int(math.Log2(float64(b.Count))) + 2
			fmt.Printf("    %5s: %6d  %s\n", b.Label, b.Count, strings.Repeat("=", barWidth))
		}
	}
	fmt.Println()
}

func printIDs(ids []string, total, limit int) {
	if len(ids) < limit {
		limit = len(ids)
	}
	for _, id := range ids[:limit] {
		fmt.Printf("    - %s\n", id)
	}
	if total > limit {
		fmt.Printf("    ... and %d more\n", total-limit)
	}
}
