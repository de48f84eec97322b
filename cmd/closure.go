package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"fmadb/internal/db"
	"fmadb/internal/hierarchy"
)

var (
	closureStrict   bool
	closureMaxDepth int
	closureWorkers  int
	closureJSON     bool
)

type closureResult struct {
	Store      string `json:"store"`
	Concepts   int    `json:"concepts"`
	Rows       int    `json:"rows"`
	Strictness string `json:"strictness"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

var closureCmd = &cobra.Command{
	Use:   "closure <store>",
	Short: "Rebuild the hierarchy_closure table from concept parent pointers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return fmt.Errorf("store not found: %s", args[0])
		}
		d, err := db.OpenDB(args[0])
		if err != nil {
			return err
		}
		defer d.Close()

		opts := hierarchy.DefaultClosureOptions()
		if closureStrict {
			opts.Strictness = hierarchy.Strict
		}
		opts.MaxDepth = closureMaxDepth
		if closureWorkers > 0 {
			opts.Workers = closureWorkers
		}

		start := time.Now()
		forest, err := hierarchy.ForestFromDB(cmd.Context(), d)
		if err != nil {
			return fmt.Errorf("loading concepts: %w", err)
		}
		log.Debug("walking parent chains", "concepts", forest.Len(), "workers", opts.Workers)

		rows, err := hierarchy.BuildClosure(cmd.Context(), forest, opts)
		if err != nil {
			return fmt.Errorf("building closure: %w", err)
		}
		n, err := hierarchy.WriteClosure(cmd.Context(), d, rows)
		if err != nil {
			return err
		}

		res := closureResult{
			Store:      args[0],
			Concepts:   forest.Len(),
			Rows:       n,
			Strictness: string(opts.Strictness),
			ElapsedMs:  time.Since(start).Milliseconds(),
		}
		log.Info("closure rebuilt", "rows", n, "elapsed_ms", res.ElapsedMs)

		if closureJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		fmt.Printf("  hierarchy_closure: %d rows for %d concepts (%s)\n", res.Rows, res.Concepts, res.Strictness)
		return nil
	},
}

func init() {
	closureCmd.Flags().BoolVar(&closureStrict, "strict", false, "Fail on parent references to missing concepts")
	closureCmd.Flags().IntVar(&closureMaxDepth, "max-depth", hierarchy.DefaultMaxDepth, "Longest parent chain accepted")
	closureCmd.Flags().IntVar(&closureWorkers, "workers", 0, "Parallel chain walkers (default GOMAXPROCS)")
	closureCmd.Flags().BoolVar(&closureJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(closureCmd)
}
