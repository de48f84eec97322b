package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fmadb/internal/db"
)

var (
	ancestorsIs   string
	ancestorsJSON bool
)

type ancestorsResult struct {
	ID        string             `json:"id"`
	Label     *string            `json:"label"`
	Synonyms  []db.Synonym       `json:"synonyms,omitempty"`
	Codes     map[string][]int64 `json:"codes,omitempty"`
	Ancestors []db.Ancestor      `json:"ancestors,omitempty"`
	// Set only with --is
	Candidate  *db.Concept `json:"candidate,omitempty"`
	IsAncestor *bool       `json:"is_ancestor,omitempty"`
	Level      int         `json:"level,omitempty"`
}

var ancestorsCmd = &cobra.Command{
	Use:   "ancestors <ref>",
	Short: "List a concept's ancestors from the closure table",
	Long: `Resolve a concept by id, FMA URI, or exact term and list its ancestors,
nearest first. With --is, report whether that concept is an ancestor.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer d.Close()
		ctx := cmd.Context()

		c, err := ResolveConcept(ctx, d, args[0])
		if err != nil {
			return err
		}
		res := ancestorsResult{ID: c.ID, Label: c.Label}
		if res.Synonyms, err = d.Synonyms(ctx, c.ID); err != nil {
			return err
		}
		if res.Codes, err = conceptCodes(ctx, d, c.ID); err != nil {
			return err
		}

		if ancestorsIs != "" {
			anc, err := ResolveConcept(ctx, d, ancestorsIs)
			if err != nil {
				return err
			}
			level, ok, err := d.IsAncestor(ctx, c.ID, anc.ID)
			if err != nil {
				return err
			}
			res.Candidate, res.IsAncestor, res.Level = anc, &ok, level
		} else {
			res.Ancestors, err = d.Ancestors(ctx, c.ID)
			if err != nil {
				return err
			}
		}

		if ancestorsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		fmt.Printf("\n  %s  %s\n", c.ID, labelOf(c.Label))
		printTerms(res.Synonyms)
		systems := make([]string, 0, len(res.Codes))
		for sys := range res.Codes {
			systems = append(systems, sys)
		}
		sort.Strings(systems)
		for _, sys := range systems {
			fmt.Printf("  %s: %s\n", sys, joinCodes(res.Codes[sys]))
		}
		if res.IsAncestor != nil {
			if *res.IsAncestor {
				fmt.Printf("  is a descendant of %s %s (level %d)\n\n", res.Candidate.ID, labelOf(res.Candidate.Label), res.Level)
			} else {
				fmt.Printf("  is not a descendant of %s %s\n\n", res.Candidate.ID, labelOf(res.Candidate.Label))
			}
			return nil
		}
		if len(res.Ancestors) == 0 {
			fmt.Println("  (root: no ancestors)")
		}
		for _, a := range res.Ancestors {
			fmt.Printf("  %3d  %s  %s\n", a.Level, a.ID, truncTitle(labelOf(a.Label), 60))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	ancestorsCmd.Flags().StringVar(&ancestorsIs, "is", "", "Check whether this concept is an ancestor")
	ancestorsCmd.Flags().BoolVar(&ancestorsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(ancestorsCmd)
}

// conceptCodes collects a concept's codes from every junction system the
// store has. Systems without codes for it are left out; nil means none.
func conceptCodes(ctx context.Context, d *db.DB, id string) (map[string][]int64, error) {
	systems, err := d.JunctionSystems(ctx)
	if err != nil {
		return nil, err
	}
	var out map[string][]int64
	for _, sys := range systems {
		codes, err := d.Codes(ctx, sys, id)
		if err != nil {
			return nil, err
		}
		if len(codes) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string][]int64)
		}
		out[sys] = codes
	}
	return out, nil
}

// printTerms lists the synonym rows other than the preferred label.
func printTerms(syns []db.Synonym) {
	var terms []string
	for _, s := range syns {
		if s.TermType == "preferred_label" {
			continue
		}
		terms = append(terms, s.Term)
	}
	if len(terms) > 0 {
		fmt.Printf("  also: %s\n", strings.Join(terms, "; "))
	}
}

func joinCodes(codes []int64) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.FormatInt(c, 10)
	}
	return strings.Join(parts, ", ")
}

func truncTitle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Find a safe UTF-8 boundary
	truncated := s[:max]
	for len(truncated) > 0 && truncated[len(truncated)-1]>>6 == 2 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "..."
}
