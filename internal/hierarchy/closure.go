package hierarchy

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Strictness decides what a parent pointer to a missing concept means.
type Strictness string

const (
	// Tolerant ends the chain at the last existing ancestor.
	Tolerant Strictness = "tolerant"
	// Strict fails the build with a *DanglingError.
	Strict Strictness = "strict"
)

// DefaultMaxDepth bounds a single parent chain.
const DefaultMaxDepth = 4096

// ClosureOptions holds closure build parameters
type ClosureOptions struct {
	Strictness Strictness
	MaxDepth   int
	Workers    int
}

// DefaultClosureOptions returns tolerant walks bounded by DefaultMaxDepth,
// one worker per CPU.
func DefaultClosureOptions() ClosureOptions {
	return ClosureOptions{
		Strictness: Tolerant,
		MaxDepth:   DefaultMaxDepth,
		Workers:    runtime.GOMAXPROCS(0),
	}
}

// ClosureRow is one (descendant, ancestor, level) triple.
type ClosureRow struct {
	ID         string
	AncestorID string
	Level      int
}

// CycleError reports parent pointers that loop. Cycle lists the members in
// walk order, starting at the first revisited concept.
type CycleError struct {
	Start string
	Cycle []string
}

func (e *CycleError) Error() string {
	path := append(append([]string{}, e.Cycle...), e.Cycle[0])
	return fmt.Sprintf("cycle in parent references reached from %s: %s", e.Start, strings.Join(path, " -> "))
}

// DanglingError reports a parent pointer to a concept that does not exist.
type DanglingError struct {
	ID       string // concept holding the pointer
	ParentID string
	Start    string // concept whose chain was being walked
}

func (e *DanglingError) Error() string {
	return fmt.Sprintf("concept %s references missing parent %s (walking from %s)", e.ID, e.ParentID, e.Start)
}

// DepthError reports a chain longer than the configured cutoff.
type DepthError struct {
	Start    string
	MaxDepth int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("parent chain of %s exceeds max depth %d", e.Start, e.MaxDepth)
}

// Chain returns the ancestors of id, nearest first. The walk starts at the
// direct parent and stops at a root or, when tolerant, at a parent missing
// from the forest.
func (f *Forest) Chain(id string, opts ClosureOptions) ([]string, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var chain []string
	visited := map[string]int{id: -1}
	current := id
	for {
		parent, ok := f.Parent(current)
		if !ok {
			return chain, nil
		}
		if !f.Has(parent) {
			if opts.Strictness == Strict {
				return nil, &DanglingError{ID: current, ParentID: parent, Start: id}
			}
			return chain, nil
		}
		if at, seen := visited[parent]; seen {
			cycle := append([]string{parent}, chain[at+1:]...)
			return nil, &CycleError{Start: id, Cycle: cycle}
		}
		if len(chain) == maxDepth {
			return nil, &DepthError{Start: id, MaxDepth: maxDepth}
		}
		visited[parent] = len(chain)
		chain = append(chain, parent)
		current = parent
	}
}

// BuildClosure computes the closure rows of every concept. Chains are walked
// in parallel over the read-only forest; each worker fills its own slot, so
// no state is shared for writing. Rows come back ordered by descendant id,
// then level.
func BuildClosure(ctx context.Context, f *Forest, opts ClosureOptions) ([]ClosureRow, error) {
	ids := f.IDs()
	if len(ids) == 0 {
		return nil, nil
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	chunk := (len(ids) + workers - 1) / workers
	if chunk < 256 {
		chunk = 256
	}
	parts := make([][]ClosureRow, (len(ids)+chunk-1)/chunk)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range parts {
		start := i * chunk
		end := min(start+chunk, len(ids))
		g.Go(func() error {
			var rows []ClosureRow
			for _, id := range ids[start:end] {
				if err := gctx.Err(); err != nil {
					return err
				}
				chain, err := f.Chain(id, opts)
				if err != nil {
					return err
				}
				for level, anc := range chain {
					rows = append(rows, ClosureRow{ID: id, AncestorID: anc, Level: level + 1})
				}
			}
			parts[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]ClosureRow, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}
