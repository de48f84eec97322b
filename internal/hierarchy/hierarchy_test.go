package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

// forestOf builds a forest from child→parent pairs; an empty parent is a root.
func forestOf(pairs [][2]string) *Forest {
	var links []Link
	for _, p := range pairs {
		l := Link{ID: p[0]}
		if p[1] != "" {
			l.ParentID = strPtr(p[1])
		}
		links = append(links, l)
	}
	return NewForest(links)
}

func chainForest() *Forest {
	return forestOf([][2]string{
		{"root", ""},
		{"p3", "root"},
		{"p2", "p3"},
		{"p1", "p2"},
		{"x", "p1"},
	})
}

// --- Chain Tests ---

func TestChain_FourLevels(t *testing.T) {
	f := chainForest()
	got, err := f.Chain("x", DefaultClosureOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"p1", "p2", "p3", "root"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("chain = %v, want %v", got, want)
	}
}

func TestChain_RootHasNoAncestors(t *testing.T) {
	f := chainForest()
	got, err := f.Chain("root", DefaultClosureOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("root chain = %v, want empty", got)
	}
}

func TestChain_DanglingTolerant(t *testing.T) {
	f := forestOf([][2]string{{"a", "b"}, {"b", "missing"}})
	got, err := f.Chain("a", DefaultClosureOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("chain = %v, want [b]", got)
	}
}

func TestChain_DanglingStrict(t *testing.T) {
	f := forestOf([][2]string{{"a", "b"}, {"b", "missing"}})
	opts := DefaultClosureOptions()
	opts.Strictness = Strict
	_, err := f.Chain("a", opts)
	var de *DanglingError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DanglingError, got %v", err)
	}
	if de.ID != "b" || de.ParentID != "missing" || de.Start != "a" {
		t.Errorf("unexpected dangling error fields: %+v", de)
	}
}

func TestChain_Cycle(t *testing.T) {
	f := forestOf([][2]string{{"x", "a"}, {"a", "b"}, {"b", "c"}, {"c", "a"}})
	_, err := f.Chain("x", DefaultClosureOptions())
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	if !reflect.DeepEqual(ce.Cycle, []string{"a", "b", "c"}) {
		t.Errorf("cycle = %v, want [a b c]", ce.Cycle)
	}
	if !strings.Contains(err.Error(), "a -> b -> c -> a") {
		t.Errorf("error should list the cycle, got: %v", err)
	}
}

func TestChain_SelfParent(t *testing.T) {
	f := forestOf([][2]string{{"a", "a"}})
	_, err := f.Chain("a", DefaultClosureOptions())
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	if !reflect.DeepEqual(ce.Cycle, []string{"a"}) {
		t.Errorf("cycle = %v, want [a]", ce.Cycle)
	}
}

func TestChain_DepthCutoff(t *testing.T) {
	f := chainForest()
	opts := DefaultClosureOptions()
	opts.MaxDepth = 3
	_, err := f.Chain("x", opts)
	var de *DepthError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DepthError, got %v", err)
	}
	if de.Start != "x" || de.MaxDepth != 3 {
		t.Errorf("unexpected depth error fields: %+v", de)
	}

	// Exactly at the limit is fine
	opts.MaxDepth = 4
	if _, err := f.Chain("x", opts); err != nil {
		t.Errorf("chain of length 4 with max depth 4 should pass, got %v", err)
	}
}

// --- BuildClosure Tests ---

func TestBuildClosure_Levels(t *testing.T) {
	rows, err := BuildClosure(context.Background(), chainForest(), DefaultClosureOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := map[string]int{}
	for _, r := range rows {
		if r.ID == "x" {
			got[r.AncestorID] = r.Level
		}
		if r.ID == "root" {
			t.Errorf("root should have no closure rows, got %+v", r)
		}
	}
	want := map[string]int{"p1": 1, "p2": 2, "p3": 3, "root": 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("levels of x = %v, want %v", got, want)
	}
	// 4 + 3 + 2 + 1 + 0
	if len(rows) != 10 {
		t.Errorf("expected 10 rows, got %d", len(rows))
	}
}

func TestBuildClosure_Empty(t *testing.T) {
	rows, err := BuildClosure(context.Background(), NewForest(nil), DefaultClosureOptions())
	if err != nil || len(rows) != 0 {
		t.Errorf("empty forest: rows=%v err=%v", rows, err)
	}
}

func TestBuildClosure_CycleFails(t *testing.T) {
	f := forestOf([][2]string{{"root", ""}, {"a", "b"}, {"b", "a"}})
	_, err := BuildClosure(context.Background(), f, DefaultClosureOptions())
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
}

func TestBuildClosure_DeterministicAcrossWorkers(t *testing.T) {
	// A wide forest so the ids split into several chunks
	var pairs [][2]string
	pairs = append(pairs, [2]string{"r", ""})
	for i := 0; i < 2000; i++ {
		parent := "r"
		if i > 0 {
			parent = fmt.Sprintf("n%04d", (i-1)/3)
		}
		pairs = append(pairs, [2]string{fmt.Sprintf("n%04d", i), parent})
	}
	f := forestOf(pairs)

	serial := DefaultClosureOptions()
	serial.Workers = 1
	parallel := DefaultClosureOptions()
	parallel.Workers = 8

	a, err := BuildClosure(context.Background(), f, serial)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	b, err := BuildClosure(context.Background(), f, parallel)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("serial and parallel closures differ")
	}

	for i := 1; i < len(a); i++ {
		prev, cur := a[i-1], a[i]
		if prev.ID > cur.ID || (prev.ID == cur.ID && prev.Level >= cur.Level) {
			t.Fatalf("rows not ordered at %d: %+v then %+v", i, prev, cur)
		}
	}
}

func TestBuildClosure_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildClosure(ctx, chainForest(), DefaultClosureOptions())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- UnionFind Tests ---

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind([]string{"a", "b", "c", "d"})
	if !uf.Union("a", "b") {
		t.Error("first union of a,b should merge")
	}
	if uf.Union("b", "a") {
		t.Error("second union of a,b should be a no-op")
	}
	uf.Union("c", "b")
	sizes := uf.Sizes()
	if len(sizes) != 2 {
		t.Fatalf("expected 2 trees, got %d", len(sizes))
	}
	if sizes[uf.Find("a")] != 3 || sizes[uf.Find("d")] != 1 {
		t.Errorf("unexpected sizes: %v", sizes)
	}
}

// --- Report Tests ---

func TestReport_Empty(t *testing.T) {
	r := ComputeReport(NewForest(nil), 10)
	if r.Concepts != 0 || r.Trees != 0 || len(r.DepthHistogram) != 7 {
		t.Errorf("unexpected empty report: %+v", r)
	}
}

func TestReport_Forest(t *testing.T) {
	f := forestOf([][2]string{
		{"root", ""},
		{"p3", "root"},
		{"p2", "p3"},
		{"p1", "p2"},
		{"x", "p1"},
		{"other", ""},
		{"orphan", "gone"},
	})
	r := ComputeReport(f, 10)

	if r.Concepts != 7 {
		t.Errorf("concepts = %d, want 7", r.Concepts)
	}
	if r.Roots != 2 {
		t.Errorf("roots = %d, want 2", r.Roots)
	}
	// chain, other, orphan
	if r.Trees != 3 {
		t.Errorf("trees = %d, want 3", r.Trees)
	}
	if r.LargestTree != 5 {
		t.Errorf("largest tree = %d, want 5", r.LargestTree)
	}
	if r.Dangling != 1 || !reflect.DeepEqual(r.DanglingIDs, []string{"orphan"}) {
		t.Errorf("dangling = %d %v, want 1 [orphan]", r.Dangling, r.DanglingIDs)
	}
	if r.MaxDepth != 4 {
		t.Errorf("max depth = %d, want 4", r.MaxDepth)
	}
	// depth 0: root, other, orphan; 1: p3; 2-3: p2, p1; 4-7: x
	wantCounts := []int{3, 1, 2, 1, 0, 0, 0}
	for i, b := range r.DepthHistogram {
		if b.Count != wantCounts[i] {
			t.Errorf("bucket %s = %d, want %d", b.Label, b.Count, wantCounts[i])
		}
	}
}

func TestReport_TopNCaps(t *testing.T) {
	f := forestOf([][2]string{
		{"a", "gone"},
		{"b", "gone"},
		{"c", "gone"},
		{"x", "y"},
		{"y", "x"},
	})
	tests := []struct {
		topN         int
		wantDangling []string
		wantCyclic   int
	}{
		{topN: 10, wantDangling: []string{"a", "b", "c"}, wantCyclic: 2},
		{topN: 2, wantDangling: []string{"a", "b"}, wantCyclic: 2},
		{topN: 0, wantDangling: []string{}, wantCyclic: 0},
		{topN: -1, wantDangling: []string{}, wantCyclic: 0},
	}
	for _, tt := range tests {
		r := ComputeReport(f, tt.topN)
		if r.Dangling != 3 || r.Cyclic != 2 {
			t.Errorf("topN %d: counts = %d dangling %d cyclic, want 3 and 2", tt.topN, r.Dangling, r.Cyclic)
		}
		if !reflect.DeepEqual(r.DanglingIDs, tt.wantDangling) {
			t.Errorf("topN %d: dangling ids = %v, want %v", tt.topN, r.DanglingIDs, tt.wantDangling)
		}
		if len(r.CyclicIDs) != tt.wantCyclic {
			t.Errorf("topN %d: cyclic ids = %v, want %d", tt.topN, r.CyclicIDs, tt.wantCyclic)
		}
	}
}

func TestReport_CountsCycles(t *testing.T) {
	f := forestOf([][2]string{{"a", "b"}, {"b", "a"}, {"c", "a"}, {"r", ""}})
	r := ComputeReport(f, 1)
	if r.Cyclic != 3 {
		t.Errorf("cyclic = %d, want 3", r.Cyclic)
	}
	if len(r.CyclicIDs) != 1 {
		t.Errorf("cyclic ids should be capped at topN, got %v", r.CyclicIDs)
	}
}
