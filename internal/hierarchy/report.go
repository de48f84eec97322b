package hierarchy

import (
	"errors"
	"sort"
)

// DepthBucket is one bucket in the depth histogram
type DepthBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Report summarizes the shape of the concept forest
type Report struct {
	Concepts       int           `json:"concepts"`
	Roots          int           `json:"roots"`
	Trees          int           `json:"trees"`
	LargestTree    int           `json:"largest_tree"`
	Dangling       int           `json:"dangling"`
	DanglingIDs    []string      `json:"dangling_ids"`
	Cyclic         int           `json:"cyclic"`
	CyclicIDs      []string      `json:"cyclic_ids"`
	MaxDepth       int           `json:"max_depth"`
	DepthHistogram []DepthBucket `json:"depth_histogram"`
}

// ComputeReport analyzes the forest: roots, trees, dangling parents, depth
// distribution. Id lists are capped at topN; a negative topN lists none.
func ComputeReport(f *Forest, topN int) *Report {
	if topN < 0 {
		topN = 0
	}
	if f.Len() == 0 {
		return &Report{DepthHistogram: defaultHistogram()}
	}

	ids := f.IDs()
	uf := NewUnionFind(ids)
	var roots int
	var dangling []string
	for _, id := range ids {
		parent, ok := f.Parent(id)
		if !ok {
			roots++
			continue
		}
		if !f.Has(parent) {
			dangling = append(dangling, id)
			continue
		}
		uf.Union(id, parent)
	}

	sizes := uf.Sizes()
	largest := 0
	for _, n := range sizes {
		if n > largest {
			largest = n
		}
	}

	// Depths of chains that end cleanly; concepts on or above a cycle are
	// counted separately.
	opts := ClosureOptions{Strictness: Tolerant, MaxDepth: DefaultMaxDepth}
	buckets := [7]int{}
	var cyclic []string
	maxDepth := 0
	for _, id := range ids {
		chain, err := f.Chain(id, opts)
		if err != nil {
			var ce *CycleError
			var de *DepthError
			if errors.As(err, &ce) || errors.As(err, &de) {
				cyclic = append(cyclic, id)
			}
			continue
		}
		if len(chain) > maxDepth {
			maxDepth = len(chain)
		}
		buckets[depthBucket(len(chain))]++
	}
	histogram := defaultHistogram()
	for i := range histogram {
		histogram[i].Count = buckets[i]
	}

	danglingCount, cyclicCount := len(dangling), len(cyclic)
	sort.Strings(dangling)
	if len(dangling) > topN {
		dangling = dangling[:topN]
	}
	if len(cyclic) > topN {
		cyclic = cyclic[:topN]
	}

	return &Report{
		Concepts:       f.Len(),
		Roots:          roots,
		Trees:          len(sizes),
		LargestTree:    largest,
		Dangling:       danglingCount,
		DanglingIDs:    dangling,
		Cyclic:         cyclicCount,
		CyclicIDs:      cyclic,
		MaxDepth:       maxDepth,
		DepthHistogram: histogram,
	}
}

func defaultHistogram() []DepthBucket {
	return []DepthBucket{
		{Label: "0"}, {Label: "1"}, {Label: "2-3"},
		{Label: "4-7"}, {Label: "8-15"}, {Label: "16-31"}, {Label: "32+"},
	}
}

func depthBucket(depth int) int {
	switch {
	case depth == 0:
		return 0
	case depth == 1:
		return 1
	case depth <= 3:
		return 2
	case depth <= 7:
		return 3
	case depth <= 15:
		return 4
	case depth <= 31:
		return 5
	default:
		return 6
	}
}
