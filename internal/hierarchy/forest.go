// Package hierarchy works on the single-parent concept forest: closure
// building and structural reports.
package hierarchy

import "sort"

// Link is one concept and its parent pointer, decoupled from DB types.
type Link struct {
	ID       string
	ParentID *string
}

// Forest is the immutable id → parent map read by closure workers.
type Forest struct {
	parents map[string]*string
	ids     []string // sorted, for deterministic output
}

// NewForest builds a Forest. A later link for the same id replaces an
// earlier one.
func NewForest(links []Link) *Forest {
	parents := make(map[string]*string, len(links))
	for _, l := range links {
		var p *string
		if l.ParentID != nil {
			v := *l.ParentID
			p = &v
		}
		parents[l.ID] = p
	}
	ids := make([]string, 0, len(parents))
	for id := range parents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &Forest{parents: parents, ids: ids}
}

// Len returns the number of concepts.
func (f *Forest) Len() int { return len(f.ids) }

// IDs returns all concept ids in sorted order. Callers must not modify it.
func (f *Forest) IDs() []string { return f.ids }

// Has reports whether id is a concept of the forest.
func (f *Forest) Has(id string) bool {
	_, ok := f.parents[id]
	return ok
}

// Parent returns the parent pointer of id. The bool is false for roots
// and for ids outside the forest.
func (f *Forest) Parent(id string) (string, bool) {
	p := f.parents[id]
	if p == nil {
		return "", false
	}
	return *p, true
}
