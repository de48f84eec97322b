package hierarchy

// UnionFind groups concepts into trees, with path compression and union by
// rank
type UnionFind struct {
	parent map[string]string
	rank   map[string]int
	size   map[string]int
}

// NewUnionFind creates a UnionFind where every concept is its own tree
func NewUnionFind(ids []string) *UnionFind {
	uf := &UnionFind{
		parent: make(map[string]string, len(ids)),
		rank:   make(map[string]int, len(ids)),
		size:   make(map[string]int, len(ids)),
	}
	for _, id := range ids {
		uf.parent[id] = id
		uf.size[id] = 1
	}
	return uf
}

// Find returns the representative of id's tree
func (uf *UnionFind) Find(id string) string {
	root := id
	for {
		p, ok := uf.parent[root]
		if !ok || p == root {
			break
		}
		root = p
	}
	// compress
	for id != root {
		next := uf.parent[id]
		uf.parent[id] = root
		id = next
	}
	return root
}

// Union joins the trees of a and b. Returns true if they were separate.
func (uf *UnionFind) Union(a, b string) bool {
	ra, rb := uf.Find(a), uf.Find(b)
	if ra == rb {
		return false
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
	return true
}

// Sizes returns the size of every tree keyed by its representative
func (uf *UnionFind) Sizes() map[string]int {
	out := make(map[string]int)
	for id := range uf.parent {
		if uf.Find(id) == id {
			out[id] = uf.size[id]
		}
	}
	return out
}
