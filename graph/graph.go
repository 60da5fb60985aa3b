// Package graph holds the in-memory directed graph a dataset load produces
// and the builder that folds decoded entities into it. A graph is built by a
// single goroutine and must be treated as immutable once published to the
// dataset registry; the read API is safe for concurrent use only then.
package graph

// Attributes annotate a node or edge. Values are restricted to
// JSON-representable scalars (string, bool, int, int64, float64) so graphs
// round-trip through exporters and the snapshot store.
type Attributes map[string]interface{}

// Node is a vertex keyed by URL or hostname.
type Node struct {
	Key        string
	Attributes Attributes
}

// Edge is a directed link between two node keys.
type Edge struct {
	From       string
	To         string
	Attributes Attributes
}

type edgeKey struct {
	from, to string
}

// Graph is a directed graph with attribute-carrying nodes and edges. The
// zero value is not usable; call New.
type Graph struct {
	nodes map[string]*Node
	edges map[edgeKey]*Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: map[string]*Node{},
		edges: map[edgeKey]*Edge{},
	}
}

// UpsertNode inserts or updates the node with the given key. Provided
// attributes overwrite existing ones key by key; attributes not named are
// left as they are, so a later record refines rather than resets a node.
func (g *Graph) UpsertNode(key string, attrs Attributes) *Node {
	n, ok := g.nodes[key]
	if !ok {
		n = &Node{Key: key, Attributes: Attributes{}}
		g.nodes[key] = n
	}
	for k, v := range attrs {
		n.Attributes[k] = v
	}
	return n
}

// UpsertEdge inserts or updates the edge from → to, creating stub nodes for
// missing endpoints. Attribute merging follows UpsertNode.
func (g *Graph) UpsertEdge(from, to string, attrs Attributes) *Edge {
	if _, ok := g.nodes[from]; !ok {
		g.UpsertNode(from, nil)
	}
	if _, ok := g.nodes[to]; !ok {
		g.UpsertNode(to, nil)
	}

	k := edgeKey{from: from, to: to}
	e, ok := g.edges[k]
	if !ok {
		e = &Edge{From: from, To: to, Attributes: Attributes{}}
		g.edges[k] = e
	}
	for ak, av := range attrs {
		e.Attributes[ak] = av
	}
	return e
}

// Node looks up a node by key.
func (g *Graph) Node(key string) (*Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// Edge looks up a directed edge by its endpoints.
func (g *Graph) Edge(from, to string) (*Edge, bool) {
	e, ok := g.edges[edgeKey{from: from, to: to}]
	return e, ok
}

// Nodes calls fn for every node until fn returns false. Iteration order is
// unspecified.
func (g *Graph) Nodes(fn func(*Node) bool) {
	for _, n := range g.nodes {
		if !fn(n) {
			return
		}
	}
}

// Edges calls fn for every edge until fn returns false. Iteration order is
// unspecified.
func (g *Graph) Edges(fn func(*Edge) bool) {
	for _, e := range g.edges {
		if !fn(e) {
			return
		}
	}
}

// Order is the node count.
func (g *Graph) Order() int {
	return len(g.nodes)
}

// Size is the edge count.
func (g *Graph) Size() int {
	return len(g.edges)
}
