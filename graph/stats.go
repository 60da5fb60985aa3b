package graph

import (
	"net/url"
	"strings"
)

// Stats summarizes a graph's shape.
type Stats struct {
	Nodes int
	Edges int
	// Density is edges over the maximum possible directed edge count,
	// self-loops excluded. Zero for graphs with fewer than two nodes.
	Density float64
}

// Stats computes the graph's summary statistics.
func (g *Graph) Stats() Stats {
	s := Stats{Nodes: g.Order(), Edges: g.Size()}
	if s.Nodes > 1 {
		s.Density = float64(s.Edges) / float64(s.Nodes*(s.Nodes-1))
	}
	return s
}

// ExtractHostGraph collapses a URL-keyed graph into a host-keyed one: every
// node maps to its hostname, parallel edges between the same host pair merge
// into one edge whose weight counts the collapsed URL edges. Host nodes carry
// the number of URLs they absorbed.
func (g *Graph) ExtractHostGraph() *Graph {
	hg := New()

	counts := map[string]int64{}
	g.Nodes(func(n *Node) bool {
		counts[hostOf(n.Key)]++
		return true
	})
	for host, c := range counts {
		hg.UpsertNode(host, Attributes{AttrNodeType: NodeTypeHost, AttrURLCount: c})
	}

	weights := map[edgeKey]int64{}
	g.Edges(func(e *Edge) bool {
		weights[edgeKey{from: hostOf(e.From), to: hostOf(e.To)}]++
		return true
	})
	for k, w := range weights {
		hg.UpsertEdge(k.from, k.to, Attributes{AttrWeight: w})
	}
	return hg
}

// hostOf extracts the hostname of a URL-shaped node key, falling back to the
// key itself for keys that do not parse as URLs.
func hostOf(key string) string {
	u, err := url.Parse(key)
	if err != nil || u.Host == "" {
		return key
	}
	return strings.ToLower(u.Hostname())
}
