package graph

import (
	"math/rand"
	"regexp"
	"sort"

	"github.com/pkg/errors"
)

// FilterByStatus returns the induced subgraph of nodes whose status
// attribute equals status.
func (g *Graph) FilterByStatus(status string) *Graph {
	keep := map[string]bool{}
	g.Nodes(func(n *Node) bool {
		if s, _ := n.Attributes[AttrStatus].(string); s == status {
			keep[n.Key] = true
		}
		return true
	})
	return g.subgraph(keep)
}

// FilterByHost returns the induced subgraph of nodes whose hostname matches
// the regular expression pattern.
func (g *Graph) FilterByHost(pattern string) (*Graph, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid host pattern %q", pattern)
	}

	keep := map[string]bool{}
	g.Nodes(func(n *Node) bool {
		if re.MatchString(hostOf(n.Key)) {
			keep[n.Key] = true
		}
		return true
	})
	return g.subgraph(keep), nil
}

// FilterByScore returns the induced subgraph of nodes whose score attribute
// lies in [min, max], both inclusive. Pass math.Inf(1) as max to leave the
// range open above. Nodes without a score count as 0.
func (g *Graph) FilterByScore(min, max float64) *Graph {
	keep := map[string]bool{}
	g.Nodes(func(n *Node) bool {
		score, _ := n.Attributes[AttrScore].(float64)
		if score >= min && score <= max {
			keep[n.Key] = true
		}
		return true
	})
	return g.subgraph(keep)
}

// Sample returns the induced subgraph of n randomly chosen nodes. When n
// covers the whole graph, the result is a full copy.
func (g *Graph) Sample(n int) *Graph {
	keys := g.sortedKeys()
	if n >= len(keys) {
		return g.subgraphOf(keys)
	}

	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	return g.subgraphOf(keys[:n])
}

// SampleByDegree returns the induced subgraph of the n nodes with the
// highest total degree (in plus out).
func (g *Graph) SampleByDegree(n int) *Graph {
	keys := g.sortedKeys()
	if n >= len(keys) {
		return g.subgraphOf(keys)
	}

	degrees := make(map[string]int, len(keys))
	for k := range g.edges {
		degrees[k.from]++
		degrees[k.to]++
	}
	sort.SliceStable(keys, func(i, j int) bool { return degrees[keys[i]] > degrees[keys[j]] })
	return g.subgraphOf(keys[:n])
}

// subgraph copies the nodes in keep plus every edge with both endpoints
// kept. Attribute maps are copied, never shared.
func (g *Graph) subgraph(keep map[string]bool) *Graph {
	out := New()
	for key := range keep {
		out.UpsertNode(key, g.nodes[key].Attributes)
	}
	for k, e := range g.edges {
		if keep[k.from] && keep[k.to] {
			out.UpsertEdge(k.from, k.to, e.Attributes)
		}
	}
	return out
}

func (g *Graph) subgraphOf(keys []string) *Graph {
	keep := make(map[string]bool, len(keys))
	for _, k := range keys {
		keep[k] = true
	}
	return g.subgraph(keep)
}

// sortedKeys gives the node keys in a stable order, since map iteration
// would make sampling irreproducible even with a seeded source.
func (g *Graph) sortedKeys() []string {
	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
