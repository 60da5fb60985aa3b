package graph

import (
	"github.com/pkg/errors"

	"github.com/alvmarrod/reperio/nutch"
)

// Node attribute names written by the builder.
const (
	AttrNodeType      = "node_type"
	AttrStatus        = "status"
	AttrStatusCode    = "status_code"
	AttrScore         = "score"
	AttrFetchTime     = "fetch_time"
	AttrRetries       = "retries"
	AttrFetchInterval = "fetch_interval"
	AttrAnchor        = "anchor"
	AttrHomepage      = "homepage"
	AttrFetched       = "fetched"
	AttrUnfetched     = "unfetched"
	AttrWeight        = "weight"
	AttrURLCount      = "url_count"
)

// Node type values.
const (
	NodeTypeURL  = "url"
	NodeTypeHost = "host"
)

// Builder folds a stream of decoded entities into a graph, one entity at a
// time. Crawl records become URL nodes, link records become edges (with stub
// nodes for unseen endpoints), host records become host nodes. Within one
// build, a later record for the same key wins attribute by attribute.
type Builder struct {
	g *Graph
}

// NewBuilder starts a build over an empty graph.
func NewBuilder() *Builder {
	return &Builder{g: New()}
}

// Add folds one entity into the graph.
func (b *Builder) Add(e nutch.Entity) error {
	switch v := e.(type) {
	case *nutch.CrawlDatum:
		// fetch_time and fetch_interval are written even when zero, so a
		// later record fully supersedes an earlier one.
		fetchMillis := int64(0)
		if !v.FetchTime.IsZero() {
			fetchMillis = v.FetchTime.UnixMilli()
		}
		b.g.UpsertNode(v.URL, Attributes{
			AttrNodeType:      NodeTypeURL,
			AttrStatus:        v.Status.String(),
			AttrStatusCode:    int(v.Status),
			AttrScore:         float64(v.Score),
			AttrRetries:       v.Retries,
			AttrFetchTime:     fetchMillis,
			AttrFetchInterval: int(v.FetchInterval.Seconds()),
		})
	case *nutch.Inlinks:
		for _, l := range v.Links {
			b.g.UpsertEdge(l.From, v.URL, Attributes{AttrAnchor: l.Anchor})
		}
	case *nutch.HostDatum:
		attrs := Attributes{
			AttrNodeType:  NodeTypeHost,
			AttrFetched:   v.Fetched,
			AttrUnfetched: v.Unfetched,
		}
		if v.Homepage != "" {
			attrs[AttrHomepage] = v.Homepage
		}
		b.g.UpsertNode(v.Host, attrs)
	default:
		return errors.Errorf("unsupported entity type %T", e)
	}
	return nil
}

// Graph returns the graph built so far. After handing it out the caller must
// stop calling Add.
func (b *Builder) Graph() *Graph {
	return b.g
}
