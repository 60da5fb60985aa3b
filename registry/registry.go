// Package registry publishes built graphs under caller-chosen dataset names
// and tracks which one is active. It is the only component external callers
// touch concurrently: writers replace entries wholesale, readers never see a
// partially built graph because graphs are published only after the build is
// complete.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/alvmarrod/reperio/database"
	"github.com/alvmarrod/reperio/graph"
)

// ErrNotFound is returned when a dataset name is not registered.
var ErrNotFound = errors.New("dataset not found")

// Dataset is one published entry: an immutable graph plus the report of the
// load that built it.
type Dataset struct {
	Name     string
	Graph    *graph.Graph
	Report   *database.Report
	LoadedAt time.Time
}

// Summary describes one entry for listings.
type Summary struct {
	Name       string
	Kind       string
	Records    int64
	Partitions int
	Truncated  bool
	Duration   time.Duration
	Nodes      int
	Edges      int
	LoadedAt   time.Time
	Active     bool
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Dataset
	active  string
}

// New returns an empty registry with no active dataset.
func New() *Registry {
	return &Registry{entries: map[string]*Dataset{}}
}

// Put publishes a dataset under name, replacing any previous entry with that
// name wholesale. The first dataset ever published becomes active.
func (r *Registry) Put(name string, g *graph.Graph, rep *database.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[name] = &Dataset{
		Name:     name,
		Graph:    g,
		Report:   rep,
		LoadedAt: time.Now(),
	}
	if r.active == "" {
		r.active = name
	}
}

// Get looks up a dataset by name.
func (r *Registry) Get(name string) (*Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[name]
	return d, ok
}

// Activate marks name as the active dataset. An unknown name returns
// ErrNotFound and leaves the current active dataset in place.
func (r *Registry) Activate(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return errors.Wrap(ErrNotFound, name)
	}
	r.active = name
	return nil
}

// Active returns the active dataset, if any.
func (r *Registry) Active() (*Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[r.active]
	return d, ok
}

// List summarizes all entries, sorted by name.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.entries))
	for name, d := range r.entries {
		s := Summary{
			Name:     name,
			LoadedAt: d.LoadedAt,
			Active:   name == r.active,
		}
		if d.Report != nil {
			s.Kind = string(d.Report.Kind)
			s.Records = d.Report.Records
			s.Partitions = d.Report.Partitions
			s.Truncated = d.Report.Truncated
			s.Duration = d.Report.Duration
		}
		if d.Graph != nil {
			s.Nodes = d.Graph.Order()
			s.Edges = d.Graph.Size()
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
