// Package reperio is the ingestion core for Apache Nutch crawl databases: it
// resolves the partitions of a crawldb, linkdb or hostdb, decodes their
// records, folds them into an in-memory directed graph and publishes that
// graph into a dataset registry for downstream consumers (API layers,
// exporters, graph analytics).
package reperio

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alvmarrod/reperio/config"
	"github.com/alvmarrod/reperio/database"
	"github.com/alvmarrod/reperio/graph"
	"github.com/alvmarrod/reperio/hadoopfs"
	"github.com/alvmarrod/reperio/metrics"
	"github.com/alvmarrod/reperio/nutch"
	"github.com/alvmarrod/reperio/registry"
	"github.com/alvmarrod/reperio/snapshot"
)

// LoadSpec names one dataset to load.
type LoadSpec struct {
	// Name is the registry name; defaults to the kind.
	Name string
	// Path is a partition file, "current" directory or database root, local
	// or behind a registered storage scheme.
	Path string
	Kind nutch.Kind
	// MaxRecords caps the load; 0 falls back to the configured default.
	MaxRecords int64
	Progress   database.Progress
}

func (ls LoadSpec) name() string {
	if ls.Name != "" {
		return ls.Name
	}
	return string(ls.Kind)
}

// Service owns the dataset registry and runs loads against it.
type Service struct {
	cfg     *config.Config
	reg     *registry.Registry
	metrics *metrics.Metrics
	cache   *snapshot.Store
}

// NewService builds a service from cfg (nil picks defaults). Metrics may be
// nil for uninstrumented use. When the config enables caching, the sqlite
// snapshot store is opened here.
func NewService(cfg *config.Config, m *metrics.Metrics) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Service{cfg: cfg, reg: registry.New(), metrics: m}
	if cfg.CacheEnabled {
		store, err := snapshot.NewStore(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open graph cache: %w", err)
		}
		s.cache = store
	}
	return s, nil
}

// Close releases the graph cache, if one is open.
func (s *Service) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

// Registry exposes the dataset registry for external consumers.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// Load runs one dataset load end to end: resolve partitions, decode records,
// build the graph, publish it. Per-record and per-partition trouble is
// aggregated on the returned report; only resolution failures and a total
// failure of the first partition return an error, in which case nothing is
// published.
func (s *Service) Load(ctx context.Context, spec LoadSpec) (*database.Report, error) {
	fs, err := hadoopfs.ForPath(spec.Path, s.cfg.StorageOptions())
	if err != nil {
		return nil, err
	}

	maxRecords := spec.MaxRecords
	if maxRecords == 0 {
		maxRecords = s.cfg.DefaultMaxRecords
	}

	loader := database.NewLoader(fs, database.Options{
		MaxRecords:  maxRecords,
		OpenRetries: uint64(s.cfg.OpenRetries),
		Progress:    spec.Progress,
		Metrics:     s.metrics,
	})

	scan, err := loader.Open(ctx, spec.Path, spec.Kind)
	if err != nil {
		return nil, err
	}
	defer scan.Close()

	b := graph.NewBuilder()
	for scan.Next() {
		if err := b.Add(scan.Entity()); err != nil {
			return nil, err
		}
	}
	if err := scan.Err(); err != nil {
		return scan.Report(), err
	}

	name := spec.name()
	report := scan.Report()
	g := b.Graph()
	s.reg.Put(name, g, report)
	log.Infof("Published dataset %s: %d records into %d nodes / %d edges (%d decode errors, %d partition errors)",
		name, report.Records, g.Order(), g.Size(), report.DecodeErrors, len(report.PartitionErrors))

	if s.cache != nil {
		if err := s.cache.SaveGraph(name, string(spec.Kind), g); err != nil {
			log.Warnf("Failed to cache dataset %s: %v", name, err)
		}
	}
	return report, nil
}

// LoadAll runs multiple dataset loads concurrently. Individual failures are
// logged and reported per name; the call errors only when every load failed.
func (s *Service) LoadAll(ctx context.Context, specs []LoadSpec) (map[string]*database.Report, error) {
	var (
		mu       sync.Mutex
		reports  = make(map[string]*database.Report, len(specs))
		firstErr error
	)

	var eg errgroup.Group
	for _, spec := range specs {
		spec := spec
		eg.Go(func() error {
			report, err := s.Load(ctx, spec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warnf("Failed to load dataset %s: %v", spec.name(), err)
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			reports[spec.name()] = report
			return nil
		})
	}
	_ = eg.Wait()

	if len(reports) == 0 && len(specs) > 0 {
		return nil, errors.Wrap(firstErr, "all dataset loads failed")
	}
	return reports, nil
}

// Restore republishes a cached graph under its snapshot name. It returns
// registry.ErrNotFound when caching is off or no snapshot with that name
// exists.
func (s *Service) Restore(name string) error {
	if s.cache == nil {
		return errors.Wrap(registry.ErrNotFound, name)
	}
	g, err := s.cache.LoadGraph(name)
	if err != nil {
		return err
	}
	if g == nil {
		return errors.Wrap(registry.ErrNotFound, name)
	}
	s.reg.Put(name, g, nil)
	return nil
}

// ListDatasets summarizes the published datasets.
func (s *Service) ListDatasets() []registry.Summary {
	return s.reg.List()
}

// Activate marks a published dataset as active.
func (s *Service) Activate(name string) error {
	return s.reg.Activate(name)
}

// ActiveGraph returns the graph of the active dataset, if any.
func (s *Service) ActiveGraph() (*graph.Graph, bool) {
	d, ok := s.reg.Active()
	if !ok {
		return nil, false
	}
	return d.Graph, true
}
