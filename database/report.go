package database

import (
	"fmt"
	"time"

	"github.com/alvmarrod/reperio/nutch"
)

// PartitionError records one partition that was skipped during a load, with
// the failure that caused the skip.
type PartitionError struct {
	Partition Partition
	Err       error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %d (%s): %v", e.Partition.Index, e.Partition.Path, e.Err)
}

func (e *PartitionError) Unwrap() error {
	return e.Err
}

// CrawlStats aggregates crawldb records seen during one load.
type CrawlStats struct {
	// StatusCounts is keyed by status name (fetched, unfetched, ...).
	StatusCounts map[string]int64
	ScoreMin     float64
	ScoreMax     float64
	ScoreAvg     float64
}

// LinkStats aggregates linkdb records seen during one load.
type LinkStats struct {
	// Targets is the number of linkdb records, one per target URL.
	Targets int64
	// Inlinks is the total inbound links across all targets.
	Inlinks int64
}

// HostStats aggregates hostdb records seen during one load.
type HostStats struct {
	Hosts     int64
	Fetched   int64
	Unfetched int64
}

// Report describes the outcome of one dataset load. Per-record and
// per-partition failures are aggregated here rather than raised; callers
// inspect the report to learn about degraded loads.
type Report struct {
	Kind nutch.Kind
	Path string

	// Partitions is the number resolved; PartitionsRead the number fully
	// read.
	Partitions     int
	PartitionsRead int

	Records      int64
	DecodeErrors int64
	// PartitionErrors lists every partition skipped on open or aborted
	// mid-read.
	PartitionErrors []*PartitionError

	// Truncated reports that the record ceiling stopped the load before all
	// partitions were exhausted.
	Truncated bool
	Duration  time.Duration

	// Exactly one of these is set, matching Kind.
	Crawl *CrawlStats
	Link  *LinkStats
	Host  *HostStats

	crawlSeen int64
	scoreSum  float64
}

// observe folds one decoded entity into the per-kind statistics.
func (r *Report) observe(e nutch.Entity) {
	switch v := e.(type) {
	case *nutch.CrawlDatum:
		if r.Crawl == nil {
			r.Crawl = &CrawlStats{StatusCounts: map[string]int64{}}
		}
		r.Crawl.StatusCounts[v.Status.String()]++

		s := float64(v.Score)
		r.scoreSum += s
		r.crawlSeen++
		if r.crawlSeen == 1 || s < r.Crawl.ScoreMin {
			r.Crawl.ScoreMin = s
		}
		if r.crawlSeen == 1 || s > r.Crawl.ScoreMax {
			r.Crawl.ScoreMax = s
		}
	case *nutch.Inlinks:
		if r.Link == nil {
			r.Link = &LinkStats{}
		}
		r.Link.Targets++
		r.Link.Inlinks += int64(len(v.Links))
	case *nutch.HostDatum:
		if r.Host == nil {
			r.Host = &HostStats{}
		}
		r.Host.Hosts++
		r.Host.Fetched += v.Fetched
		r.Host.Unfetched += v.Unfetched
	}
}

// finalize fills derived fields once the scan is over.
func (r *Report) finalize() {
	if r.Crawl != nil && r.crawlSeen > 0 {
		r.Crawl.ScoreAvg = r.scoreSum / float64(r.crawlSeen)
	}
}
