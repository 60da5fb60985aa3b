package database_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/reperio/database"
	"github.com/alvmarrod/reperio/hadoopfs"
	"github.com/alvmarrod/reperio/nutch"
	"github.com/alvmarrod/reperio/nutch/nutchtest"
	"github.com/alvmarrod/reperio/sequencefile/sequencefiletest"
)

// countingFS wraps a backend and records every opened path.
type countingFS struct {
	hadoopfs.FileSystem
	opened []string
}

func (c *countingFS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	c.opened = append(c.opened, path)
	return c.FileSystem.Open(ctx, path)
}

// drainScan collects all entity keys and returns them with the final report.
func drainScan(t *testing.T, s *database.Scan) []string {
	t.Helper()
	var keys []string
	for s.Next() {
		keys = append(keys, s.Entity().EntityKey())
	}
	require.NoError(t, s.Err())
	return keys
}

func TestScanCrossesPartitionsInShardOrder(t *testing.T) {
	cur := filepath.Join(t.TempDir(), "current")
	writePart(t, cur, 1, []sequencefiletest.Pair{crawlPair("http://b.example/", 0.2)}, sequencefiletest.Options{})
	writePart(t, cur, 0, []sequencefiletest.Pair{
		crawlPair("http://a.example/1", 0.5),
		crawlPair("http://a.example/2", 0.8),
	}, sequencefiletest.Options{})
	writePart(t, cur, 2, []sequencefiletest.Pair{crawlPair("http://c.example/", 0.9)}, sequencefiletest.Options{Compression: sequencefiletest.Block})

	var progress [][3]int64
	l := database.NewLoader(hadoopfs.Local{}, database.Options{
		Progress: func(completed, total int, records int64) {
			progress = append(progress, [3]int64{int64(completed), int64(total), records})
		},
	})

	s, err := l.Open(context.Background(), filepath.Dir(cur), nutch.KindCrawlDB)
	require.NoError(t, err)

	keys := drainScan(t, s)
	assert.Equal(t, []string{
		"http://a.example/1",
		"http://a.example/2",
		"http://b.example/",
		"http://c.example/",
	}, keys)

	r := s.Report()
	assert.Equal(t, nutch.KindCrawlDB, r.Kind)
	assert.Equal(t, 3, r.Partitions)
	assert.Equal(t, 3, r.PartitionsRead)
	assert.EqualValues(t, 4, r.Records)
	assert.EqualValues(t, 0, r.DecodeErrors)
	assert.Empty(t, r.PartitionErrors)
	assert.False(t, r.Truncated)
	assert.Positive(t, r.Duration)

	assert.Equal(t, [][3]int64{{1, 3, 2}, {2, 3, 3}, {3, 3, 4}}, progress)
}

func TestScanCrawlStats(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{
		crawlPair("http://a.example/", 0.5),
		crawlPair("http://b.example/", 1.5),
		{
			Key:   nutchtest.TextKey("http://c.example/"),
			Value: nutchtest.CrawlDatumValue(nutchtest.Datum{Status: nutch.StatusUnfetched, Score: 1.0}),
		},
	}, sequencefiletest.Options{})

	l := database.NewLoader(hadoopfs.Local{}, database.Options{})
	s, err := l.Open(context.Background(), cur, nutch.KindCrawlDB)
	require.NoError(t, err)
	drainScan(t, s)

	crawl := s.Report().Crawl
	require.NotNil(t, crawl)
	assert.Equal(t, map[string]int64{"fetched": 2, "unfetched": 1}, crawl.StatusCounts)
	assert.InDelta(t, 0.5, crawl.ScoreMin, 1e-6)
	assert.InDelta(t, 1.5, crawl.ScoreMax, 1e-6)
	assert.InDelta(t, 1.0, crawl.ScoreAvg, 1e-6)
}

func TestScanRecordCapStopsEarly(t *testing.T) {
	cur := t.TempDir()
	for idx := 0; idx < 3; idx++ {
		pairs := []sequencefiletest.Pair{
			crawlPair("http://example.org/a", 0.1),
			crawlPair("http://example.org/b", 0.1),
			crawlPair("http://example.org/c", 0.1),
			crawlPair("http://example.org/d", 0.1),
		}
		writePart(t, cur, idx, pairs, sequencefiletest.Options{})
	}

	fs := &countingFS{FileSystem: hadoopfs.Local{}}
	l := database.NewLoader(fs, database.Options{MaxRecords: 6})
	s, err := l.Open(context.Background(), cur, nutch.KindCrawlDB)
	require.NoError(t, err)

	keys := drainScan(t, s)
	assert.Len(t, keys, 6)

	r := s.Report()
	assert.True(t, r.Truncated)
	assert.EqualValues(t, 6, r.Records)

	// The cap was reached inside the second partition; the third must never
	// have been opened.
	require.Len(t, fs.opened, 2)
	for _, p := range fs.opened {
		assert.NotContains(t, p, "part-r-00002")
	}
}

func TestScanSkipsUndecodableRecords(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{
		crawlPair("http://a.example/", 0.5),
		{Key: nutchtest.TextKey("http://bad.example/"), Value: []byte{0x09, 0xff}},
		crawlPair("http://b.example/", 0.5),
	}, sequencefiletest.Options{})

	l := database.NewLoader(hadoopfs.Local{}, database.Options{})
	s, err := l.Open(context.Background(), cur, nutch.KindCrawlDB)
	require.NoError(t, err)

	keys := drainScan(t, s)
	assert.Equal(t, []string{"http://a.example/", "http://b.example/"}, keys)

	r := s.Report()
	assert.EqualValues(t, 2, r.Records)
	assert.EqualValues(t, 1, r.DecodeErrors)
	assert.Empty(t, r.PartitionErrors)
}

func TestScanSkipsPartitionWithBadHeader(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{crawlPair("http://a.example/", 0.5)}, sequencefiletest.Options{})

	badDir := filepath.Join(cur, "part-r-00001")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(badDir, "data"), []byte("not a container"), 0o644))

	writePart(t, cur, 2, []sequencefiletest.Pair{crawlPair("http://c.example/", 0.5)}, sequencefiletest.Options{})

	l := database.NewLoader(hadoopfs.Local{}, database.Options{})
	s, err := l.Open(context.Background(), cur, nutch.KindCrawlDB)
	require.NoError(t, err)

	keys := drainScan(t, s)
	assert.Equal(t, []string{"http://a.example/", "http://c.example/"}, keys)

	r := s.Report()
	assert.Equal(t, 3, r.Partitions)
	assert.Equal(t, 2, r.PartitionsRead)
	require.Len(t, r.PartitionErrors, 1)
	assert.Equal(t, 1, r.PartitionErrors[0].Partition.Index)
}

func TestScanCorruptSyncAbortsOnlyThatPartition(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{
		crawlPair("http://a.example/", 0.5),
	}, sequencefiletest.Options{Compression: sequencefiletest.Block, CorruptSync: true})
	writePart(t, cur, 1, []sequencefiletest.Pair{crawlPair("http://b.example/", 0.5)}, sequencefiletest.Options{})

	l := database.NewLoader(hadoopfs.Local{}, database.Options{})
	s, err := l.Open(context.Background(), cur, nutch.KindCrawlDB)
	require.NoError(t, err)

	keys := drainScan(t, s)
	assert.Equal(t, []string{"http://b.example/"}, keys)

	r := s.Report()
	require.Len(t, r.PartitionErrors, 1)
	assert.Equal(t, 0, r.PartitionErrors[0].Partition.Index)
	assert.Equal(t, 1, r.PartitionsRead)
}

func TestScanFirstPartitionDeadContextIsFatal(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{crawlPair("http://a.example/", 0.5)}, sequencefiletest.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	l := database.NewLoader(hadoopfs.Local{}, database.Options{})
	s, err := l.Open(ctx, cur, nutch.KindCrawlDB)
	require.NoError(t, err)
	cancel()

	assert.False(t, s.Next())
	require.Error(t, s.Err())
	assert.ErrorIs(t, s.Err(), context.Canceled)
}

func TestScanMidLoadCancellationKeepsPartialData(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{crawlPair("http://a.example/", 0.5)}, sequencefiletest.Options{})
	writePart(t, cur, 1, []sequencefiletest.Pair{crawlPair("http://b.example/", 0.5)}, sequencefiletest.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	fs := &countingFS{FileSystem: hadoopfs.Local{}}
	l := database.NewLoader(fs, database.Options{})
	s, err := l.Open(ctx, cur, nutch.KindCrawlDB)
	require.NoError(t, err)

	require.True(t, s.Next())
	assert.Equal(t, "http://a.example/", s.Entity().EntityKey())
	cancel()

	// The scan terminates at once: the in-flight partition is recorded as
	// failed, the second is never opened, and the yielded data stands.
	assert.False(t, s.Next())
	assert.NoError(t, s.Err())

	r := s.Report()
	assert.EqualValues(t, 1, r.Records)
	require.Len(t, r.PartitionErrors, 1)
	assert.Equal(t, 0, r.PartitionErrors[0].Partition.Index)
	assert.ErrorIs(t, r.PartitionErrors[0].Err, context.Canceled)
	assert.Len(t, fs.opened, 1)
}

func TestScanExactRecordCapIsNotTruncated(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{
		crawlPair("http://a.example/", 0.1),
		crawlPair("http://b.example/", 0.2),
	}, sequencefiletest.Options{})

	var progress [][3]int64
	l := database.NewLoader(hadoopfs.Local{}, database.Options{
		MaxRecords: 2,
		Progress: func(completed, total int, records int64) {
			progress = append(progress, [3]int64{int64(completed), int64(total), records})
		},
	})
	s, err := l.Open(context.Background(), cur, nutch.KindCrawlDB)
	require.NoError(t, err)

	keys := drainScan(t, s)
	assert.Len(t, keys, 2)

	r := s.Report()
	assert.False(t, r.Truncated)
	assert.EqualValues(t, 2, r.Records)
	assert.Equal(t, 1, r.PartitionsRead)
	assert.Equal(t, [][3]int64{{1, 1, 2}}, progress)
}

func TestScanCapAtPartitionBoundaryWithMoreLeft(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{
		crawlPair("http://a.example/", 0.1),
		crawlPair("http://b.example/", 0.2),
	}, sequencefiletest.Options{})
	writePart(t, cur, 1, []sequencefiletest.Pair{crawlPair("http://c.example/", 0.3)}, sequencefiletest.Options{})

	fs := &countingFS{FileSystem: hadoopfs.Local{}}
	l := database.NewLoader(fs, database.Options{MaxRecords: 2})
	s, err := l.Open(context.Background(), cur, nutch.KindCrawlDB)
	require.NoError(t, err)

	keys := drainScan(t, s)
	assert.Len(t, keys, 2)

	// The first partition was fully consumed, so it counts as read; the
	// second still holds a record, so the load is truncated without
	// opening it.
	r := s.Report()
	assert.True(t, r.Truncated)
	assert.Equal(t, 1, r.PartitionsRead)
	assert.Len(t, fs.opened, 1)
}

func TestScanUnknownKindFailsAtOpen(t *testing.T) {
	l := database.NewLoader(hadoopfs.Local{}, database.Options{})
	_, err := l.Open(context.Background(), t.TempDir(), nutch.Kind("pagedb"))
	require.Error(t, err)
}
