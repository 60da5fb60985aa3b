package database_test

import (
	"context"
	"fmt"
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

// writePart writes one map-file partition (part dir with a data child) under
// dir, containing the given records.
func writePart(t *testing.T, dir string, idx int, pairs []sequencefiletest.Pair, opts sequencefiletest.Options) {
	t.Helper()
	partDir := filepath.Join(dir, fmt.Sprintf("part-r-%05d", idx))
	require.NoError(t, os.MkdirAll(partDir, 0o755))
	require.NoError(t, sequencefiletest.WriteFile(filepath.Join(partDir, "data"), pairs, opts))
}

func crawlPair(url string, score float32) sequencefiletest.Pair {
	return sequencefiletest.Pair{
		Key: nutchtest.TextKey(url),
		Value: nutchtest.CrawlDatumValue(nutchtest.Datum{
			Status: nutch.StatusFetched,
			Score:  score,
		}),
	}
}

func TestDiscoverPartitionsSortsByShardIndex(t *testing.T) {
	root := t.TempDir()
	cur := filepath.Join(root, "current")
	for _, idx := range []int{2, 0, 1} {
		writePart(t, cur, idx, []sequencefiletest.Pair{crawlPair("http://example.org/", 1)}, sequencefiletest.Options{})
	}
	require.NoError(t, os.WriteFile(filepath.Join(cur, "_SUCCESS"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cur, "notes.txt"), nil, 0o644))

	parts, err := database.DiscoverPartitions(context.Background(), hadoopfs.Local{}, root)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	for i, p := range parts {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, filepath.Join(cur, fmt.Sprintf("part-r-%05d", i), "data"), p.Path)
	}
}

func TestDiscoverPartitionsCurrentDirectory(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{crawlPair("http://example.org/", 1)}, sequencefiletest.Options{})

	parts, err := database.DiscoverPartitions(context.Background(), hadoopfs.Local{}, cur)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, 0, parts[0].Index)
}

func TestDiscoverPartitionsBarePartFiles(t *testing.T) {
	cur := t.TempDir()
	require.NoError(t, sequencefiletest.WriteFile(
		filepath.Join(cur, "part-00003"),
		[]sequencefiletest.Pair{crawlPair("http://example.org/", 1)},
		sequencefiletest.Options{}))

	parts, err := database.DiscoverPartitions(context.Background(), hadoopfs.Local{}, cur)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, 3, parts[0].Index)
	assert.Equal(t, filepath.Join(cur, "part-00003"), parts[0].Path)
}

func TestDiscoverPartitionsDirectFile(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 7, []sequencefiletest.Pair{crawlPair("http://example.org/", 1)}, sequencefiletest.Options{})
	dataPath := filepath.Join(cur, "part-r-00007", "data")

	parts, err := database.DiscoverPartitions(context.Background(), hadoopfs.Local{}, dataPath)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, 7, parts[0].Index)
	assert.Equal(t, dataPath, parts[0].Path)
}

func TestDiscoverPartitionsSkipsDirWithoutData(t *testing.T) {
	cur := t.TempDir()
	writePart(t, cur, 0, []sequencefiletest.Pair{crawlPair("http://example.org/", 1)}, sequencefiletest.Options{})
	require.NoError(t, os.MkdirAll(filepath.Join(cur, "part-r-00001"), 0o755))

	parts, err := database.DiscoverPartitions(context.Background(), hadoopfs.Local{}, cur)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, 0, parts[0].Index)
}

func TestDiscoverPartitionsNoneFound(t *testing.T) {
	cur := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cur, "_SUCCESS"), nil, 0o644))

	_, err := database.DiscoverPartitions(context.Background(), hadoopfs.Local{}, cur)
	require.ErrorIs(t, err, database.ErrNoPartitions)
}

func TestDiscoverPartitionsMissingPath(t *testing.T) {
	_, err := database.DiscoverPartitions(context.Background(), hadoopfs.Local{},
		filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, database.ErrNoPartitions)
}
