// Package database resolves the partition files of a Nutch database and
// drives the container and record decoders across them, turning a database
// path into a single lazy stream of entities with a load report.
package database

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alvmarrod/reperio/hadoopfs"
)

// ErrNoPartitions is returned when a path resolves to zero partition files.
var ErrNoPartitions = errors.New("no partitions found")

// partName matches Hadoop reducer output filenames such as part-00000 and
// part-r-00000, capturing the shard index.
var partName = regexp.MustCompile(`^part-r?-(\d+)$`)

// Partition is one container file of a database, ordered by shard index.
type Partition struct {
	Index int
	Path  string
}

// DiscoverPartitions resolves a user-supplied path to the ordered partition
// list of a database. It accepts a direct container file, a "current"
// directory holding part files, or a database root with a current/
// subdirectory. Partitions come back sorted by shard index ascending
// regardless of listing order.
func DiscoverPartitions(ctx context.Context, fs hadoopfs.FileSystem, dbPath string) ([]Partition, error) {
	info, err := fs.Stat(ctx, dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", dbPath)
	}

	if !info.IsDir {
		return []Partition{{Index: shardIndexForFile(info.Path), Path: info.Path}}, nil
	}

	dir := info.Path
	entries, err := fs.List(ctx, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}

	// A database root carries its partitions under current/.
	if cur, ok := childDir(entries, "current"); ok {
		dir = cur
		if entries, err = fs.List(ctx, dir); err != nil {
			return nil, errors.Wrapf(err, "failed to list %s", dir)
		}
	}

	var parts []Partition
	for _, e := range entries {
		base := path.Base(e.Path)
		m := partName.FindStringSubmatch(base)
		if m == nil {
			if !strings.HasPrefix(base, "_") && !strings.HasPrefix(base, ".") {
				log.Warnf("Ignoring non-partition entry %s in %s", base, dir)
			}
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			log.Warnf("Ignoring partition %s with unparseable shard index", base)
			continue
		}

		p := e.Path
		if e.IsDir {
			// Map-file partitions keep their records in a data child.
			data, statErr := fs.Stat(ctx, path.Join(e.Path, "data"))
			if statErr != nil || data.IsDir {
				log.Warnf("Ignoring partition directory %s without a data file", base)
				continue
			}
			p = data.Path
		}
		parts = append(parts, Partition{Index: idx, Path: p})
	}

	if len(parts) == 0 {
		return nil, errors.Wrapf(ErrNoPartitions, "resolve %s", dbPath)
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].Index < parts[j].Index })
	return parts, nil
}

// shardIndexForFile derives a shard index for a directly addressed container
// file: its own name if it is a part file, its parent directory's if the file
// is a map-file data child, otherwise 0.
func shardIndexForFile(p string) int {
	base := path.Base(p)
	if base == "data" {
		base = path.Base(path.Dir(p))
	}
	if m := partName.FindStringSubmatch(base); m != nil {
		if idx, err := strconv.Atoi(m[1]); err == nil {
			return idx
		}
	}
	return 0
}

func childDir(entries []hadoopfs.FileInfo, name string) (string, bool) {
	for _, e := range entries {
		if e.IsDir && path.Base(e.Path) == name {
			return e.Path, true
		}
	}
	return "", false
}
