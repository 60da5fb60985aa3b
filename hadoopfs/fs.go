// Package hadoopfs is the storage-access abstraction the ingestion core
// reads partitions through. The core only ever needs list/stat/open; a local
// filesystem backend ships in-tree, remote backends (HDFS and friends)
// register themselves by URL scheme from outside.
package hadoopfs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
)

// FileInfo describes one entry of a listing or stat call.
type FileInfo struct {
	// Path is the full path of the entry, usable with Open/Stat/List.
	Path    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// FileSystem is the minimal capability set the core depends on.
type FileSystem interface {
	// Open returns a byte stream for a file. The caller closes it.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// List enumerates the immediate children of a directory.
	List(ctx context.Context, path string) ([]FileInfo, error)
	// Stat describes a single path.
	Stat(ctx context.Context, path string) (FileInfo, error)
}

// Options carry backend settings a factory may need. They mirror the
// HDFS-related runtime configuration.
type Options struct {
	Namenode      string
	Port          int
	HadoopConfDir string
}

// Factory builds a FileSystem for a registered scheme.
type Factory func(opts Options) (FileSystem, error)

var (
	schemeMu sync.RWMutex
	schemes  = map[string]Factory{}
)

// RegisterScheme installs a backend factory for a URL scheme such as "hdfs".
// The local backend handles the empty and "file" schemes and cannot be
// replaced.
func RegisterScheme(scheme string, f Factory) {
	schemeMu.Lock()
	defer schemeMu.Unlock()
	schemes[strings.ToLower(scheme)] = f
}

// ForPath picks a backend for a path based on its URL scheme.
func ForPath(path string, opts Options) (FileSystem, error) {
	u, err := url.Parse(path)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		return Local{}, nil
	}

	schemeMu.RLock()
	f, ok := schemes[strings.ToLower(u.Scheme)]
	schemeMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no storage backend registered for scheme %q", u.Scheme)
	}
	return f(opts)
}
