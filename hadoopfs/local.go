package hadoopfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local is the local-filesystem backend. It accepts plain paths and
// file:// URLs.
type Local struct{}

// Open opens a local file for reading.
func (Local) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(stripFileScheme(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// List enumerates the immediate children of a local directory.
func (Local) List(ctx context.Context, path string) ([]FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := stripFileScheme(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			// Entry vanished between readdir and stat; skip it.
			continue
		}
		infos = append(infos, FileInfo{
			Path:    filepath.Join(dir, e.Name()),
			Size:    fi.Size(),
			IsDir:   e.IsDir(),
			ModTime: fi.ModTime(),
		})
	}
	return infos, nil
}

// Stat describes a local path.
func (Local) Stat(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	p := stripFileScheme(path)
	fi, err := os.Stat(p)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return FileInfo{Path: p, Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime()}, nil
}

func stripFileScheme(path string) string {
	return strings.TrimPrefix(path, "file://")
}
