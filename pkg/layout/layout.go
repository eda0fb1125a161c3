// Package layout owns the output tree: one directory per bucket and the crop file names.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/menta2k/crop-sorter/pkg/bucket"
)

// CropExt is the extension of every crop; crops are always JPEG encoded
const CropExt = ".jpg"

// Layout maps bucket names to destination directories under one output root.
// It is read-only once Prepare returns.
type Layout struct {
	root  string
	names []string
	dirs  map[string]string
}

// Prepare creates root/<name> for every range in table plus root/other and
// root/null, creating intermediate directories as needed. Existing
// directories and their contents are left untouched, so calling it again on
// the same root is a no-op. Every bucket directory must be writable.
func Prepare(root string, table bucket.Table) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output root %s: %w", root, err)
	}

	names := append(table.Names(), bucket.Other, bucket.NoDetections)
	l := &Layout{
		root:  abs,
		names: names,
		dirs:  make(map[string]string, len(names)),
	}

	for _, name := range names {
		dir := filepath.Join(abs, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bucket directory %s: %w", dir, err)
		}
		if err := checkWritable(dir); err != nil {
			return nil, err
		}
		l.dirs[name] = dir
	}

	return l, nil
}

// checkWritable creates and removes a temporary file in dir; MkdirAll
// succeeds on existing read-only directories
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".partial-check-*")
	if err != nil {
		return fmt.Errorf("bucket directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("failed to clean up write check in %s: %w", dir, err)
	}
	return nil
}

// Root returns the absolute output root
func (l *Layout) Root() string {
	return l.root
}

// Buckets returns all bucket names: configured ranges in order, then other, then null
func (l *Layout) Buckets() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Dir returns the destination directory for a bucket
func (l *Layout) Dir(name string) (string, bool) {
	dir, ok := l.dirs[name]
	return dir, ok
}

// NoDetectionsDir returns the directory receiving images without detections
func (l *Layout) NoDetectionsDir() string {
	return l.dirs[bucket.NoDetections]
}

// CropPath returns the destination path of a crop in the given bucket
func (l *Layout) CropPath(name, sourceName string, index int, conf float64) (string, error) {
	dir, ok := l.Dir(name)
	if !ok {
		return "", fmt.Errorf("unknown bucket %q", name)
	}
	return filepath.Join(dir, CropFilename(sourceName, index, conf)), nil
}

// NoDetectionsPath returns the destination of an unchanged image copy
func (l *Layout) NoDetectionsPath(sourceName string) string {
	return filepath.Join(l.NoDetectionsDir(), filepath.Base(sourceName))
}

// Equal reports whether two layouts resolve every bucket to the same directory
func (l *Layout) Equal(other *Layout) bool {
	if l == nil || other == nil {
		return l == other
	}
	if l.root != other.root || len(l.names) != len(other.names) {
		return false
	}
	for i, name := range l.names {
		if other.names[i] != name || other.dirs[name] != l.dirs[name] {
			return false
		}
	}
	return true
}

// CropFilename builds <base>_crop_<index>_conf<conf:.2f>.jpg from the source file name
func CropFilename(sourceName string, index int, conf float64) string {
	base := filepath.Base(sourceName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_crop_%d_conf%.2f%s", base, index, conf, CropExt)
}
