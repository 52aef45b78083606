package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirSource reads documents from a local directory tree. Keys are slash-separated
// paths relative to the root.
type DirSource struct {
	root    string
	matcher *Matcher
}

// NewDirSource returns a source over root, which must be an existing directory.
func NewDirSource(root string, matcher *Matcher) (*DirSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return &DirSource{root: abs, matcher: matcher}, nil
}

// Root returns the absolute root directory.
func (d *DirSource) Root() string { return d.root }

// List walks the tree and returns matching file keys in lexical order.
// Hidden files and directories are skipped.
func (d *DirSource) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != d.root && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !entry.Type().IsRegular() {
			return nil
		}
		key, ok := d.Key(path)
		if ok && d.matcher.Match(key) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	return keys, nil
}

// Key converts an absolute path under the root into a source key.
func (d *DirSource) Key(path string) (string, bool) {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Matches reports whether a key passes the include and exclude patterns.
func (d *DirSource) Matches(key string) bool {
	return d.matcher.Match(key)
}

// Fetch reads the file for key. Keys escaping the root are rejected.
func (d *DirSource) Fetch(_ context.Context, key string) ([]byte, error) {
	path := filepath.Join(d.root, filepath.FromSlash(key))
	if _, ok := d.Key(path); !ok {
		return nil, fmt.Errorf("key %q is outside %s", key, d.root)
	}
	return os.ReadFile(path)
}
