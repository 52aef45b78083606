// Package source lists and fetches the raw documents to ingest, from S3 or a local directory.
package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Source enumerates document keys and fetches their bytes.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Matcher filters keys with doublestar include and exclude patterns. Matching ignores
// case. A key is kept when it matches any include and no exclude; with no includes
// every key is included.
type Matcher struct {
	includes []string
	excludes []string
}

// NewMatcher validates the patterns and returns a Matcher.
func NewMatcher(includes, excludes []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range includes {
		p = strings.ToLower(p)
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q", p)
		}
		m.includes = append(m.includes, p)
	}
	for _, p := range excludes {
		p = strings.ToLower(p)
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
		m.excludes = append(m.excludes, p)
	}
	return m, nil
}

// Match reports whether key passes the filter.
func (m *Matcher) Match(key string) bool {
	if m == nil {
		return true
	}
	key = strings.ToLower(key)
	if len(m.includes) > 0 && !matchAny(m.includes, key) {
		return false
	}
	return !matchAny(m.excludes, key)
}

func matchAny(patterns []string, key string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, key); err == nil && ok {
			return true
		}
	}
	return false
}
