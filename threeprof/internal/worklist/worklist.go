// Package worklist discovers example pages and filters URL lists before a
// campaign consumes them.
package worklist

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/3jsLive/tasks/threeprof/result"
)

var entryRe = regexp.MustCompile(`(?i)^\s*"([a-z0-9_]+)",?$`)

// DiscoverOptions controls Discover.
type DiscoverOptions struct {
	Repo    string
	List    string // relative to Repo, usually examples/files.js
	BaseURL string

	// CheckExistence drops names without a matching examples/<name>.html.
	CheckExistence bool
	Logger         *slog.Logger
}

// Discover reads the examples list and returns one URL per unique example
// name, in file order.
func Discover(opts DiscoverOptions) ([]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	list := opts.List
	if list == "" {
		list = filepath.Join("examples", "files.js")
	}
	data, err := os.ReadFile(filepath.Join(opts.Repo, list))
	if err != nil {
		return nil, fmt.Errorf("worklist: %w", err)
	}

	base := strings.TrimRight(opts.BaseURL, "/")
	seen := make(map[string]struct{})
	var urls []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		m := entryRe.FindStringSubmatch(strings.TrimRight(sc.Text(), "\r"))
		if m == nil {
			continue
		}
		name := m[1]
		if _, dup := seen[name]; dup {
			logger.Debug("worklist: duplicate example", "name", name)
			continue
		}
		seen[name] = struct{}{}
		if opts.CheckExistence {
			if _, err := os.Stat(filepath.Join(opts.Repo, "examples", name+".html")); err != nil {
				logger.Warn("worklist: example missing", "name", name)
				continue
			}
		}
		urls = append(urls, base+"/examples/"+name+".html")
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("worklist: scan: %w", err)
	}
	return urls, nil
}

// Filter keeps URLs that contain none of the banned substrings and at
// least one "/<prefix>_" marker.
type Filter struct {
	banned   *ahocorasick.Matcher
	prefixes *ahocorasick.Matcher
}

// NewFilter builds a filter. An empty prefix list admits every URL.
func NewFilter(banned, prefixes []string) *Filter {
	f := &Filter{}
	if len(banned) > 0 {
		f.banned = ahocorasick.NewStringMatcher(banned)
	}
	if len(prefixes) > 0 {
		markers := make([]string, len(prefixes))
		for i, p := range prefixes {
			markers[i] = "/" + p + "_"
		}
		f.prefixes = ahocorasick.NewStringMatcher(markers)
	}
	return f
}

// Allow reports whether u passes the filter.
func (f *Filter) Allow(u string) bool {
	b := []byte(u)
	if f.banned != nil && len(f.banned.MatchThreadSafe(b)) > 0 {
		return false
	}
	if f.prefixes != nil && len(f.prefixes.MatchThreadSafe(b)) == 0 {
		return false
	}
	return true
}

// Apply returns the URLs of urls that pass, preserving order.
func (f *Filter) Apply(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if f.Allow(u) {
			out = append(out, u)
		}
	}
	return out
}

// Items numbers urls into work items.
func Items(urls []string) []result.WorkItem {
	items := make([]result.WorkItem, len(urls))
	for i, u := range urls {
		items[i] = result.WorkItem{Index: i, URL: u}
	}
	return items
}
