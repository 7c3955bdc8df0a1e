package coverage

import (
	"sort"

	"github.com/3jsLive/tasks/threeprof/result"
)

// collector accumulates records per repository-relative path.
type collector struct {
	lines map[string][]result.DependencyRecord
	seen  map[string]map[result.RecordKey]struct{}
}

func newCollector() *collector {
	return &collector{
		lines: make(map[string][]result.DependencyRecord),
		seen:  make(map[string]map[result.RecordKey]struct{}),
	}
}

// add keeps the first record per key; later hits with a different count
// are duplicates.
func (c *collector) add(path string, rec result.DependencyRecord) {
	seen, ok := c.seen[path]
	if !ok {
		seen = make(map[result.RecordKey]struct{})
		c.seen[path] = seen
	}
	k := rec.Key()
	if _, dup := seen[k]; dup {
		return
	}
	seen[k] = struct{}{}
	c.lines[path] = append(c.lines[path], rec)
}

func (c *collector) table() *result.DependencyTable {
	tbl := result.NewDependencyTable()
	for path, recs := range c.lines {
		sort.SliceStable(recs, func(i, j int) bool { return recordLess(recs[i], recs[j]) })
		tbl.Lines[path] = recs
	}
	tbl.Uniq = result.SortedKeys(c.lines)
	return tbl
}

func recordLess(a, b result.DependencyRecord) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if a.Location.Start != b.Location.Start {
		return a.Location.Start.Less(b.Location.Start)
	}
	if a.Location.End != b.Location.End {
		return a.Location.End.Less(b.Location.End)
	}
	return a.Code < b.Code
}
