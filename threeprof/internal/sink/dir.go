package sink

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/3jsLive/tasks/threeprof/result"
)

// Dir writes one JSON file per URL into a directory. In split mode every
// top-level key goes to its own "<name>_<key>.json" file instead.
type Dir struct {
	dir     string
	baseURL string
	split   bool

	mu        sync.Mutex
	names     map[string]int  // next suffix per natural name
	used      map[string]bool // every name handed out
	artifacts []result.Artifact
}

// NewDir creates a Dir sink. The directory is created on first write.
func NewDir(dir, baseURL string, split bool) *Dir {
	return &Dir{dir: dir, baseURL: baseURL, split: split, names: make(map[string]int), used: make(map[string]bool)}
}

func (d *Dir) Send(_ context.Context, res *result.ProfilingResult) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("sink: dir: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.split {
		name := d.uniqueLocked(result.FileName(res.URL, d.baseURL, ""))
		return d.writeLocked(res, name, res)
	}
	for _, key := range result.Keys {
		name := d.uniqueLocked(result.FileName(res.URL, d.baseURL, key))
		if err := d.writeLocked(res, name, res.Split()[key]); err != nil {
			return err
		}
	}
	return nil
}

// uniqueLocked suffixes repeated names so two URLs never share a file. A
// suffixed name may equal another URL's natural name, so every candidate is
// checked against the names already handed out.
func (d *Dir) uniqueLocked(name string) string {
	stem := strings.TrimSuffix(name, ".json")
	for n := d.names[name]; ; n++ {
		cand := name
		if n > 0 {
			cand = fmt.Sprintf("%s_%d.json", stem, n)
		}
		if d.used[cand] {
			continue
		}
		d.names[name] = n + 1
		d.used[cand] = true
		return cand
	}
}

func (d *Dir) writeLocked(res *result.ProfilingResult, name string, v any) error {
	data, err := result.Marshal(v)
	if err != nil {
		return fmt.Errorf("sink: marshal %s: %w", res.URL, err)
	}
	path := filepath.Join(d.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sink: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("sink: rename %s: %w", name, err)
	}
	sum := blake2b.Sum256(data)
	d.artifacts = append(d.artifacts, result.Artifact{
		URL:    res.URL,
		Status: res.Status,
		File:   path,
		Digest: hex.EncodeToString(sum[:]),
		Errors: append([]string(nil), res.Errors...),
	})
	return nil
}

func (d *Dir) SendSummary(context.Context, result.RunSummary) error { return nil }

// Artifacts lists every file written so far, in write order.
func (d *Dir) Artifacts() []result.Artifact {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]result.Artifact{}, d.artifacts...)
}

func (d *Dir) Close() error { return nil }
