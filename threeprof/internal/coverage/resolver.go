// Package coverage reduces raw V8 precise coverage to authored source
// locations: bundle offset, source map, syntax node, deduplicated record.
package coverage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/3jsLive/tasks/safepath"
	"github.com/3jsLive/tasks/threeprof/internal/jsast"
	"github.com/3jsLive/tasks/threeprof/result"
)

// Options configures a Resolver.
type Options struct {
	// RepoRoot is the repository checkout that BaseURL serves.
	RepoRoot string
	BaseURL  string

	// MainScriptPath is the bundle path relative to RepoRoot.
	MainScriptPath string
	// MainScriptFilename is matched as a suffix of script URLs. Defaults
	// to the base name of MainScriptPath.
	MainScriptFilename string
	// SourceMapPath overrides source map discovery.
	SourceMapPath string

	Cache  *jsast.Cache
	Logger *slog.Logger
}

// Resolver turns coverage into a DependencyTable. It is safe for
// sequential reuse; the bundle and its map are loaded on first need.
type Resolver struct {
	opts   Options
	logger *slog.Logger
	cache  *jsast.Cache

	once      sync.Once
	bundle    *bundleMap
	bundleErr error
}

// New creates a resolver.
func New(opts Options) *Resolver {
	if opts.MainScriptFilename == "" {
		opts.MainScriptFilename = filepath.Base(filepath.FromSlash(opts.MainScriptPath))
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache := opts.Cache
	if cache == nil {
		cache = jsast.NewCache(0, 0)
	}
	return &Resolver{opts: opts, logger: logger, cache: cache}
}

// Resolve reads a coverage file, either a bare coverage array or a full
// profiling result, and resolves it. Dependencies recorded in a full
// result are carried into the table.
func (r *Resolver) Resolve(ctx context.Context, path string) (*result.DependencyTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coverage: read input: %w", err)
	}
	scripts, full, err := result.UnmarshalCoverage(data)
	if err != nil {
		return nil, fmt.Errorf("coverage: %w", err)
	}
	tbl, err := r.ResolveScripts(ctx, scripts)
	if err != nil {
		return nil, err
	}
	if full != nil && full.Dependencies != nil {
		tbl.Uniforms = result.UniqueUniforms(full.Dependencies.Uniforms)
		tbl.ShaderChunks = result.UniqueChunks(full.Dependencies.ShaderChunks)
		tbl.External = result.UniqueStrings(full.Dependencies.External)
	}
	return tbl, nil
}

// ResolveScripts resolves decoded coverage.
func (r *Resolver) ResolveScripts(ctx context.Context, scripts []result.ScriptCoverage) (*result.DependencyTable, error) {
	c := newCollector()
	for _, script := range scripts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch {
		case strings.HasSuffix(script.URL, r.opts.MainScriptFilename):
			b, err := r.loadBundle()
			if err != nil {
				return nil, err
			}
			r.logger.Debug("coverage: main script", "url", script.URL, "functions", len(script.Functions))
			for _, fn := range script.Functions {
				r.mainScript(ctx, c, b, fn)
			}
		case r.acceptable(script.URL):
			r.logger.Debug("coverage: local script", "url", script.URL, "functions", len(script.Functions))
			r.otherScript(ctx, c, script)
		}
	}
	return c.table(), nil
}

func (r *Resolver) loadBundle() (*bundleMap, error) {
	r.once.Do(func() {
		p, err := safepath.Join(r.opts.RepoRoot, r.opts.MainScriptPath)
		if err != nil {
			r.bundleErr = fmt.Errorf("coverage: main script: %w", err)
			return
		}
		r.bundle, r.bundleErr = loadBundle(p, r.opts.SourceMapPath, r.logger)
	})
	return r.bundle, r.bundleErr
}

// acceptable matches non-minified scripts served from the base URL.
func (r *Resolver) acceptable(u string) bool {
	base := strings.TrimRight(r.opts.BaseURL, "/") + "/"
	if !strings.HasPrefix(u, base) || len(u) == len(base) {
		return false
	}
	return strings.HasSuffix(u, ".js") && !strings.HasSuffix(u, ".min.js")
}

func (r *Resolver) mainScript(ctx context.Context, c *collector, b *bundleMap, fn result.FunctionCoverage) {
	if fn.FunctionName == "" {
		return
	}
	for _, rng := range fn.Ranges {
		if rng.Count == 0 {
			continue
		}
		file, line, col, ok := b.original(rng.StartOffset)
		if !ok {
			r.logger.Debug("coverage: unmapped range", "function", fn.FunctionName, "offset", rng.StartOffset)
			continue
		}
		f, err := r.cache.Get(ctx, file)
		if err != nil {
			r.logger.Warn("coverage: original source", "file", file, "error", err)
			continue
		}
		off, ok := f.Lines.ByteOffset(line-1, col)
		if !ok {
			r.logger.Debug("coverage: mapped position outside file", "file", file, "line", line, "column", col)
			continue
		}
		node, m := f.Lookup(off)
		if node == nil {
			r.logger.Warn("coverage: no node", "file", file, "line", line, "column", col)
			continue
		}
		rel, err := safepath.Rel(r.opts.RepoRoot, file)
		if err != nil {
			r.logger.Warn("coverage: source outside repository", "file", file)
			continue
		}
		r.logger.Debug("coverage: resolved", "function", fn.FunctionName, "path", rel, "match", m.String())
		c.add(rel, result.DependencyRecord{
			Location: f.Span(node),
			Code:     strings.TrimSpace(f.Lines.LineText(line - 1)),
			Name:     fn.FunctionName,
			Count:    rng.Count,
		})
	}
}

func (r *Resolver) otherScript(ctx context.Context, c *collector, script result.ScriptCoverage) {
	file, err := safepath.FromURL(r.opts.BaseURL, r.opts.RepoRoot, script.URL)
	if err != nil {
		r.logger.Warn("coverage: script path", "url", script.URL, "error", err)
		return
	}
	rel, err := safepath.Rel(r.opts.RepoRoot, file)
	if err != nil {
		return
	}
	var f *jsast.File
	for _, fn := range script.Functions {
		if fn.FunctionName == "" {
			continue
		}
		for _, rng := range fn.Ranges {
			if rng.Count == 0 {
				continue
			}
			if f == nil {
				if f, err = r.cache.Get(ctx, file); err != nil {
					r.logger.Warn("coverage: local script", "file", file, "error", err)
					return
				}
			}
			off, ok := f.Lines.ByteOffsetAt(rng.StartOffset)
			if !ok {
				continue
			}
			node, _ := f.Lookup(off)
			if node == nil {
				r.logger.Warn("coverage: no node", "file", file, "offset", rng.StartOffset)
				continue
			}
			c.add(rel, result.DependencyRecord{
				Location: f.Span(node),
				Code:     "-",
				Name:     fn.FunctionName,
				Count:    rng.Count,
			})
		}
	}
}
