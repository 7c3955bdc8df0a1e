package threeprof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/3jsLive/tasks/safepath"
	"github.com/3jsLive/tasks/threeprof/internal/catalog"
	"github.com/3jsLive/tasks/threeprof/internal/coverage"
	"github.com/3jsLive/tasks/threeprof/internal/jsast"
	"github.com/3jsLive/tasks/threeprof/internal/ledger"
	"github.com/3jsLive/tasks/threeprof/result"
)

// ErrNoLedger is returned by ledger queries when no ledger is configured.
var ErrNoLedger = errors.New("threeprof: no ledger configured")

// Tools holds the operations shared by the CLI and the MCP server.
type Tools struct {
	cfg    *Config
	logger *slog.Logger
	ledger *ledger.Ledger
	cache  *jsast.Cache
}

// NewTools creates the shared operations. l may be nil.
func NewTools(cfg *Config, l *ledger.Ledger, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Tools{
		cfg:    cfg,
		logger: logger,
		ledger: l,
		cache:  jsast.NewCache(0, 10*time.Minute),
	}
}

// ResolveOutput derives the default output path of Resolve:
// "x_profiler.json" becomes "x_parsed.json", anything else "<input>_parsed".
func ResolveOutput(input string) string {
	if base, ok := strings.CutSuffix(input, "_profiler.json"); ok {
		return base + "_parsed.json"
	}
	return input + "_parsed"
}

// ResolveResult describes one resolved coverage file.
type ResolveResult struct {
	Input  string   `json:"input"`
	Output string   `json:"output"`
	Paths  int      `json:"paths"`
	Uniq   []string `json:"uniq"`
}

// Resolve reduces the coverage file at input to a dependency table and
// writes it to output (ResolveOutput(input) when empty).
func (t *Tools) Resolve(ctx context.Context, input, output string) (*ResolveResult, error) {
	if input == "" {
		return nil, errors.New("threeprof: resolve: input is required")
	}
	if output == "" {
		output = ResolveOutput(input)
	}
	repo := t.cfg.Repo
	r := coverage.New(coverage.Options{
		RepoRoot:       repo.Path,
		BaseURL:        repo.BaseURL,
		MainScriptPath: repo.MainScriptPath,
		SourceMapPath:  repo.SourceMapPath,
		Cache:          t.cache,
		Logger:         t.logger,
	})
	table, err := r.Resolve(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("threeprof: resolve: %w", err)
	}
	data, err := result.Marshal(table)
	if err != nil {
		return nil, fmt.Errorf("threeprof: resolve: %w", err)
	}
	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("threeprof: resolve: %w", err)
		}
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return nil, fmt.Errorf("threeprof: resolve: %w", err)
	}
	t.logger.Info("threeprof: resolved", "input", input, "output", output, "paths", len(table.Lines))
	return &ResolveResult{Input: input, Output: output, Paths: len(table.Lines), Uniq: table.Uniq}, nil
}

// CatalogSummary lists the names known to a shader catalog.
type CatalogSummary struct {
	ShaderChunks []string            `json:"shaderChunks"`
	ShaderLibs   map[string][]string `json:"shaderLibs"` // lib name to uniform group names
	UniformsLibs []string            `json:"uniformsLibs"`
}

// Catalog builds the shader catalog of repo (the configured repository
// when empty) and summarizes it.
func (t *Tools) Catalog(ctx context.Context, repo string) (*CatalogSummary, error) {
	if repo == "" {
		repo = t.cfg.Repo.Path
	}
	if repo == "" {
		return nil, errors.New("threeprof: catalog: no repository")
	}
	paths := catalog.Paths{}
	for dst, rel := range map[*string]string{
		&paths.ShaderChunk: t.cfg.Repo.ShaderChunkPath,
		&paths.ShaderLib:   t.cfg.Repo.ShaderLibPath,
		&paths.UniformsLib: t.cfg.Repo.UniformsLibPath,
	} {
		p, err := safepath.Join(repo, filepath.FromSlash(rel))
		if err != nil {
			return nil, fmt.Errorf("threeprof: catalog: %w", err)
		}
		*dst = p
	}
	c, err := catalog.Build(ctx, paths, t.logger)
	if err != nil {
		return nil, fmt.Errorf("threeprof: catalog: %w", err)
	}

	sum := &CatalogSummary{
		ShaderChunks: result.SortedKeys(c.ShaderChunks),
		ShaderLibs:   make(map[string][]string, len(c.ShaderLibs)),
		UniformsLibs: result.SortedKeys(c.UniformsLibs),
	}
	for name, d := range c.ShaderLibs {
		refs := make([]string, 0, len(d.UniformsRefs))
		for _, u := range d.UniformsRefs {
			refs = append(refs, u.Name)
		}
		sum.ShaderLibs[name] = refs
	}
	return sum, nil
}

// Runs lists recorded runs, newest first.
func (t *Tools) Runs(ctx context.Context, limit int) ([]ledger.Run, error) {
	if t.ledger == nil {
		return nil, ErrNoLedger
	}
	return t.ledger.Runs(ctx, limit)
}

// RunArtifacts lists the artifacts of runID. With changedOnly it keeps the
// artifacts whose digest differs from the previous run of the same URL.
func (t *Tools) RunArtifacts(ctx context.Context, runID string, changedOnly bool) ([]result.Artifact, error) {
	if t.ledger == nil {
		return nil, ErrNoLedger
	}
	arts, err := t.ledger.Artifacts(ctx, runID)
	if err != nil || !changedOnly {
		return arts, err
	}
	changed, err := t.ledger.Changed(ctx, runID)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(changed))
	for _, u := range changed {
		keep[u] = true
	}
	out := arts[:0]
	for _, a := range arts {
		if keep[a.URL] {
			out = append(out, a)
		}
	}
	return out, nil
}
