// Package pack post-processes per-URL artifacts: it compacts dependency
// blocks and folds console logs of a whole run into one file.
package pack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/3jsLive/tasks/threeprof/result"
)

// Default input patterns, matching split-mode artifact names.
const (
	DependenciesGlob = "*_dependencies.json"
	ConsoleLogGlob   = "*_consoleLog.json"
)

// Dependencies rewrites every file matching pattern in inDir as a compacted
// "<name>_packed.json" in outDir. Inputs may be a bare dependency block or a
// full profiling result. It returns the written paths, sorted.
func Dependencies(ctx context.Context, inDir, outDir, pattern string, logger *slog.Logger) ([]string, error) {
	if pattern == "" {
		pattern = DependenciesGlob
	}
	if logger == nil {
		logger = slog.Default()
	}
	inputs, err := filepath.Glob(filepath.Join(inDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("pack: glob: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	var mu sync.Mutex
	var written []string
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			deps, err := readDependencies(in)
			if err != nil {
				return err
			}
			packed := Compact(deps)
			out := filepath.Join(outDir, packedName(filepath.Base(in)))
			if err := writeJSON(out, packed); err != nil {
				return err
			}
			logger.Debug("pack: dependencies",
				"input", in, "uniforms", len(packed.Uniforms), "chunks", len(packed.ShaderChunks))
			mu.Lock()
			written = append(written, out)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result.UniqueStrings(written), nil
}

// Compact drops repeated uniforms and chunks and sorts every list.
func Compact(d *result.Dependencies) *result.Dependencies {
	if d == nil {
		return &result.Dependencies{
			External: []string{}, Local: []string{},
			ShaderChunks: []result.ShaderEntry{}, ShaderLibs: map[string]result.ShaderDescriptor{},
			Uniforms: []result.UniformEntry{},
		}
	}
	libs := d.ShaderLibs
	if libs == nil {
		libs = map[string]result.ShaderDescriptor{}
	}
	return &result.Dependencies{
		External:     result.UniqueStrings(d.External),
		Local:        result.UniqueStrings(d.Local),
		ShaderChunks: result.UniqueChunks(d.ShaderChunks),
		ShaderLibs:   libs,
		Uniforms:     result.UniqueUniforms(d.Uniforms),
	}
}

func readDependencies(path string) (*result.Dependencies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("pack: %s: %w", filepath.Base(path), err)
	}
	if raw, ok := probe["dependencies"]; ok {
		data = raw
	}
	var d result.Dependencies
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("pack: %s: %w", filepath.Base(path), err)
	}
	return &d, nil
}

func packedName(base string) string {
	if strings.Contains(base, "_dependencies") {
		return strings.Replace(base, "_dependencies", "_packed", 1)
	}
	return strings.TrimSuffix(base, ".json") + "_packed.json"
}

// ConsolePage is the console log of one example.
type ConsolePage struct {
	Errors  []string              `json:"errors"`
	Hits    int                   `json:"hits"`
	Results []result.ConsoleEvent `json:"results"`
}

// ConsoleSummary folds the console logs of a run.
type ConsoleSummary struct {
	Errors  []string               `json:"errors"`
	Hits    int                    `json:"hits"`
	Results map[string]ConsolePage `json:"results"`
}

var consoleSuffix = regexp.MustCompile(`_consoleLog.*$`)

// ConsoleLogs reads every file matching pattern in inDir and writes one
// summary to outPath. Pages with an empty log are left out.
func ConsoleLogs(ctx context.Context, inDir, outPath, pattern string, logger *slog.Logger) (*ConsoleSummary, error) {
	if pattern == "" {
		pattern = ConsoleLogGlob
	}
	if logger == nil {
		logger = slog.Default()
	}
	inputs, err := filepath.Glob(filepath.Join(inDir, pattern))
	if err != nil {
		return nil, fmt.Errorf("pack: glob: %w", err)
	}

	logs := make([][]result.ConsoleEvent, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			events, err := readConsole(in)
			if err != nil {
				return err
			}
			logs[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &ConsoleSummary{Errors: []string{}, Results: map[string]ConsolePage{}}
	for i, in := range inputs {
		if len(logs[i]) == 0 {
			continue
		}
		page := ExampleName(filepath.Base(in))
		sum.Results[page] = ConsolePage{Errors: []string{}, Hits: len(logs[i]), Results: logs[i]}
		sum.Hits += len(logs[i])
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	if err := writeJSON(outPath, sum); err != nil {
		return nil, err
	}
	logger.Info("pack: console logs", "files", len(inputs), "pages", len(sum.Results), "hits", sum.Hits)
	return sum, nil
}

// ExampleName turns "examples_webgl_a_consoleLog.json" back into
// "examples/webgl_a.html".
func ExampleName(base string) string {
	name := strings.Replace(base, "examples_", "examples/", 1)
	return consoleSuffix.ReplaceAllString(name, "") + ".html"
}

func readConsole(path string) ([]result.ConsoleEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var r result.ProfilingResult
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("pack: %s: %w", filepath.Base(path), err)
		}
		return r.ConsoleLog, nil
	}
	var events []result.ConsoleEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("pack: %s: %w", filepath.Base(path), err)
	}
	return events, nil
}

func writeJSON(path string, v any) error {
	data, err := result.Marshal(v)
	if err != nil {
		return fmt.Errorf("pack: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("pack: write: %w", err)
	}
	return nil
}
