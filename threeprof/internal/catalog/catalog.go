// Package catalog builds the shader and uniform lookup tables from the
// ShaderChunk, ShaderLib and UniformsLib modules of the library sources.
//
// A catalog is built once per campaign and shared read-only by every
// session. Any malformed top-level declaration is fatal: a partial catalog
// would silently skew every dependency table derived from it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/3jsLive/tasks/threeprof/internal/jsast"
	"github.com/3jsLive/tasks/threeprof/result"
)

// ErrMalformed is wrapped by every build error caused by module contents.
var ErrMalformed = errors.New("catalog: malformed module")

// Paths locates the three source modules.
type Paths struct {
	ShaderChunk string
	ShaderLib   string
	UniformsLib string
}

// DefaultPaths returns the module locations inside a three.js checkout.
func DefaultPaths(repo string) Paths {
	base := filepath.Join(repo, "src", "renderers", "shaders")
	return Paths{
		ShaderChunk: filepath.Join(base, "ShaderChunk.js"),
		ShaderLib:   filepath.Join(base, "ShaderLib.js"),
		UniformsLib: filepath.Join(base, "UniformsLib.js"),
	}
}

// Catalog is the immutable result of Build.
type Catalog struct {
	ShaderChunks map[string]result.ShaderEntry
	ShaderLibs   map[string]result.ShaderDescriptor
	UniformsLibs map[string]result.UniformEntry
}

// Build parses the three modules concurrently and links them.
func Build(ctx context.Context, paths Paths, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var chunkFile, libFile, uniFile *jsast.File
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range []struct {
		path string
		dst  **jsast.File
	}{
		{paths.ShaderChunk, &chunkFile},
		{paths.ShaderLib, &libFile},
		{paths.UniformsLib, &uniFile},
	} {
		g.Go(func() error {
			f, err := jsast.ParseFile(gctx, job.path)
			if err != nil {
				return fmt.Errorf("catalog: %w", err)
			}
			*job.dst = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, f := range []*jsast.File{chunkFile, libFile, uniFile} {
			if f != nil {
				f.Close()
			}
		}
		return nil, err
	}
	defer chunkFile.Close()
	defer libFile.Close()
	defer uniFile.Close()

	chunks, err := shaderChunks(chunkFile)
	if err != nil {
		return nil, err
	}
	uniforms, err := uniformsLib(uniFile)
	if err != nil {
		return nil, err
	}
	b := &libBuilder{file: libFile, chunks: chunks, uniforms: uniforms, logger: logger}
	libs, err := b.build()
	if err != nil {
		return nil, err
	}

	logger.Info("catalog: built",
		"shader_chunks", len(chunks),
		"shader_libs", len(libs),
		"uniforms", len(uniforms))

	return &Catalog{ShaderChunks: chunks, ShaderLibs: libs, UniformsLibs: uniforms}, nil
}

// Chunk returns the chunk entry for name.
func (c *Catalog) Chunk(name string) (result.ShaderEntry, bool) {
	e, ok := c.ShaderChunks[name]
	return e, ok
}

// Lib returns the shader descriptor for name.
func (c *Catalog) Lib(name string) (result.ShaderDescriptor, bool) {
	d, ok := c.ShaderLibs[name]
	return d, ok
}

func malformed(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, filepath.Base(path), fmt.Sprintf(format, args...))
}
