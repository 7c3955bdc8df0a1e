package session

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/3jsLive/tasks/threeprof/internal/catalog"
	"github.com/3jsLive/tasks/threeprof/result"
)

// bindingName is the runtime binding the page-side tracking functions call.
const bindingName = "__threeprof_track"

// trackerJS forwards the shim's tracking calls to the host binding.
const trackerJS = `window.trackShaderChunk = function ( name ) {
	window.` + bindingName + `( JSON.stringify( { kind: 'chunk', name: name } ) );
};
window.trackShaderLib = function ( prop, name ) {
	window.` + bindingName + `( JSON.stringify( { kind: 'lib', prop: prop, name: name } ) );
};`

type trackEvent struct {
	Kind string `json:"kind"`
	Prop string `json:"prop"`
	Name string `json:"name"`
}

// tracker resolves shader accesses reported by the page against the catalog.
type tracker struct {
	cat    *catalog.Catalog
	logger *slog.Logger

	mu       sync.Mutex
	chunks   []result.ShaderEntry
	libs     map[string]result.ShaderDescriptor
	uniforms []result.UniformEntry
}

func newTracker(cat *catalog.Catalog, logger *slog.Logger) *tracker {
	return &tracker{cat: cat, logger: logger, libs: make(map[string]result.ShaderDescriptor)}
}

func (t *tracker) handle(payload string) {
	var ev trackEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		t.logger.Warn("session: tracking payload", "error", err)
		return
	}
	if t.cat == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Kind {
	case "chunk":
		c, ok := t.cat.Chunk(ev.Name)
		if !ok {
			t.logger.Debug("session: untracked chunk", "name", ev.Name)
			return
		}
		t.chunks = append(t.chunks, c)
	case "lib":
		d, ok := t.cat.Lib(ev.Name)
		if !ok {
			t.logger.Debug("session: untracked shader", "name", ev.Name, "prop", ev.Prop)
			return
		}
		t.libs[ev.Name] = d
		t.uniforms = append(t.uniforms, d.UniformsRefs...)
	default:
		t.logger.Debug("session: unknown tracking kind", "kind", ev.Kind)
	}
}

// dependencies assembles the dependency block. requests are every URL the
// page asked for; local ones are stripped of base URL and query.
func (t *tracker) dependencies(requests []string, baseURL string) *result.Dependencies {
	t.mu.Lock()
	defer t.mu.Unlock()

	libs := make(map[string]result.ShaderDescriptor, len(t.libs))
	for k, v := range t.libs {
		libs[k] = v
	}
	return &result.Dependencies{
		External:     result.UniqueStrings(requests),
		Local:        localFiles(requests, baseURL),
		ShaderChunks: result.UniqueChunks(t.chunks),
		ShaderLibs:   libs,
		Uniforms:     result.UniqueUniforms(t.uniforms),
	}
}

func localFiles(requests []string, baseURL string) []string {
	base := strings.TrimRight(baseURL, "/") + "/"
	var local []string
	for _, r := range requests {
		if !strings.HasPrefix(r, base) {
			continue
		}
		rest := strings.TrimPrefix(r, base)
		if i := strings.IndexAny(rest, "?#"); i >= 0 {
			rest = rest[:i]
		}
		if p, err := url.PathUnescape(rest); err == nil {
			rest = p
		}
		if rest != "" {
			local = append(local, rest)
		}
	}
	return result.UniqueStrings(local)
}
