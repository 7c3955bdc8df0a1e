package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Marshal encodes v as compact JSON. Maps come out with sorted keys; raw
// messages should already be canonical (see Canonical).
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Canonical re-encodes arbitrary JSON with sorted object keys. Numbers keep
// their literal form.
func Canonical(raw []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("result: canonical: %w", err)
	}
	out, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("result: canonical: %w", err)
	}
	return out, nil
}

// UnmarshalProfilingResult decodes a per-URL artifact.
func UnmarshalProfilingResult(data []byte) (*ProfilingResult, error) {
	var r ProfilingResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UnmarshalCoverage accepts either a full ProfilingResult or a bare
// coverage array (the split "_profiler.json" form).
func UnmarshalCoverage(data []byte) ([]ScriptCoverage, *ProfilingResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var scripts []ScriptCoverage
		if err := json.Unmarshal(trimmed, &scripts); err != nil {
			return nil, nil, fmt.Errorf("result: coverage array: %w", err)
		}
		return scripts, nil, nil
	}
	r, err := UnmarshalProfilingResult(trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("result: profiling result: %w", err)
	}
	return r.Profiler, r, nil
}

var (
	slashRun  = regexp.MustCompile(`/+`)
	unsafeRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// FileName derives the artifact name of rawURL relative to baseURL:
// "http://host/examples/webgl_a.html" becomes "examples_webgl_a.json".
// A non-empty key yields "examples_webgl_a_<key>.json".
func FileName(rawURL, baseURL, key string) string {
	name := strings.TrimPrefix(rawURL, strings.TrimRight(baseURL, "/"))
	if u, err := url.Parse(name); err == nil && u.Host != "" {
		name = u.Path
		if u.RawQuery != "" {
			name += "_" + u.RawQuery
		}
	}
	name = slashRun.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "_")
	name = strings.TrimSuffix(name, ".html")
	name = unsafeRun.ReplaceAllString(name, "_")
	if name == "" {
		name = "index"
	}
	if key != "" {
		name += "_" + key
	}
	return name + ".json"
}

// Keys lists the top-level artifact keys written in split mode.
var Keys = []string{"profiler", "dependencies", "consoleLog", "stats"}

// Split returns the per-key payloads of r, keyed as in Keys.
func (r *ProfilingResult) Split() map[string]any {
	return map[string]any{
		"profiler":     r.Profiler,
		"dependencies": r.Dependencies,
		"consoleLog":   r.ConsoleLog,
		"stats":        r.Stats,
	}
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
