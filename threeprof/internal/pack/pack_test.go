package pack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/3jsLive/tasks/threeprof/result"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCompact(t *testing.T) {
	u := result.UniformEntry{Name: "fog", Start: result.Location{Line: 3}}
	c1 := result.ShaderEntry{Name: "b", Source: "./b.js"}
	c2 := result.ShaderEntry{Name: "a", Source: "./a.js"}
	got := Compact(&result.Dependencies{
		External:     []string{"z", "a", "z"},
		Local:        []string{"y", "x"},
		ShaderChunks: []result.ShaderEntry{c1, c2, c1},
		Uniforms:     []result.UniformEntry{u, u},
	})
	if len(got.External) != 2 || got.External[0] != "a" {
		t.Errorf("external: got %v", got.External)
	}
	if got.Local[0] != "x" {
		t.Errorf("local not sorted: %v", got.Local)
	}
	if len(got.ShaderChunks) != 2 || got.ShaderChunks[0].Source != "./a.js" {
		t.Errorf("chunks: got %+v", got.ShaderChunks)
	}
	if len(got.Uniforms) != 1 {
		t.Errorf("uniforms: got %d, want 1", len(got.Uniforms))
	}
	if got.ShaderLibs == nil {
		t.Error("shader libs should be non-nil")
	}
}

func TestDependencies(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFile(t, in, "examples_a_dependencies.json", result.Dependencies{External: []string{"b", "a", "b"}})
	full := result.New("http://localhost/examples/b.html")
	full.Dependencies = &result.Dependencies{Local: []string{"x", "x"}}
	writeFile(t, in, "examples_b_dependencies.json", full)
	writeFile(t, in, "unrelated.json", map[string]string{})

	written, err := Dependencies(context.Background(), in, out, "", quietLogger())
	if err != nil {
		t.Fatalf("Dependencies: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("written: got %v, want 2 files", written)
	}
	if filepath.Base(written[0]) != "examples_a_packed.json" {
		t.Errorf("name: got %s", filepath.Base(written[0]))
	}

	data, err := os.ReadFile(written[1])
	if err != nil {
		t.Fatal(err)
	}
	var d result.Dependencies
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatal(err)
	}
	if len(d.Local) != 1 {
		t.Errorf("local: got %v, want one entry", d.Local)
	}
}

func TestConsoleLogs(t *testing.T) {
	in := t.TempDir()
	ev := result.ConsoleEvent{Type: "console", Msg: result.ConsoleMessage{Type: "log", Text: "hi"}}
	writeFile(t, in, "examples_webgl_a_consoleLog.json", []result.ConsoleEvent{ev, ev})
	writeFile(t, in, "examples_webgl_b_consoleLog.json", []result.ConsoleEvent{})

	outPath := filepath.Join(t.TempDir(), "console.json")
	sum, err := ConsoleLogs(context.Background(), in, outPath, "", quietLogger())
	if err != nil {
		t.Fatalf("ConsoleLogs: %v", err)
	}
	if sum.Hits != 2 {
		t.Errorf("hits: got %d, want 2", sum.Hits)
	}
	if _, ok := sum.Results["examples/webgl_a.html"]; !ok {
		t.Errorf("results: got keys %v", result.SortedKeys(sum.Results))
	}
	if _, ok := sum.Results["examples/webgl_b.html"]; ok {
		t.Error("empty log should be left out")
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("summary not written: %v", err)
	}
}

func TestExampleName(t *testing.T) {
	if got := ExampleName("examples_webgl_a_consoleLog.json"); got != "examples/webgl_a.html" {
		t.Errorf("got %q", got)
	}
}
