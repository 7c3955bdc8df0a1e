package coverage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/3jsLive/tasks/threeprof/result"
)

const authored = `function alpha( a ) {
	return a + 1;
}
function beta() {
	return alpha( 2 );
}
`

const helper = `export function helperFn( x ) {
	return x * 2;
}
`

const baseURL = "http://localhost:8080"

// writeRepo lays out a repository whose bundle is a line-for-line copy of
// src/a.js with an identity source map.
func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "src", "a.js"), authored)
	mustWrite(t, filepath.Join(root, "build", "bundle.js"), authored+"//# sourceMappingURL=bundle.js.map\n")
	mustWrite(t, filepath.Join(root, "build", "bundle.js.map"),
		`{"version":3,"file":"bundle.js","sources":["../src/a.js"],"names":[],"mappings":"AAAA;AACA;AACA;AACA;AACA;AACA"}`)
	mustWrite(t, filepath.Join(root, "examples", "js", "Helper.js"), helper)
	return root
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newResolver(root string) *Resolver {
	return New(Options{
		RepoRoot:       root,
		BaseURL:        baseURL,
		MainScriptPath: "build/bundle.js",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func scripts() []result.ScriptCoverage {
	betaOff := strings.Index(authored, "function beta")
	return []result.ScriptCoverage{
		{
			ScriptID: "17",
			URL:      baseURL + "/build/bundle.js",
			Functions: []result.FunctionCoverage{
				{FunctionName: "", Ranges: []result.CoverageRange{{StartOffset: 0, EndOffset: len(authored), Count: 1}}},
				{FunctionName: "beta", Ranges: []result.CoverageRange{{StartOffset: betaOff, EndOffset: len(authored), Count: 1}}},
				{FunctionName: "alpha", Ranges: []result.CoverageRange{
					{StartOffset: 0, EndOffset: betaOff, Count: 3},
					{StartOffset: 0, EndOffset: betaOff, Count: 7},
				}},
				{FunctionName: "gamma", Ranges: []result.CoverageRange{{StartOffset: betaOff, EndOffset: len(authored), Count: 0}}},
			},
		},
		{
			ScriptID: "18",
			URL:      baseURL + "/examples/js/Helper.js",
			Functions: []result.FunctionCoverage{
				{FunctionName: "helperFn", Ranges: []result.CoverageRange{{StartOffset: strings.Index(helper, "function"), EndOffset: len(helper), Count: 2}}},
			},
		},
		{
			URL:       baseURL + "/examples/js/libs/stats.min.js",
			Functions: []result.FunctionCoverage{{FunctionName: "Stats", Ranges: []result.CoverageRange{{Count: 1}}}},
		},
		{
			URL:       "https://cdn.example.com/other.js",
			Functions: []result.FunctionCoverage{{FunctionName: "x", Ranges: []result.CoverageRange{{Count: 1}}}},
		},
	}
}

func TestResolveScripts(t *testing.T) {
	root := writeRepo(t)
	tbl, err := newResolver(root).ResolveScripts(context.Background(), scripts())
	if err != nil {
		t.Fatalf("ResolveScripts: %v", err)
	}

	if got := strings.Join(tbl.Uniq, ","); got != "examples/js/Helper.js,src/a.js" {
		t.Fatalf("uniq: got %s", got)
	}

	recs := tbl.Lines["src/a.js"]
	if len(recs) != 2 {
		t.Fatalf("src/a.js records: got %d, want 2 (%+v)", len(recs), recs)
	}
	alpha, beta := recs[0], recs[1]
	if alpha.Name != "alpha" || beta.Name != "beta" {
		t.Fatalf("order: got %s, %s", alpha.Name, beta.Name)
	}
	if alpha.Code != "function alpha( a ) {" {
		t.Errorf("code: got %q", alpha.Code)
	}
	if alpha.Count != 3 {
		t.Errorf("count: got %d, want first seen 3", alpha.Count)
	}
	if alpha.Location.Start.Line != 1 || alpha.Location.End.Line != 3 {
		t.Errorf("alpha span: got %+v", alpha.Location)
	}
	if beta.Location.Start.Line != 4 {
		t.Errorf("beta start: got %d, want 4", beta.Location.Start.Line)
	}

	other := tbl.Lines["examples/js/Helper.js"]
	if len(other) != 1 || other[0].Code != "-" || other[0].Name != "helperFn" {
		t.Fatalf("helper records: got %+v", other)
	}
	if other[0].Location.Start.Line != 1 || other[0].Location.Start.Column != 7 {
		t.Errorf("helper start: got %+v, want 1:7", other[0].Location.Start)
	}
}

func TestResolveScripts_ZeroCountExcluded(t *testing.T) {
	root := writeRepo(t)
	in := []result.ScriptCoverage{{
		URL: baseURL + "/build/bundle.js",
		Functions: []result.FunctionCoverage{
			{FunctionName: "alpha", Ranges: []result.CoverageRange{{StartOffset: 0, Count: 0}}},
		},
	}}
	tbl, err := newResolver(root).ResolveScripts(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Lines) != 0 || len(tbl.Uniq) != 0 {
		t.Fatalf("got %+v, want empty table", tbl)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	root := writeRepo(t)
	r := newResolver(root)

	raw, err := result.Marshal(scripts())
	if err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(t.TempDir(), "webgl_a_profiler.json")
	mustWrite(t, in, string(raw))

	var outs [][]byte
	for i := 0; i < 2; i++ {
		tbl, err := r.Resolve(context.Background(), in)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		b, err := result.Marshal(tbl)
		if err != nil {
			t.Fatal(err)
		}
		outs = append(outs, b)
	}
	// A fresh resolver with a cold cache must agree too.
	tbl, err := newResolver(root).Resolve(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := result.Marshal(tbl)
	outs = append(outs, b)

	for i := 1; i < len(outs); i++ {
		if !bytes.Equal(outs[0], outs[i]) {
			t.Fatalf("run %d differs:\n%s\n%s", i, outs[0], outs[i])
		}
	}
}

func TestResolve_FullResult(t *testing.T) {
	root := writeRepo(t)
	pr := result.New(baseURL + "/examples/webgl_a.html")
	pr.Profiler = scripts()[:1]
	chunk := result.ShaderEntry{Name: "b", Source: "./b.glsl.js", Start: result.Location{Line: 2}}
	pr.Dependencies = &result.Dependencies{
		External:     []string{"z.js", "a.js", "z.js"},
		ShaderChunks: []result.ShaderEntry{chunk, {Name: "a", Source: "./a.glsl.js"}, chunk},
		Uniforms:     []result.UniformEntry{{Name: "fog"}, {Name: "fog"}},
	}
	raw, err := result.Marshal(pr)
	if err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(t.TempDir(), "webgl_a.json")
	mustWrite(t, in, string(raw))

	tbl, err := newResolver(root).Resolve(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(tbl.External, ","); got != "a.js,z.js" {
		t.Errorf("external: got %s", got)
	}
	if len(tbl.ShaderChunks) != 2 || tbl.ShaderChunks[0].Name != "a" {
		t.Errorf("chunks: got %+v", tbl.ShaderChunks)
	}
	if len(tbl.Uniforms) != 1 {
		t.Errorf("uniforms: got %+v", tbl.Uniforms)
	}
	if len(tbl.Lines["src/a.js"]) != 2 {
		t.Errorf("lines: got %+v", tbl.Lines)
	}
}

func TestResolveScripts_NoSourceMap(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "build", "three.js"), authored)
	mustWrite(t, filepath.Join(root, "examples", "js", "Helper.js"), helper)
	r := New(Options{
		RepoRoot:       root,
		BaseURL:        baseURL,
		MainScriptPath: "build/three.js",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	in := scripts()
	in[0].URL = baseURL + "/build/three.js"
	tbl, err := r.ResolveScripts(context.Background(), in)
	if err != nil {
		t.Fatalf("ResolveScripts: %v", err)
	}
	if got := strings.Join(tbl.Uniq, ","); got != "build/three.js,examples/js/Helper.js" {
		t.Fatalf("uniq: got %s", got)
	}
	recs := tbl.Lines["build/three.js"]
	if len(recs) != 2 || recs[0].Name != "alpha" || recs[1].Name != "beta" {
		t.Fatalf("bundle records: got %+v, want alpha and beta", recs)
	}
	if recs[0].Code != "function alpha( a ) {" || recs[0].Location.Start.Line != 1 {
		t.Errorf("alpha: got %+v", recs[0])
	}
	if len(tbl.Lines["examples/js/Helper.js"]) != 1 {
		t.Errorf("helper records: got %+v", tbl.Lines["examples/js/Helper.js"])
	}
}

func TestResolve_MissingBundle(t *testing.T) {
	root := writeRepo(t)
	r := New(Options{RepoRoot: root, BaseURL: baseURL, MainScriptPath: "build/missing.js"})
	in := []result.ScriptCoverage{{URL: baseURL + "/build/missing.js"}}
	if _, err := r.ResolveScripts(context.Background(), in); err == nil {
		t.Fatal("want error for missing bundle")
	}
}
