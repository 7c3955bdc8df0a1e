package devserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "examples"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"build/three.module.js": "export const REVISION = '1';\n",
		"examples/webgl_a.html": "<html><head></head></html>",
		"examples/index.html":   "index",
	}
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s := New(Options{Root: root, Metrics: true, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, root
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestServeFiles(t *testing.T) {
	ts, _ := newServer(t)

	code, body := get(t, ts.URL+"/build/three.module.js")
	if code != http.StatusOK || !strings.Contains(body, "REVISION") {
		t.Errorf("bundle: got %d %q", code, body)
	}
	if code, body := get(t, ts.URL+"/examples/"); code != http.StatusOK || body != "index" {
		t.Errorf("directory index: got %d %q", code, body)
	}
	if code, _ := get(t, ts.URL+"/missing.js"); code != http.StatusNotFound {
		t.Errorf("missing: got %d, want 404", code)
	}
	if code, _ := get(t, ts.URL+"/health"); code != http.StatusOK {
		t.Errorf("health: got %d", code)
	}
}

func TestMetrics(t *testing.T) {
	ts, _ := newServer(t)
	get(t, ts.URL+"/build/three.module.js")
	get(t, ts.URL+"/nope")

	code, body := get(t, ts.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics: got %d", code)
	}
	if !strings.Contains(body, `threeprof_devserver_requests_total{code="404"} 1`) {
		t.Errorf("metrics body lacks 404 counter:\n%s", body)
	}
}

func TestServe_Traversal(t *testing.T) {
	ts, _ := newServer(t)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/examples/x", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.URL.Path = "/../../etc/passwd"
	req.URL.RawPath = ""
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("traversal served a file")
	}
}
