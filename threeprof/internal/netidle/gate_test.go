package netidle

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

const quiet = 20 * time.Millisecond

func newGate(max int) *Gate {
	return New(Options{
		MaxInflight: max,
		Quiet:       quiet,
		MainScript:  "three.module.js",
		Bundle:      []byte("/* bundle */"),
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func resolved(g *Gate, within time.Duration) bool {
	select {
	case <-g.Done():
		return true
	case <-time.After(within):
		return false
	}
}

func TestGate_WaitsForLoad(t *testing.T) {
	g := newGate(0)
	g.Started("http://h/examples/a.html")
	g.Finished()

	if resolved(g, 5*quiet) {
		t.Fatal("resolved before the load event")
	}
	g.Loaded()
	if !resolved(g, 10*quiet) {
		t.Fatal("did not resolve after load and quiet")
	}
}

func TestGate_WaitsForCounter(t *testing.T) {
	g := newGate(0)
	g.Loaded()
	g.Started("http://h/a.js")
	g.Started("http://h/b.js")

	if resolved(g, 5*quiet) {
		t.Fatal("resolved with two requests in flight")
	}
	g.Finished()
	if resolved(g, 5*quiet) {
		t.Fatal("resolved with one request in flight")
	}
	g.Finished()
	if !resolved(g, 10*quiet) {
		t.Fatal("did not resolve after the last request")
	}
	if got := len(g.Requests()); got != 2 {
		t.Errorf("requests: got %d, want 2", got)
	}
}

func TestGate_MaxInflight(t *testing.T) {
	g := newGate(1)
	g.Loaded()
	g.Started("http://h/a.js")
	g.Started("http://h/longpoll")
	g.Finished()
	if !resolved(g, 10*quiet) {
		t.Fatal("did not resolve with the counter at max")
	}
}

func TestGate_FinishedAtZeroIgnored(t *testing.T) {
	g := newGate(0)
	g.Finished()
	g.Finished()
	if got := g.Inflight(); got != 0 {
		t.Fatalf("inflight: got %d, want 0", got)
	}
}

func TestGate_WaitContext(t *testing.T) {
	g := newGate(0)
	g.Started("http://h/a.js")
	ctx, cancel := context.WithTimeout(context.Background(), 3*quiet)
	defer cancel()
	if err := g.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestGate_MissingBundle(t *testing.T) {
	g := newGate(0)
	g.Loaded()
	if err := g.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if g.Intercepted() {
		t.Fatal("intercepted without a bundle request")
	}

	g2 := newGate(0)
	sub, ok, err := g2.Route("http://h/build/three.module.js")
	if err != nil || !ok {
		t.Fatalf("Route: got %v %v", ok, err)
	}
	if sub.ContentType != "text/javascript" || string(sub.Body) != "/* bundle */" {
		t.Errorf("substitution: got %+v", sub)
	}
	if !g2.Intercepted() {
		t.Fatal("bundle substitution did not flip the flag")
	}
}

func TestRoute_Example(t *testing.T) {
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, "examples"), 0o755); err != nil {
		t.Fatal(err)
	}
	page := "<!DOCTYPE html><html><head><title>cloth</title></head><body></body></html>"
	if err := os.WriteFile(filepath.Join(repo, "examples", "webgl_cloth.html"), []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}
	g := New(Options{
		Quiet:          quiet,
		ExamplePattern: regexp.MustCompile(`/examples/[a-z0-9_]+\.html`),
		RepoRoot:       repo,
		PageScript:     "window._sniffed_frames = 0;",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	sub, ok, err := g.Route("http://h/examples/webgl_cloth.html?x=1")
	if err != nil || !ok {
		t.Fatalf("Route: got %v %v", ok, err)
	}
	if sub.ContentType != "text/html" {
		t.Errorf("content type: got %q", sub.ContentType)
	}
	body := string(sub.Body)
	if !strings.Contains(body, `<script type="text/javascript">window._sniffed_frames = 0;</script></head>`) {
		t.Errorf("script not injected at end of head:\n%s", body)
	}
	if g.Intercepted() {
		t.Error("example substitution flipped the bundle flag")
	}

	if _, ok, _ := g.Route("http://h/examples/js/libs/stats.min.js"); ok {
		t.Error("unrelated request substituted")
	}
	if _, ok, err := g.Route("http://h/examples/missing.html"); ok || err == nil {
		t.Errorf("missing example: got %v %v, want error", ok, err)
	}
}

func TestInjectScript_NoHead(t *testing.T) {
	out, err := InjectScript([]byte("<p>bare</p>"), "var a = 1;")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "<head><script") {
		t.Fatalf("got %s", out)
	}
}
