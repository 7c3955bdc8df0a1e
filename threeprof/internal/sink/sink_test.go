package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/3jsLive/tasks/threeprof/result"
)

const base = "http://localhost:8080"

func TestDir(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir, base, false)
	ctx := context.Background()

	urls := []string{base + "/examples/webgl_a.html", base + "/examples/webgl_b.html", base + "/examples/webgl_a.html"}
	for _, u := range urls {
		if err := d.Send(ctx, result.New(u)); err != nil {
			t.Fatalf("Send %s: %v", u, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(urls) {
		t.Fatalf("files: got %d, want %d", len(entries), len(urls))
	}
	for _, name := range []string{"examples_webgl_a.json", "examples_webgl_b.json", "examples_webgl_a_1.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	arts := d.Artifacts()
	if len(arts) != 3 {
		t.Fatalf("artifacts: got %d, want 3", len(arts))
	}
	if len(arts[0].Digest) != 64 {
		t.Errorf("digest: got %q", arts[0].Digest)
	}

	data, err := os.ReadFile(filepath.Join(dir, "examples_webgl_a.json"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := result.UnmarshalProfilingResult(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != urls[0] {
		t.Errorf("url: got %q, want %q", got.URL, urls[0])
	}
}

func TestDir_SuffixNeverShadows(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir, base, false)
	urls := []string{
		base + "/examples/a_1.html",
		base + "/examples/a.html",
		base + "/examples/a.html",
	}
	for _, u := range urls {
		if err := d.Send(context.Background(), result.New(u)); err != nil {
			t.Fatalf("Send %s: %v", u, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(urls) {
		t.Fatalf("files: got %d, want %d", len(entries), len(urls))
	}
	arts := d.Artifacts()
	want := []string{"examples_a_1.json", "examples_a.json", "examples_a_2.json"}
	for i, a := range arts {
		if got := filepath.Base(a.File); got != want[i] {
			t.Errorf("artifact %d: got %s, want %s", i, got, want[i])
		}
	}
}

func TestDir_Split(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir, base, true)
	if err := d.Send(context.Background(), result.New(base+"/examples/webgl_a.html")); err != nil {
		t.Fatal(err)
	}
	for _, key := range result.Keys {
		name := "examples_webgl_a_" + key + ".json"
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s", name)
		}
	}
}

func TestStdout(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	if err := s.Send(context.Background(), result.New(base+"/x.html")); err != nil {
		t.Fatal(err)
	}
	if err := s.SendSummary(context.Background(), result.RunSummary{RunID: "r1", Total: 1}); err != nil {
		t.Fatal(err)
	}

	dec := json.NewDecoder(&buf)
	var types []string
	for dec.More() {
		var env struct{ Type string }
		if err := dec.Decode(&env); err != nil {
			t.Fatal(err)
		}
		types = append(types, env.Type)
	}
	if len(types) != 2 || types[0] != "result" || types[1] != "summary" {
		t.Errorf("envelopes: got %v", types)
	}
}

func TestWebhook_Retry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL,
		WithWebhookBackoff(time.Millisecond),
		WithWebhookLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := wh.Send(context.Background(), result.New(base+"/x.html")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls: got %d, want 3", got)
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL,
		WithWebhookRetries(1),
		WithWebhookBackoff(time.Millisecond),
		WithWebhookLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err := wh.SendSummary(context.Background(), result.RunSummary{}); err == nil {
		t.Fatal("want error after retries")
	}
}

type failing struct{ Callback }

func (failing) Send(context.Context, *result.ProfilingResult) error { return errors.New("boom") }

func TestRouter(t *testing.T) {
	var got []string
	cb := NewCallback(func(_ context.Context, res *result.ProfilingResult) error {
		got = append(got, res.URL)
		return nil
	}, nil)

	r := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), &failing{}, cb)
	err := r.Send(context.Background(), result.New("u1"))
	if err == nil || err.Error() != "boom" {
		t.Fatalf("err: got %v, want boom", err)
	}
	if len(got) != 1 || got[0] != "u1" {
		t.Errorf("callback: got %v, want [u1]", got)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
