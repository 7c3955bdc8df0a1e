package threeprof

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWorklist_Explicit(t *testing.T) {
	cfg := DefaultConfig()
	got, err := Worklist(cfg, []string{"http://h/examples/b.html", "http://h/examples/a.html"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Index != 1 || got[1].URL != "http://h/examples/a.html" {
		t.Fatalf("got %+v, want both URLs in order", got)
	}
}

func TestWorklist_Discover(t *testing.T) {
	repo := t.TempDir()
	examples := filepath.Join(repo, "examples")
	if err := os.MkdirAll(examples, 0o755); err != nil {
		t.Fatal(err)
	}
	list := "var files = {\n\t\"webgl\": [\n\t\t\"webgl_a\",\n\t\t\"webgl_b\",\n\t\t\"webgl_offscreencanvas\",\n\t\t\"css3d_c\"\n\t]\n};\n"
	if err := os.WriteFile(filepath.Join(examples, "files.js"), []byte(list), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"webgl_a", "webgl_b", "webgl_offscreencanvas", "css3d_c"} {
		if err := os.WriteFile(filepath.Join(examples, name+".html"), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := DefaultConfig()
	cfg.Repo.Path = repo
	cfg.Repo.BaseURL = "http://localhost:8080"
	cfg.Worklist.Prefixes = []string{"webgl"}
	cfg.Worklist.Banned = []string{"offscreencanvas"}

	got, err := Worklist(cfg, []string{DiscoverAll}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"http://localhost:8080/examples/webgl_a.html",
		"http://localhost:8080/examples/webgl_b.html",
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %v", got, want)
	}
	for i := range want {
		if got[i].URL != want[i] {
			t.Errorf("item %d: got %s, want %s", i, got[i].URL, want[i])
		}
	}

	cfg.Worklist.Limit = 1
	if got, _ := Worklist(cfg, []string{DiscoverAll}, quietLogger()); len(got) != 1 {
		t.Errorf("limit: got %d items, want 1", len(got))
	}
}
