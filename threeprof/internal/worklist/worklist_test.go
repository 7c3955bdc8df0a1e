package worklist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const filesJS = `var files = {
	"webgl": [
		"webgl_animation_cloth",
		"webgl_camera",
		"webgl_camera",
		"webgl_Loader_OBJ",
	],
	"css3d": [
		"css3d_periodictable"
	]
};
`

func writeList(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()
	if err := os.MkdirAll(filepath.Join(repo, "examples"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, "examples", "files.js"), []byte(filesJS), 0o644); err != nil {
		t.Fatal(err)
	}
	return repo
}

func TestDiscover(t *testing.T) {
	repo := writeList(t)
	urls, err := Discover(DiscoverOptions{Repo: repo, BaseURL: "http://localhost:8080/"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"http://localhost:8080/examples/webgl_animation_cloth.html",
		"http://localhost:8080/examples/webgl_camera.html",
		"http://localhost:8080/examples/webgl_Loader_OBJ.html",
		"http://localhost:8080/examples/css3d_periodictable.html",
	}
	if strings.Join(urls, "\n") != strings.Join(want, "\n") {
		t.Fatalf("got %v, want %v", urls, want)
	}
}

func TestDiscover_CheckExistence(t *testing.T) {
	repo := writeList(t)
	if err := os.WriteFile(filepath.Join(repo, "examples", "webgl_camera.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	urls, err := Discover(DiscoverOptions{Repo: repo, BaseURL: "http://h", CheckExistence: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 1 || urls[0] != "http://h/examples/webgl_camera.html" {
		t.Fatalf("got %v", urls)
	}
}

func TestDiscover_MissingList(t *testing.T) {
	if _, err := Discover(DiscoverOptions{Repo: t.TempDir()}); err == nil {
		t.Fatal("want error for missing files.js")
	}
}

func TestFilter(t *testing.T) {
	f := NewFilter([]string{"offscreencanvas", "_vr_"}, []string{"webgl", "css3d"})
	tests := []struct {
		url  string
		want bool
	}{
		{"http://h/examples/webgl_camera.html", true},
		{"http://h/examples/css3d_sprites.html", true},
		{"http://h/examples/webgl_worker_offscreencanvas.html", false},
		{"http://h/examples/webgl_vr_sandbox.html", false},
		{"http://h/examples/misc_controls_fly.html", false},
		{"http://h/examples/webglcamera.html", false},
	}
	for _, tt := range tests {
		if got := f.Allow(tt.url); got != tt.want {
			t.Errorf("Allow(%q): got %v, want %v", tt.url, got, tt.want)
		}
	}

	open := NewFilter(nil, nil)
	if !open.Allow("http://h/anything.html") {
		t.Error("empty filter should admit everything")
	}
}

func TestItems(t *testing.T) {
	items := Items([]string{"a", "b"})
	if len(items) != 2 || items[1].Index != 1 || items[1].URL != "b" {
		t.Fatalf("got %+v", items)
	}
}
