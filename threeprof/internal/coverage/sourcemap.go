package coverage

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-sourcemap/sourcemap"

	"github.com/3jsLive/tasks/threeprof/internal/jsast"
)

var mappingURLRe = regexp.MustCompile(`(?m)^//[#@]\s*sourceMappingURL=(\S+)\s*$`)

// bundleMap pairs the delivered bundle with its decoded source map. A nil
// smap maps every position to the bundle itself.
type bundleMap struct {
	path   string
	lines  *jsast.LineIndex
	smap   *sourcemap.Consumer
	mapDir string
}

// loadBundle reads the bundle at path and its source map. mapPath may be
// empty, in which case the sourceMappingURL comment is honoured and
// "<path>.map" is the fallback. A missing or unreadable map is logged and
// leaves positions in the bundle.
func loadBundle(path, mapPath string, logger *slog.Logger) (*bundleMap, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coverage: read bundle: %w", err)
	}
	b := &bundleMap{
		path:  path,
		lines: jsast.NewLineIndex(src),
	}

	var raw []byte
	switch {
	case mapPath != "":
		raw, err = os.ReadFile(mapPath)
	default:
		raw, mapPath, err = discoverMap(path, src)
	}
	if err != nil {
		logger.Warn("coverage: no source map, resolving against the bundle", "bundle", path, "error", err)
		return b, nil
	}

	if abs, err := filepath.Abs(mapPath); err == nil {
		mapPath = abs
	}
	smap, err := sourcemap.Parse(filepath.ToSlash(mapPath), raw)
	if err != nil {
		logger.Warn("coverage: bad source map, resolving against the bundle", "map", mapPath, "error", err)
		return b, nil
	}
	b.smap = smap
	b.mapDir = filepath.Dir(mapPath)
	return b, nil
}

func discoverMap(path string, src []byte) ([]byte, string, error) {
	fallback := path + ".map"
	ms := mappingURLRe.FindAllSubmatch(src, -1)
	if len(ms) == 0 {
		b, err := os.ReadFile(fallback)
		return b, fallback, err
	}
	ref := string(ms[len(ms)-1][1])
	if strings.HasPrefix(ref, "data:") {
		comma := strings.IndexByte(ref, ',')
		if comma < 0 || !strings.Contains(ref[:comma], ";base64") {
			return nil, "", fmt.Errorf("unsupported inline source map")
		}
		b, err := base64.StdEncoding.DecodeString(ref[comma+1:])
		return b, path, err
	}
	if strings.Contains(ref, "://") {
		b, err := os.ReadFile(fallback)
		return b, fallback, err
	}
	mp := filepath.Join(filepath.Dir(path), filepath.FromSlash(ref))
	b, err := os.ReadFile(mp)
	return bytes.TrimPrefix(b, []byte(")]}'\n")), mp, err
}

// original maps a UTF-16 offset in the bundle to the authored file and a
// 1-based line, 0-based column.
func (b *bundleMap) original(off16 int) (file string, line, col int, ok bool) {
	line0, col16, ok := b.lines.Position(off16)
	if !ok {
		return "", 0, 0, false
	}
	if b.smap == nil {
		return b.path, line0 + 1, col16, true
	}
	src, _, line, col, ok := b.smap.Source(line0+1, col16)
	if !ok || src == "" {
		return "", 0, 0, false
	}
	if i := strings.Index(src, "://"); i >= 0 {
		// webpack:///./src/a.js and friends
		src = strings.TrimLeft(src[i+3:], "/")
		src = strings.TrimPrefix(src, "./")
	}
	if filepath.IsAbs(src) {
		return filepath.Clean(src), line, col, true
	}
	return filepath.Join(b.mapDir, filepath.FromSlash(src)), line, col, true
}
