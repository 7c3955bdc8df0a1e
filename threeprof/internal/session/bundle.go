package session

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
)

//go:embed shim.js
var shimJS []byte

//go:embed sniff.js
var sniffJS string

// RendererMarkers locate the renderer constructor in the bundle, tried in
// order.
var RendererMarkers = []string{
	"function WebGLRenderer( parameters ) {",
	"function WebGLRenderer(parameters) {",
	"function WebGLRenderer(",
}

// Bundle is the instrumented library served in place of the original.
type Bundle struct {
	Source []byte
	// RendererLine is the 0-based line of the renderer constructor, -1
	// when no marker matched.
	RendererLine int
}

// PrepareBundle appends the shader tracking shim and the pausing epilogue
// to the library source.
func PrepareBundle(src []byte) *Bundle {
	var buf bytes.Buffer
	buf.Grow(len(src) + len(shimJS) + 2)
	buf.Write(src)
	if len(src) > 0 && src[len(src)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(shimJS)

	b := &Bundle{Source: buf.Bytes(), RendererLine: -1}
	for _, m := range RendererMarkers {
		if i := bytes.Index(src, []byte(m)); i >= 0 {
			b.RendererLine = bytes.Count(src[:i], []byte("\n"))
			break
		}
	}
	return b
}

// ReadBundle reads and prepares the library at path.
func ReadBundle(path string) (*Bundle, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read bundle: %w", err)
	}
	return PrepareBundle(src), nil
}

// SniffScript returns the frame and stats sniffing script for fpsLimit.
func SniffScript(fpsLimit int) string {
	return strings.ReplaceAll(sniffJS, "__FPS_LIMIT__", strconv.Itoa(fpsLimit))
}
