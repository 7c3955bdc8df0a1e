package jsast

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const lookupSrc = `// header
function alpha( a ) {
	return a + 1;
}
const beta = function () { return 2; };
class Gamma {
	delta( x ) {
		return x;
	}
}
`

func parse(t *testing.T, src string) *File {
	t.Helper()
	f, err := Parse(context.Background(), "test.js", []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	t.Cleanup(f.Close)
	return f
}

func TestLookup(t *testing.T) {
	f := parse(t, lookupSrc)

	tests := []struct {
		name      string
		off       int
		wantMatch Match
		wantFn    bool
		wantLine  int
	}{
		{"declaration", strings.Index(lookupSrc, "function alpha"), MatchExact, true, 2},
		{"expression", strings.Index(lookupSrc, "function ()"), MatchExact, true, 5},
		{"method", strings.Index(lookupSrc, "delta"), MatchExact, true, 7},
		{"inside body whitespace", strings.Index(lookupSrc, "\treturn a"), MatchEnclosing, true, 2},
		{"inside comment", 3, MatchAfter, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, m := f.Lookup(tt.off)
			if m != tt.wantMatch {
				t.Fatalf("match: got %s, want %s", m, tt.wantMatch)
			}
			if n == nil {
				t.Fatal("node: got nil")
			}
			if IsFunction(n) != tt.wantFn {
				t.Errorf("IsFunction(%s): got %v, want %v", n.Type(), IsFunction(n), tt.wantFn)
			}
			if got := f.Span(n).Start.Line; got != tt.wantLine {
				t.Errorf("start line: got %d, want %d", got, tt.wantLine)
			}
		})
	}
}

func TestLookup_OutOfRange(t *testing.T) {
	f := parse(t, lookupSrc)
	if n, m := f.Lookup(-1); n != nil || m != MatchNone {
		t.Fatalf("got %v %s, want nil none", n, m)
	}
	if n, m := f.Lookup(len(lookupSrc)); n != nil || m != MatchNone {
		t.Fatalf("end of file: got %v %s, want nil none", n, m)
	}
}

func TestSpan(t *testing.T) {
	f := parse(t, lookupSrc)
	n, _ := f.Lookup(strings.Index(lookupSrc, "function alpha"))
	sp := f.Span(n)
	if sp.Start.Line != 2 || sp.Start.Column != 0 {
		t.Errorf("start: got %+v, want 2:0", sp.Start)
	}
	if sp.End.Line != 4 || sp.End.Column != 1 {
		t.Errorf("end: got %+v, want 4:1", sp.End)
	}
}

func TestSpan_UTF16Columns(t *testing.T) {
	src := "const s = '😀é'; function f() {}\n"
	f := parse(t, src)
	n, _ := f.Lookup(strings.Index(src, "function f"))
	if n == nil {
		t.Fatal("node: got nil")
	}
	sp := f.Span(n)
	// 😀 is two UTF-16 units, é one: byte column 20 is UTF-16 column 17.
	if sp.Start.Column != 17 {
		t.Errorf("start column: got %d, want 17", sp.Start.Column)
	}
	if sp.End.Column != 32 {
		t.Errorf("end column: got %d, want 32", sp.End.Column)
	}
}

func TestLineIndex_UTF16(t *testing.T) {
	src := "ab\nçd😀x\n"
	li := NewLineIndex([]byte(src))

	line, col, ok := li.Position(7)
	if !ok || line != 1 || col != 4 {
		t.Fatalf("Position(7): got %d:%d %v, want 1:4", line, col, ok)
	}
	off, ok := li.ByteOffset(1, 4)
	if !ok || src[off] != 'x' {
		t.Fatalf("ByteOffset(1,4): got %d %v", off, ok)
	}
	if off2, _ := li.ByteOffsetAt(7); off2 != off {
		t.Fatalf("ByteOffsetAt(7): got %d, want %d", off2, off)
	}
	if got := li.LineText(1); got != "çd😀x" {
		t.Fatalf("LineText(1): got %q", got)
	}
	if _, _, ok := li.Position(-1); ok {
		t.Fatal("Position(-1): want not ok")
	}
}

func TestLineIndex_ASCII(t *testing.T) {
	li := NewLineIndex([]byte("one\r\ntwo\nthree"))
	if li.Lines() != 3 {
		t.Fatalf("Lines: got %d, want 3", li.Lines())
	}
	if got := li.LineText(0); got != "one" {
		t.Errorf("LineText(0): got %q, want one", got)
	}
	line, col, ok := li.Position(10)
	if !ok || line != 2 || col != 1 {
		t.Errorf("Position(10): got %d:%d %v, want 2:1", line, col, ok)
	}
	if _, ok := li.ByteOffset(1, 10); ok {
		t.Error("ByteOffset past end of line: want not ok")
	}
}

func TestCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.js")
	if err := os.WriteFile(path, []byte("export const a = 1;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewCache(4, time.Minute)
	f1, err := c.Get(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := c.Get(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if f1 != f2 {
		t.Fatal("second Get parsed again")
	}
	if c.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", c.Len())
	}

	if _, err := c.Get(context.Background(), filepath.Join(dir, "missing.js")); err == nil {
		t.Fatal("missing file: want error")
	}
}
