package jsast

import (
	"sort"
	"unicode/utf8"
)

// LineIndex converts between UTF-16 offsets (what V8 and source maps
// speak) and byte offsets / line-column pairs of a UTF-8 source.
type LineIndex struct {
	src     []byte
	starts  []int // byte offset of each line start
	starts6 []int // UTF-16 offset of each line start
	ascii   bool
}

// NewLineIndex indexes src. Lines end at '\n'; a preceding '\r' stays
// part of the line text.
func NewLineIndex(src []byte) *LineIndex {
	li := &LineIndex{src: src, starts: []int{0}, starts6: []int{0}, ascii: true}
	u16 := 0
	for i := 0; i < len(src); {
		r, size := rune(src[i]), 1
		if src[i] >= utf8.RuneSelf {
			li.ascii = false
			r, size = utf8.DecodeRune(src[i:])
		}
		i += size
		u16 += utf16Len(r)
		if r == '\n' {
			li.starts = append(li.starts, i)
			li.starts6 = append(li.starts6, u16)
		}
	}
	return li
}

func utf16Len(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

// Lines returns the number of lines.
func (li *LineIndex) Lines() int { return len(li.starts) }

// Position maps a UTF-16 offset to a 0-based line and UTF-16 column.
func (li *LineIndex) Position(off16 int) (line, col int, ok bool) {
	if off16 < 0 {
		return 0, 0, false
	}
	line = sort.Search(len(li.starts6), func(i int) bool { return li.starts6[i] > off16 }) - 1
	if line < 0 {
		return 0, 0, false
	}
	col = off16 - li.starts6[line]
	if col > li.lineLen16(line) {
		return 0, 0, false
	}
	return line, col, true
}

// ByteOffset maps a 0-based line and UTF-16 column to a byte offset.
func (li *LineIndex) ByteOffset(line, col16 int) (int, bool) {
	if line < 0 || line >= len(li.starts) || col16 < 0 {
		return 0, false
	}
	start := li.starts[line]
	end := li.lineEnd(line)
	if li.ascii {
		if start+col16 > end {
			return 0, false
		}
		return start + col16, true
	}
	u := 0
	for i := start; i < end; {
		if u >= col16 {
			return i, true
		}
		r, size := utf8.DecodeRune(li.src[i:])
		u += utf16Len(r)
		i += size
	}
	if u == col16 {
		return end, true
	}
	return 0, false
}

// Column16 converts a byte column on a 0-based line to UTF-16 units.
func (li *LineIndex) Column16(line, byteCol int) int {
	if li.ascii || line < 0 || line >= len(li.starts) {
		return byteCol
	}
	start := li.starts[line]
	end := min(start+byteCol, len(li.src))
	n := 0
	for i := start; i < end; {
		r, size := utf8.DecodeRune(li.src[i:])
		n += utf16Len(r)
		i += size
	}
	return n
}

// ByteOffsetAt maps an absolute UTF-16 offset to a byte offset.
func (li *LineIndex) ByteOffsetAt(off16 int) (int, bool) {
	line, col, ok := li.Position(off16)
	if !ok {
		return 0, false
	}
	return li.ByteOffset(line, col)
}

// LineText returns the text of a 0-based line without its terminator.
func (li *LineIndex) LineText(line int) string {
	if line < 0 || line >= len(li.starts) {
		return ""
	}
	end := li.lineEnd(line)
	if end > li.starts[line] && li.src[end-1] == '\r' {
		end--
	}
	return string(li.src[li.starts[line]:end])
}

// lineEnd is the byte offset of the '\n' ending line (or len(src)).
func (li *LineIndex) lineEnd(line int) int {
	if line+1 < len(li.starts) {
		return li.starts[line+1] - 1
	}
	return len(li.src)
}

func (li *LineIndex) lineLen16(line int) int {
	if line+1 < len(li.starts6) {
		return li.starts6[line+1] - 1 - li.starts6[line]
	}
	if li.ascii {
		return len(li.src) - li.starts[line]
	}
	n := 0
	for i := li.starts[line]; i < len(li.src); {
		r, size := utf8.DecodeRune(li.src[i:])
		n += utf16Len(r)
		i += size
	}
	return n
}
