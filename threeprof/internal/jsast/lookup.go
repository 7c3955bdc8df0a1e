package jsast

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Match tells how Lookup found its node.
type Match int

const (
	MatchNone      Match = iota
	MatchExact           // a node starts exactly at the offset
	MatchEnclosing       // the innermost function containing the offset
	MatchAfter           // the first node starting after the offset
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchEnclosing:
		return "enclosing"
	case MatchAfter:
		return "after"
	}
	return "none"
}

// Lookup resolves a byte offset to a syntax node.
//
// Tie-break order:
//  1. a node starting exactly at off: a function if one starts there,
//     otherwise the outermost such node;
//  2. the innermost function whose span contains off;
//  3. the outermost node starting after off, in document order.
//
// The program node and comments never match.
func (f *File) Lookup(off int) (*sitter.Node, Match) {
	if off < 0 || off > len(f.Source) {
		return nil, MatchNone
	}
	target := uint32(off)

	var exact, exactFn, enclosingFn *sitter.Node
	n := f.Root
	for n != nil {
		var next *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() == "comment" {
				continue
			}
			if c.StartByte() <= target && target < c.EndByte() || c.StartByte() == target {
				next = c
				break
			}
		}
		if next == nil {
			break
		}
		if next.StartByte() == target {
			if exact == nil {
				exact = next
			}
			if exactFn == nil && IsFunction(next) {
				exactFn = next
			}
		}
		if IsFunction(next) && next.StartByte() <= target && target < next.EndByte() {
			enclosingFn = next
		}
		n = next
	}

	switch {
	case exactFn != nil:
		return exactFn, MatchExact
	case exact != nil:
		return exact, MatchExact
	case enclosingFn != nil:
		return enclosingFn, MatchEnclosing
	}

	if after := f.after(f.Root, target); after != nil {
		return after, MatchAfter
	}
	return nil, MatchNone
}

func (f *File) after(n *sitter.Node, target uint32) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.EndByte() <= target || c.Type() == "comment" {
			continue
		}
		if c.StartByte() >= target {
			return c
		}
		if found := f.after(c, target); found != nil {
			return found
		}
	}
	return nil
}
