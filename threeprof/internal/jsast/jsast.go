// Package jsast parses JavaScript modules with tree-sitter and answers the
// two questions the profiler asks of an AST: where is a node, and which node
// does a given offset belong to.
package jsast

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/3jsLive/tasks/threeprof/result"
)

// File is a parsed JavaScript source.
type File struct {
	Path   string
	Source []byte
	Lines  *LineIndex
	Root   *sitter.Node

	tree *sitter.Tree
}

// Parse parses src. path is informational.
func Parse(ctx context.Context, path string, src []byte) (*File, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("jsast: parse %s: %w", path, err)
	}
	return &File{
		Path:   path,
		Source: src,
		Lines:  NewLineIndex(src),
		Root:   tree.RootNode(),
		tree:   tree,
	}, nil
}

// ParseFile reads and parses path.
func ParseFile(ctx context.Context, path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jsast: read: %w", err)
	}
	return Parse(ctx, path, src)
}

// Close releases the underlying tree.
func (f *File) Close() {
	if f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
}

// Text returns the source text of n.
func (f *File) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(f.Source)
}

// Span returns the location span of n. Columns count UTF-16 code units,
// as V8 and source maps do.
func (f *File) Span(n *sitter.Node) result.Span {
	s, e := n.StartPoint(), n.EndPoint()
	return result.Span{
		Start: result.Location{Line: int(s.Row) + 1, Column: f.Lines.Column16(int(s.Row), int(s.Column))},
		End:   result.Location{Line: int(e.Row) + 1, Column: f.Lines.Column16(int(e.Row), int(e.Column))},
	}
}

// StringValue returns the unquoted value of a string literal node.
func (f *File) StringValue(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "string_fragment" {
			return f.Text(c)
		}
	}
	return strings.Trim(f.Text(n), `'"`+"`")
}

// Walk visits n and its named descendants in document order. Returning
// false from fn skips the node's children.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		Walk(n.NamedChild(i), fn)
	}
}

// Find returns the first named node in document order matching pred.
func Find(n *sitter.Node, pred func(*sitter.Node) bool) *sitter.Node {
	var found *sitter.Node
	Walk(n, func(c *sitter.Node) bool {
		if found != nil {
			return false
		}
		if pred(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

// IsFunction reports whether n is a function-like node.
func IsFunction(n *sitter.Node) bool {
	switch n.Type() {
	case "function_declaration", "function_expression", "function",
		"generator_function_declaration", "generator_function",
		"arrow_function", "method_definition":
		return true
	}
	return false
}
