package catalog

import (
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/3jsLive/tasks/threeprof/internal/jsast"
	"github.com/3jsLive/tasks/threeprof/result"
)

// shaderChunks turns every `import name from 'source'` of the chunk module
// into a ShaderEntry keyed by its local binding.
func shaderChunks(f *jsast.File) (map[string]result.ShaderEntry, error) {
	out := make(map[string]result.ShaderEntry)
	for i := 0; i < int(f.Root.NamedChildCount()); i++ {
		stmt := f.Root.NamedChild(i)
		if stmt.Type() != "import_statement" {
			continue
		}
		locals := importLocals(f, stmt)
		switch {
		case len(locals) == 0:
			return nil, malformed(f.Path, "import without specifier at line %d", f.Span(stmt).Start.Line)
		case len(locals) > 1:
			return nil, malformed(f.Path, "too many specifiers (%d) at line %d", len(locals), f.Span(stmt).Start.Line)
		}
		sp := f.Span(stmt)
		out[locals[0]] = result.ShaderEntry{
			Name:   locals[0],
			Source: f.StringValue(stmt.ChildByFieldName("source")),
			Start:  sp.Start,
			End:    sp.End,
		}
	}
	if len(out) == 0 {
		return nil, malformed(f.Path, "no import declarations")
	}
	return out, nil
}

func importLocals(f *jsast.File, stmt *sitter.Node) []string {
	var locals []string
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		clause := stmt.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			spec := clause.NamedChild(j)
			switch spec.Type() {
			case "identifier":
				locals = append(locals, f.Text(spec))
			case "namespace_import":
				if id := jsast.Find(spec, func(n *sitter.Node) bool { return n.Type() == "identifier" }); id != nil {
					locals = append(locals, f.Text(id))
				}
			case "named_imports":
				for k := 0; k < int(spec.NamedChildCount()); k++ {
					is := spec.NamedChild(k)
					if is.Type() != "import_specifier" {
						continue
					}
					local := is.ChildByFieldName("alias")
					if local == nil {
						local = is.ChildByFieldName("name")
					}
					locals = append(locals, f.Text(local))
				}
			}
		}
	}
	return locals
}

// uniformsLib reads the top-level properties of `UniformsLib = { ... }`.
func uniformsLib(f *jsast.File) (map[string]result.UniformEntry, error) {
	obj := declaredObject(f, "UniformsLib")
	if obj == nil {
		return nil, malformed(f.Path, "no UniformsLib object declarator")
	}
	out := make(map[string]result.UniformEntry)
	for _, p := range properties(f, obj) {
		sp := f.Span(p.node)
		out[p.name] = result.UniformEntry{Name: p.name, Start: sp.Start, End: sp.End}
	}
	return out, nil
}

// declaredObject finds `<name> = { ... }` as a variable declarator.
func declaredObject(f *jsast.File, name string) *sitter.Node {
	decl := jsast.Find(f.Root, func(n *sitter.Node) bool {
		if n.Type() != "variable_declarator" {
			return false
		}
		id, val := n.ChildByFieldName("name"), n.ChildByFieldName("value")
		return id != nil && val != nil && f.Text(id) == name && val.Type() == "object"
	})
	if decl == nil {
		return nil
	}
	return decl.ChildByFieldName("value")
}

type property struct {
	name  string
	node  *sitter.Node // the pair (or shorthand) node
	value *sitter.Node // nil for shorthand properties
}

// properties lists the own properties of an object literal in order.
func properties(f *jsast.File, obj *sitter.Node) []property {
	var out []property
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		c := obj.NamedChild(i)
		switch c.Type() {
		case "pair":
			key := c.ChildByFieldName("key")
			name := f.Text(key)
			if key.Type() == "string" {
				name = f.StringValue(key)
			}
			out = append(out, property{name: name, node: c, value: c.ChildByFieldName("value")})
		case "shorthand_property_identifier":
			out = append(out, property{name: f.Text(c), node: c})
		}
	}
	return out
}

// libBuilder resolves ShaderLib entries against the chunk and uniform tables.
type libBuilder struct {
	file     *jsast.File
	chunks   map[string]result.ShaderEntry
	uniforms map[string]result.UniformEntry
	logger   *slog.Logger

	libs map[string]result.ShaderDescriptor
}

// detachedRequired names the entry assigned outside the main literal that
// must be present.
const detachedRequired = "physical"

func (b *libBuilder) build() (map[string]result.ShaderDescriptor, error) {
	f := b.file
	obj := declaredObject(f, "ShaderLib")
	if obj == nil {
		return nil, malformed(f.Path, "no ShaderLib object declarator")
	}
	b.libs = make(map[string]result.ShaderDescriptor)

	for _, p := range properties(f, obj) {
		if p.value == nil || p.value.Type() != "object" {
			return nil, malformed(f.Path, "ShaderLib.%s is not an object literal", p.name)
		}
		d, err := b.describe(p.name, p.node, p.value)
		if err != nil {
			return nil, err
		}
		b.libs[p.name] = d
	}

	// Entries such as ShaderLib.physical reference a sibling and are
	// assigned after the literal.
	found := false
	var buildErr error
	jsast.Walk(f.Root, func(n *sitter.Node) bool {
		if buildErr != nil {
			return false
		}
		if n.Type() != "assignment_expression" {
			return true
		}
		name, right, ok := detachedEntry(f, n)
		if !ok {
			return true
		}
		d, err := b.describe(name, n, right)
		if err != nil {
			buildErr = err
			return false
		}
		b.libs[name] = d
		if name == detachedRequired {
			found = true
		}
		return false
	})
	if buildErr != nil {
		return nil, buildErr
	}
	if !found {
		return nil, malformed(f.Path, "no ShaderLib.%s assignment", detachedRequired)
	}
	return b.libs, nil
}

// detachedEntry matches `ShaderLib.<name> = { ... }`.
func detachedEntry(f *jsast.File, n *sitter.Node) (string, *sitter.Node, bool) {
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	if left == nil || right == nil || left.Type() != "member_expression" || right.Type() != "object" {
		return "", nil, false
	}
	obj, prop := left.ChildByFieldName("object"), left.ChildByFieldName("property")
	if obj == nil || prop == nil || obj.Type() != "identifier" || f.Text(obj) != "ShaderLib" {
		return "", nil, false
	}
	return f.Text(prop), right, true
}

func (b *libBuilder) describe(name string, span, obj *sitter.Node) (result.ShaderDescriptor, error) {
	f := b.file
	sp := f.Span(span)
	d := result.ShaderDescriptor{
		Name:         name,
		UniformsRefs: []result.UniformEntry{},
		Start:        sp.Start,
		End:          sp.End,
	}

	var refs []result.UniformEntry
	for _, p := range properties(f, obj) {
		switch p.name {
		case "vertexShader", "fragmentShader":
			ref, ok := memberRef(f, p.value)
			if !ok {
				b.logger.Debug("catalog: unknown shader value", "shader", name, "field", p.name)
				continue
			}
			if p.name == "vertexShader" {
				d.VertexShader = ref
			} else {
				d.FragmentShader = ref
			}

		case "uniforms":
			if p.value == nil {
				continue
			}
			switch p.value.Type() {
			case "call_expression":
				for _, el := range mergeElements(p.value) {
					if el.Type() != "member_expression" {
						continue
					}
					obj := el.ChildByFieldName("object")
					if obj != nil && obj.Type() == "member_expression" {
						// ShaderLib.<sibling>.uniforms
						sib := f.Text(obj.ChildByFieldName("property"))
						sd, ok := b.libs[sib]
						if !ok {
							return d, malformed(f.Path, "ShaderLib.%s references unknown entry %q", name, sib)
						}
						refs = append(refs, sd.UniformsRefs...)
						continue
					}
					refs = append(refs, b.uniform(name, f.Text(el.ChildByFieldName("property"))))
				}
			case "object":
				b.logger.Debug("catalog: inline uniforms skipped", "shader", name)
			default:
				b.logger.Debug("catalog: unknown uniforms value", "shader", name, "type", p.value.Type())
			}

		default:
			b.logger.Debug("catalog: unknown shader field", "shader", name, "field", p.name)
		}
	}

	b.link(&d)
	d.UniformsRefs = append(d.UniformsRefs, refs...)
	return d, nil
}

func memberRef(f *jsast.File, v *sitter.Node) (result.ShaderRef, bool) {
	if v == nil || v.Type() != "member_expression" {
		return result.ShaderRef{}, false
	}
	return result.ShaderRef{
		Group: f.Text(v.ChildByFieldName("object")),
		Name:  f.Text(v.ChildByFieldName("property")),
	}, true
}

// mergeElements returns the elements of the first array argument of a call.
func mergeElements(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return nil
	}
	arr := args.NamedChild(0)
	if arr.Type() != "array" {
		return nil
	}
	out := make([]*sitter.Node, 0, arr.NamedChildCount())
	for i := 0; i < int(arr.NamedChildCount()); i++ {
		out = append(out, arr.NamedChild(i))
	}
	return out
}

// uniform resolves a UniformsLib group named by a merge array.
func (b *libBuilder) uniform(shader, name string) result.UniformEntry {
	u, ok := b.uniforms[name]
	if !ok {
		b.logger.Warn("catalog: unknown uniform group", "shader", shader, "uniform", name)
		u = result.UniformEntry{Name: name}
	}
	return u
}

func (b *libBuilder) link(d *result.ShaderDescriptor) {
	for _, ref := range []*result.ShaderRef{&d.VertexShader, &d.FragmentShader} {
		if ref.Group != "ShaderChunk" {
			b.logger.Error("catalog: unknown shader group", "shader", d.Name, "group", ref.Group)
			continue
		}
		if chunk, ok := b.chunks[ref.Name]; ok {
			c := chunk
			ref.Linked = &c
		} else {
			b.logger.Warn("catalog: unknown shader chunk", "shader", d.Name, "chunk", ref.Name)
		}
	}
}
