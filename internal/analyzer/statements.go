package analyzer

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// bodyKinds are children of a compound statement that hold nested
// statements rather than header expressions.
var bodyKinds = map[string]bool{
	"block":               true,
	"elif_clause":         true,
	"else_clause":         true,
	"except_clause":       true,
	"except_group_clause": true,
	"finally_clause":      true,
	"case_clause":         true,
}

// comprehensionKinds introduce their own scope for for_in_clause targets.
var comprehensionKinds = map[string]bool{
	"list_comprehension":       true,
	"set_comprehension":        true,
	"dictionary_comprehension": true,
	"generator_expression":     true,
}

// extractor turns tree-sitter nodes into Statements. It only reads source.
type extractor struct {
	src []byte
}

func lineOf(n *tree_sitter.Node) int {
	return int(n.StartPosition().Row) + 1
}

func children(n *tree_sitter.Node) []*tree_sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*tree_sitter.Node, 0, n.ChildCount())
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func namedChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	for _, c := range children(n) {
		if c.IsNamed() && c.Kind() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

// firstChildOfKind returns the first direct child of the given kind.
func firstChildOfKind(n *tree_sitter.Node, kind string) *tree_sitter.Node {
	for _, c := range children(n) {
		if c.Kind() == kind {
			return c
		}
	}
	return nil
}

// bodyOf returns the statements of the block that forms n's body.
func bodyOf(n *tree_sitter.Node, field string) []*tree_sitter.Node {
	if n == nil {
		return nil
	}
	b := n.ChildByFieldName(field)
	if b == nil {
		b = firstChildOfKind(n, "block")
	}
	return namedChildren(b)
}

func sameNode(a, b *tree_sitter.Node) bool {
	return a != nil && b != nil &&
		a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}

// collapse joins lines and squeezes runs of whitespace.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// headerParts returns the named children of n that are not nested bodies.
func headerParts(n *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	for _, c := range namedChildren(n) {
		if !bodyKinds[c.Kind()] {
			out = append(out, c)
		}
	}
	return out
}

// headerText is the source of n up to its first nested body.
func (x *extractor) headerText(n *tree_sitter.Node) string {
	end := n.EndByte()
	for _, c := range children(n) {
		if bodyKinds[c.Kind()] {
			end = c.StartByte()
			break
		}
	}
	return collapse(string(x.src[n.StartByte():end]))
}

func headerAST(n *tree_sitter.Node) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(n.Kind())
	for _, p := range headerParts(n) {
		b.WriteString(" ")
		b.WriteString(p.ToSexp())
	}
	b.WriteString(")")
	return b.String()
}

// simple builds a statement for a node without nested bodies.
func (x *extractor) simple(n *tree_sitter.Node) *Statement {
	s := &Statement{
		Kind: StmtSimple,
		Line: lineOf(n),
		Code: strings.TrimSpace(n.Utf8Text(x.src)),
		AST:  n.ToSexp(),
	}
	switch n.Kind() {
	case "return_statement":
		s.Kind = StmtReturn
		s.HasValue = len(namedChildren(n)) > 0
		x.scan(n, s, nil)
	case "import_from_statement":
		s.Kind = StmtImportFrom
		s.Import = x.importFrom(n)
		for _, name := range s.Import.Names {
			if name.Name != "*" {
				s.Defs = appendUnique(s.Defs, name.LocalName())
			}
		}
	case "import_statement":
		for _, c := range namedChildren(n) {
			switch c.Kind() {
			case "dotted_name":
				first := strings.SplitN(c.Utf8Text(x.src), ".", 2)[0]
				s.Defs = appendUnique(s.Defs, first)
			case "aliased_import":
				if a := c.ChildByFieldName("alias"); a != nil {
					s.Defs = appendUnique(s.Defs, a.Utf8Text(x.src))
				}
			}
		}
	case "global_statement", "nonlocal_statement", "future_import_statement":
	default:
		x.scan(n, s, nil)
	}
	return s
}

// compound builds the header statement of an if/for/while/with/try/match
// statement or one of its clauses.
func (x *extractor) compound(n *tree_sitter.Node) *Statement {
	s := &Statement{
		Kind: StmtCompound,
		Line: lineOf(n),
		Code: x.headerText(n),
		AST:  headerAST(n),
	}
	switch n.Kind() {
	case "for_statement":
		x.targets(n.ChildByFieldName("left"), s, nil)
		x.scan(n.ChildByFieldName("right"), s, nil)
	case "except_clause", "except_group_clause":
		x.exceptHeader(n, s)
	default:
		for _, p := range headerParts(n) {
			x.scan(p, s, nil)
		}
	}
	return s
}

// exceptHeader handles both "except E as e" grammar shapes: an as_pattern
// child, or a bare identifier following the "as" keyword.
func (x *extractor) exceptHeader(n *tree_sitter.Node, s *Statement) {
	afterAs := false
	for _, c := range children(n) {
		switch {
		case c.Kind() == "as":
			afterAs = true
		case !c.IsNamed() || bodyKinds[c.Kind()] || c.Kind() == "comment":
		case afterAs && c.Kind() == "identifier":
			s.Defs = appendUnique(s.Defs, c.Utf8Text(x.src))
			afterAs = false
		default:
			x.scan(c, s, nil)
		}
	}
}

// definition builds the statement for a function or class definition.
// decorators may be nil.
func (x *extractor) definition(n *tree_sitter.Node, decorators []*tree_sitter.Node) *Statement {
	s := &Statement{
		Kind: StmtClassDef,
		Line: lineOf(n),
		Code: x.headerText(n),
		AST:  headerAST(n),
	}
	if n.Kind() == "function_definition" {
		s.Kind = StmtFunctionDef
	}
	if name := n.ChildByFieldName("name"); name != nil {
		s.Name = name.Utf8Text(x.src)
		s.Defs = appendUnique(s.Defs, s.Name)
	}
	for _, d := range decorators {
		x.scan(d, s, nil)
	}
	switch s.Kind {
	case StmtFunctionDef:
		s.Params = x.parameters(n.ChildByFieldName("parameters"), s)
		x.scan(n.ChildByFieldName("return_type"), s, nil)
	case StmtClassDef:
		x.scan(n.ChildByFieldName("superclasses"), s, nil)
	}
	return s
}

// parameters returns parameter names and scans defaults and annotations.
func (x *extractor) parameters(n *tree_sitter.Node, s *Statement) []string {
	var params []string
	for _, p := range namedChildren(n) {
		switch p.Kind() {
		case "identifier":
			params = append(params, p.Utf8Text(x.src))
		case "typed_parameter":
			for _, c := range namedChildren(p) {
				if c.Kind() == "identifier" {
					params = append(params, c.Utf8Text(x.src))
					break
				}
				if c.Kind() == "list_splat_pattern" || c.Kind() == "dictionary_splat_pattern" {
					if id := firstChildOfKind(c, "identifier"); id != nil {
						params = append(params, id.Utf8Text(x.src))
					}
					break
				}
			}
			x.scan(p.ChildByFieldName("type"), s, nil)
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil {
				params = append(params, name.Utf8Text(x.src))
			}
			x.scan(p.ChildByFieldName("type"), s, nil)
			x.scan(p.ChildByFieldName("value"), s, nil)
		case "list_splat_pattern", "dictionary_splat_pattern":
			if id := firstChildOfKind(p, "identifier"); id != nil {
				params = append(params, id.Utf8Text(x.src))
			}
		}
	}
	return params
}

func (x *extractor) importFrom(n *tree_sitter.Node) *ImportFrom {
	imp := &ImportFrom{}
	mod := n.ChildByFieldName("module_name")
	if mod != nil {
		text := mod.Utf8Text(x.src)
		trimmed := strings.TrimLeft(text, ".")
		imp.Level = len(text) - len(trimmed)
		imp.Module = strings.TrimSpace(trimmed)
	}
	for _, c := range namedChildren(n) {
		if sameNode(c, mod) {
			continue
		}
		switch c.Kind() {
		case "dotted_name":
			imp.Names = append(imp.Names, ImportName{Name: c.Utf8Text(x.src)})
		case "aliased_import":
			name := ImportName{}
			if nn := c.ChildByFieldName("name"); nn != nil {
				name.Name = nn.Utf8Text(x.src)
			}
			if a := c.ChildByFieldName("alias"); a != nil {
				name.Alias = a.Utf8Text(x.src)
			}
			imp.Names = append(imp.Names, name)
		case "wildcard_import":
			imp.Names = append(imp.Names, ImportName{Name: "*"})
		}
	}
	return imp
}

// targets records assignment targets as definitions. Attribute and
// subscript targets only read their object.
func (x *extractor) targets(n *tree_sitter.Node, s *Statement, shadow map[string]bool) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "identifier":
		s.Defs = appendUnique(s.Defs, n.Utf8Text(x.src))
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list",
		"expression_list", "parenthesized_expression", "list_splat_pattern", "list_splat":
		for _, c := range namedChildren(n) {
			x.targets(c, s, shadow)
		}
	default:
		x.scan(n, s, shadow)
	}
}

// scan walks an expression or simple statement collecting calls and the
// identifiers it reads and writes. shadow holds names bound locally by
// lambdas and comprehensions.
func (x *extractor) scan(n *tree_sitter.Node, s *Statement, shadow map[string]bool) {
	if n == nil {
		return
	}
	switch n.Kind() {
	case "identifier":
		name := n.Utf8Text(x.src)
		if !shadow[name] {
			s.Uses = appendUnique(s.Uses, name)
		}
		return
	case "comment", "string_content", "escape_sequence":
		return
	case "call":
		fn := n.ChildByFieldName("function")
		if fn != nil {
			switch fn.Kind() {
			case "identifier":
				s.Calls = appendUnique(s.Calls, fn.Utf8Text(x.src))
			case "attribute":
				if attr := fn.ChildByFieldName("attribute"); attr != nil {
					s.Calls = appendUnique(s.Calls, attr.Utf8Text(x.src))
				}
			}
		}
	case "attribute":
		x.scan(n.ChildByFieldName("object"), s, shadow)
		return
	case "keyword_argument":
		x.scan(n.ChildByFieldName("value"), s, shadow)
		return
	case "assignment":
		x.targets(n.ChildByFieldName("left"), s, shadow)
		x.scan(n.ChildByFieldName("right"), s, shadow)
		x.scan(n.ChildByFieldName("type"), s, shadow)
		return
	case "augmented_assignment":
		left := n.ChildByFieldName("left")
		x.scan(left, s, shadow)
		x.targets(left, s, shadow)
		x.scan(n.ChildByFieldName("right"), s, shadow)
		return
	case "named_expression":
		if name := n.ChildByFieldName("name"); name != nil {
			s.Defs = appendUnique(s.Defs, name.Utf8Text(x.src))
		}
		x.scan(n.ChildByFieldName("value"), s, shadow)
		return
	case "as_pattern":
		for _, c := range namedChildren(n) {
			if c.Kind() == "as_pattern_target" {
				for _, t := range namedChildren(c) {
					x.targets(t, s, shadow)
				}
				continue
			}
			x.scan(c, s, shadow)
		}
		return
	case "lambda":
		inner := copyShadow(shadow)
		if params := n.ChildByFieldName("parameters"); params != nil {
			tmp := &Statement{}
			for _, p := range x.parameters(params, tmp) {
				inner[p] = true
			}
			s.Calls = appendUnique(s.Calls, tmp.Calls...)
			s.Uses = appendUnique(s.Uses, tmp.Uses...)
		}
		x.scan(n.ChildByFieldName("body"), s, inner)
		return
	case "for_in_clause":
		x.scan(n.ChildByFieldName("right"), s, shadow)
		return
	}

	if comprehensionKinds[n.Kind()] {
		inner := copyShadow(shadow)
		for _, c := range namedChildren(n) {
			if c.Kind() == "for_in_clause" {
				tmp := &Statement{}
				x.targets(c.ChildByFieldName("left"), tmp, nil)
				for _, d := range tmp.Defs {
					inner[d] = true
				}
			}
		}
		for _, c := range namedChildren(n) {
			x.scan(c, s, inner)
		}
		return
	}

	for _, c := range namedChildren(n) {
		x.scan(c, s, shadow)
	}
}

func copyShadow(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
outer:
	for _, it := range items {
		if it == "" {
			continue
		}
		for _, e := range list {
			if e == it {
				continue outer
			}
		}
		list = append(list, it)
	}
	return list
}
