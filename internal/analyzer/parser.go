// Package analyzer turns Python source into per-scope control-flow graphs
// and static single assignment data used to derive statement-level graphs.
package analyzer

import (
	"context"
	"fmt"
	"path"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Parser builds Modules from Python source using tree-sitter.
// A new tree-sitter parser is created per Parse call, so one Parser may be
// shared by concurrent workers.
type Parser struct {
	language *tree_sitter.Language
}

// NewParser creates a Parser with the Python grammar registered.
func NewParser() *Parser {
	return &Parser{language: tree_sitter.NewLanguage(tree_sitter_python.Language())}
}

// Parse builds the flattened CFGs of one file. file is the path recorded in
// the result and used to derive the module name.
func (p *Parser) Parse(_ context.Context, file string, source []byte) (*Module, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(p.language); err != nil {
		return nil, fmt.Errorf("analyzer: set language: %w", err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("analyzer: tree-sitter returned nil tree for %s", file)
	}
	defer tree.Close()

	mod := &Module{Path: file, Name: ModuleName(file)}
	b := &builder{x: &extractor{src: source}, mod: mod}
	b.build(mod.Name, "", 0, nil, namedChildren(tree.RootNode()))
	return mod, nil
}

// Close is a no-op because parsers are created per Parse call.
func (p *Parser) Close() error {
	return nil
}

// ModuleName derives a dot-free scope root from a file path.
func ModuleName(file string) string {
	base := path.Base(strings.ReplaceAll(file, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return "module"
	}
	return strings.ReplaceAll(base, ".", "_")
}
