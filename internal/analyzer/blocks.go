package analyzer

// StmtKind classifies a statement for graph construction.
type StmtKind int

const (
	StmtSimple StmtKind = iota
	StmtCompound
	StmtFunctionDef
	StmtClassDef
	StmtImportFrom
	StmtReturn
)

// Statement is one source statement. Compound statements (if, for, while,
// with, try, def, class) are represented by their header only; their bodies
// live in other blocks or, for definitions, in their own CFG.
type Statement struct {
	Kind StmtKind
	Line int
	Code string
	AST  string

	// Name is the defined name for function and class definitions.
	Name string
	// Scope is the qualified name of the CFG built for a definition's body.
	Scope string
	// Params lists parameter names of a function definition.
	Params []string

	// Calls lists the callee names of every call in the statement.
	Calls []string
	// Import is set for "from X import Y" statements.
	Import *ImportFrom
	// HasValue is set for return statements that return an expression.
	HasValue bool

	// Defs and Uses are the plain identifiers written and read.
	Defs []string
	Uses []string
}

// ImportFrom describes a "from <module> import <names>" statement.
type ImportFrom struct {
	// Module is the dotted module name without leading dots; empty for
	// "from . import x".
	Module string
	// Level is the number of leading dots.
	Level int
	Names []ImportName
}

// ImportName is one imported name with its optional alias.
type ImportName struct {
	Name  string
	Alias string
}

// LocalName is the name the import binds in the importing module.
func (n ImportName) LocalName() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// Block is a basic block: statements executed in order, followed by a
// transfer to one of Exits.
type Block struct {
	ID         int
	Statements []*Statement
	Exits      []*Block
}

// FirstStatement returns the first statement that is not a function or class
// definition, or nil.
func (b *Block) FirstStatement() *Statement {
	for _, s := range b.Statements {
		if s.Kind != StmtFunctionDef && s.Kind != StmtClassDef {
			return s
		}
	}
	return nil
}

// LastStatement returns the last statement that is not a function or class
// definition, or nil.
func (b *Block) LastStatement() *Statement {
	for i := len(b.Statements) - 1; i >= 0; i-- {
		s := b.Statements[i]
		if s.Kind != StmtFunctionDef && s.Kind != StmtClassDef {
			return s
		}
	}
	return nil
}

func (b *Block) link(to *Block) {
	if to == nil {
		return
	}
	for _, e := range b.Exits {
		if e == to {
			return
		}
	}
	b.Exits = append(b.Exits, to)
}

// CFG is the control-flow graph of a module, function or class body.
type CFG struct {
	// Name is the qualified scope name, e.g. "pkg.mod.Class.method".
	Name string
	// FuncName is the function's own name; empty for module and class CFGs.
	FuncName string
	// DefLine is the line of the def or class statement; 0 for modules.
	DefLine int
	Params  []string
	Entry   *Block
	// Blocks lists every block reachable or not, in creation order.
	Blocks []*Block
}

// IsFunction reports whether the CFG is a function body.
func (c *CFG) IsFunction() bool { return c.FuncName != "" }

// ExitBlocks returns blocks with no successors.
func (c *CFG) ExitBlocks() []*Block {
	var out []*Block
	for _, b := range c.Blocks {
		if len(b.Exits) == 0 {
			out = append(out, b)
		}
	}
	return out
}

// Module is the analysis result of one file: its CFGs flattened with the
// module CFG first and nested CFGs in definition order.
type Module struct {
	Path string
	Name string
	CFGs []*CFG
}

// Parent returns the enclosing scope name of a qualified scope, or "".
func Parent(scope string) string {
	for i := len(scope) - 1; i >= 0; i-- {
		if scope[i] == '.' {
			return scope[:i]
		}
	}
	return ""
}
