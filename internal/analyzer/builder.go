package analyzer

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

type loopFrame struct {
	header *Block
	after  *Block
}

// builder constructs the flattened CFGs of one module. Block IDs are unique
// across all CFGs of the module.
type builder struct {
	x      *extractor
	mod    *Module
	nextID int
	loops  []loopFrame
}

func (b *builder) newBlock(cfg *CFG) *Block {
	b.nextID++
	blk := &Block{ID: b.nextID}
	cfg.Blocks = append(cfg.Blocks, blk)
	return blk
}

// build creates a CFG for body and registers it before any CFG nested
// inside it, so parents always precede children in Module.CFGs.
func (b *builder) build(name, funcName string, defLine int, params []string, body []*tree_sitter.Node) *CFG {
	cfg := &CFG{Name: name, FuncName: funcName, DefLine: defLine, Params: params}
	b.mod.CFGs = append(b.mod.CFGs, cfg)

	saved := b.loops
	b.loops = nil
	cfg.Entry = b.newBlock(cfg)
	b.visitBody(cfg, cfg.Entry, body)
	b.loops = saved

	compact(cfg)
	return cfg
}

// visitBody appends stmts starting at cur and returns the block control
// falls out of, or nil if every path leaves via return, raise, break or
// continue.
func (b *builder) visitBody(cfg *CFG, cur *Block, stmts []*tree_sitter.Node) *Block {
	for _, n := range stmts {
		if cur == nil {
			// Unreachable code still gets a block; compact drops it.
			cur = b.newBlock(cfg)
		}
		cur = b.visit(cfg, cur, n)
	}
	return cur
}

func (b *builder) visit(cfg *CFG, cur *Block, n *tree_sitter.Node) *Block {
	switch n.Kind() {
	case "comment":
		return cur

	case "if_statement":
		return b.visitIf(cfg, cur, n)

	case "while_statement", "for_statement":
		return b.visitLoop(cfg, cur, n)

	case "try_statement":
		return b.visitTry(cfg, cur, n)

	case "with_statement":
		cur.Statements = append(cur.Statements, b.x.compound(n))
		return b.visitBody(cfg, cur, bodyOf(n, "body"))

	case "match_statement":
		return b.visitMatch(cfg, cur, n)

	case "function_definition", "class_definition":
		b.visitDefinition(cfg, cur, n, nil)
		return cur

	case "decorated_definition":
		def := n.ChildByFieldName("definition")
		if def == nil {
			cur.Statements = append(cur.Statements, b.x.simple(n))
			return cur
		}
		var decorators []*tree_sitter.Node
		for _, c := range namedChildren(n) {
			if c.Kind() == "decorator" {
				decorators = append(decorators, c)
			}
		}
		b.visitDefinition(cfg, cur, def, decorators)
		return cur

	case "return_statement", "raise_statement":
		cur.Statements = append(cur.Statements, b.x.simple(n))
		return nil

	case "break_statement":
		cur.Statements = append(cur.Statements, b.x.simple(n))
		if len(b.loops) > 0 {
			cur.link(b.loops[len(b.loops)-1].after)
		}
		return nil

	case "continue_statement":
		cur.Statements = append(cur.Statements, b.x.simple(n))
		if len(b.loops) > 0 {
			cur.link(b.loops[len(b.loops)-1].header)
		}
		return nil

	default:
		cur.Statements = append(cur.Statements, b.x.simple(n))
		return cur
	}
}

func (b *builder) visitDefinition(cfg *CFG, cur *Block, n *tree_sitter.Node, decorators []*tree_sitter.Node) {
	stmt := b.x.definition(n, decorators)
	stmt.Scope = cfg.Name + "." + stmt.Name
	cur.Statements = append(cur.Statements, stmt)

	funcName := ""
	if stmt.Kind == StmtFunctionDef {
		funcName = stmt.Name
	}
	b.build(stmt.Scope, funcName, stmt.Line, stmt.Params, bodyOf(n, "body"))
}

func (b *builder) visitIf(cfg *CFG, cur *Block, n *tree_sitter.Node) *Block {
	cur.Statements = append(cur.Statements, b.x.compound(n))
	after := b.newBlock(cfg)

	then := b.newBlock(cfg)
	cur.link(then)
	if end := b.visitBody(cfg, then, bodyOf(n, "consequence")); end != nil {
		end.link(after)
	}

	cond := cur
	hasElse := false
	for _, c := range namedChildren(n) {
		switch c.Kind() {
		case "elif_clause":
			test := b.newBlock(cfg)
			cond.link(test)
			test.Statements = append(test.Statements, b.x.compound(c))
			cond = test

			body := b.newBlock(cfg)
			test.link(body)
			if end := b.visitBody(cfg, body, bodyOf(c, "consequence")); end != nil {
				end.link(after)
			}
		case "else_clause":
			hasElse = true
			body := b.newBlock(cfg)
			cond.link(body)
			if end := b.visitBody(cfg, body, bodyOf(c, "body")); end != nil {
				end.link(after)
			}
		}
	}
	if !hasElse {
		cond.link(after)
	}
	return after
}

func (b *builder) visitLoop(cfg *CFG, cur *Block, n *tree_sitter.Node) *Block {
	header := b.newBlock(cfg)
	cur.link(header)
	header.Statements = append(header.Statements, b.x.compound(n))

	body := b.newBlock(cfg)
	header.link(body)
	after := b.newBlock(cfg)

	b.loops = append(b.loops, loopFrame{header: header, after: after})
	if end := b.visitBody(cfg, body, bodyOf(n, "body")); end != nil {
		end.link(header)
	}
	b.loops = b.loops[:len(b.loops)-1]

	if els := firstChildOfKind(n, "else_clause"); els != nil {
		eb := b.newBlock(cfg)
		header.link(eb)
		if end := b.visitBody(cfg, eb, bodyOf(els, "body")); end != nil {
			end.link(after)
		}
	} else {
		header.link(after)
	}
	return after
}

func (b *builder) visitTry(cfg *CFG, cur *Block, n *tree_sitter.Node) *Block {
	cur.Statements = append(cur.Statements, b.x.compound(n))

	body := b.newBlock(cfg)
	cur.link(body)
	bodyEnd := b.visitBody(cfg, body, bodyOf(n, "body"))

	var ends []*Block
	var finally *tree_sitter.Node
	for _, c := range namedChildren(n) {
		switch c.Kind() {
		case "except_clause", "except_group_clause":
			h := b.newBlock(cfg)
			cur.link(h)
			h.Statements = append(h.Statements, b.x.compound(c))
			ends = append(ends, b.visitBody(cfg, h, bodyOf(c, "body")))
		case "else_clause":
			if bodyEnd != nil {
				eb := b.newBlock(cfg)
				bodyEnd.link(eb)
				bodyEnd = b.visitBody(cfg, eb, bodyOf(c, "body"))
			}
		case "finally_clause":
			finally = c
		}
	}
	ends = append(ends, bodyEnd)

	join := b.newBlock(cfg)
	for _, e := range ends {
		if e != nil {
			e.link(join)
		}
	}
	if finally == nil {
		return join
	}
	return b.visitBody(cfg, join, bodyOf(finally, "body"))
}

func (b *builder) visitMatch(cfg *CFG, cur *Block, n *tree_sitter.Node) *Block {
	cur.Statements = append(cur.Statements, b.x.compound(n))
	after := b.newBlock(cfg)

	for _, c := range namedChildren(n.ChildByFieldName("body")) {
		if c.Kind() != "case_clause" {
			continue
		}
		cb := b.newBlock(cfg)
		cur.link(cb)
		cb.Statements = append(cb.Statements, b.x.compound(c))
		if end := b.visitBody(cfg, cb, bodyOf(c, "consequence")); end != nil {
			end.link(after)
		}
	}
	cur.link(after)
	return after
}

// compact removes empty join blocks by routing their predecessors straight
// to their successors, then drops blocks unreachable from the entry.
func compact(cfg *CFG) {
	for {
		var empty *Block
		for _, blk := range cfg.Blocks {
			if blk != cfg.Entry && len(blk.Statements) == 0 {
				empty = blk
				break
			}
		}
		if empty == nil {
			break
		}
		for _, blk := range cfg.Blocks {
			if blk == empty {
				continue
			}
			var exits []*Block
			for _, e := range blk.Exits {
				if e == empty {
					exits = append(exits, empty.Exits...)
					continue
				}
				exits = append(exits, e)
			}
			blk.Exits = nil
			for _, e := range exits {
				blk.link(e)
			}
		}
		cfg.Blocks = removeBlock(cfg.Blocks, empty)
	}
	cfg.Blocks = reachable(cfg.Entry)
}

func removeBlock(blocks []*Block, target *Block) []*Block {
	out := blocks[:0]
	for _, b := range blocks {
		if b != target {
			out = append(out, b)
		}
	}
	return out
}

// reachable lists blocks reachable from entry in depth-first preorder.
func reachable(entry *Block) []*Block {
	var out []*Block
	seen := map[int]bool{}
	var walk func(*Block)
	walk = func(b *Block) {
		if seen[b.ID] {
			return
		}
		seen[b.ID] = true
		out = append(out, b)
		for _, e := range b.Exits {
			walk(e)
		}
	}
	walk(entry)
	return out
}
