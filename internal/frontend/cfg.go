package frontend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dusk-indust/py2graph/internal/analyzer"
	"github.com/dusk-indust/py2graph/internal/callgraph"
	"github.com/dusk-indust/py2graph/internal/graph"
	"github.com/dusk-indust/py2graph/internal/pipe"
)

// FunctionEndPrefix starts the code text of function-end vertices.
const FunctionEndPrefix = "[function end] "

// CFGConsumer emits the statement vertices and control-flow edges of a
// file and records its definitions and call sites in Index.
type CFGConsumer struct {
	Parser *analyzer.Parser
	Index  *callgraph.Index
}

func (c *CFGConsumer) Consume(ctx context.Context, root, file string, sink pipe.Sink) error {
	rel, src, err := readSource(root, file)
	if err != nil {
		return err
	}
	mod, err := c.Parser.Parse(ctx, rel, src)
	if err != nil {
		return fmt.Errorf("cfg: %w", err)
	}
	EmitCFG(mod, c.Index, sink)
	return nil
}

// EmitCFG writes the vertices and cfg edges of an analyzed module to sink.
//
// Every statement becomes a code vertex and the file gets a file vertex
// linked to the module's first statement. Each function definition also
// gets a function-end vertex at the negated definition line that every
// exit of its body flows into. Definitions and resolved call sites are
// recorded in ix for the call-graph pass.
func EmitCFG(mod *analyzer.Module, ix *callgraph.Index, sink pipe.Sink) {
	e := &cfgEmitter{
		file:    mod.Path,
		ix:      ix,
		sink:    sink,
		renames: callgraph.Renames{},
		defs:    map[int]bool{},
	}
	sink.PutVertex(graph.FileVertex(e.file))
	for i, cfg := range mod.CFGs {
		for _, b := range cfg.Blocks {
			for _, st := range b.Statements {
				e.vertex(st)
			}
		}
		e.edges(cfg, i == 0)
	}
}

type cfgEmitter struct {
	file    string
	ix      *callgraph.Index
	sink    pipe.Sink
	renames callgraph.Renames
	// defs holds the line of every function definition emitted for the file.
	defs map[int]bool
}

func (e *cfgEmitter) vertex(st *analyzer.Statement) {
	v := graph.Vertex{
		Label:  graph.LabelCode,
		File:   e.file,
		Lineno: st.Line,
		Code:   st.Code,
		AST:    st.AST,
	}
	switch st.Kind {
	case analyzer.StmtFunctionDef:
		v.FuncName = st.Name
		e.defs[st.Line] = true
		if e.ix != nil {
			e.ix.AddDefinition(e.file, st.Name, v.Key())
		}
		e.sink.PutVertex(graph.Vertex{
			Label:  graph.LabelCode,
			File:   e.file,
			Lineno: -st.Line,
			Code:   FunctionEndPrefix + st.Name,
			AST:    st.AST,
		})
	case analyzer.StmtImportFrom:
		e.renames.AddImport(e.file, st.Import)
	default:
		e.callSites(st, v.Key())
	}
	e.sink.PutVertex(v)
}

func (e *cfgEmitter) callSites(st *analyzer.Statement, key string) {
	if e.ix == nil {
		return
	}
	for _, name := range st.Calls {
		if IsBuiltin(name) {
			continue
		}
		path, raw := e.renames.Resolve(e.file, name)
		e.ix.AddCallSite(path, raw, key)
		callSitesTotal.Inc()
	}
}

func (e *cfgEmitter) edges(cfg *analyzer.CFG, module bool) {
	var entry *graph.Vertex
	switch {
	case module:
		v := graph.FileVertex(e.file)
		entry = &v
	case cfg.IsFunction():
		// Keyed by line: a redefined name keeps each body on its own def.
		if e.defs[cfg.DefLine] {
			v := graph.CodeVertex(e.file, cfg.DefLine)
			entry = &v
		}
	}

	for _, b := range cfg.Blocks {
		var from *graph.Vertex
		if b == cfg.Entry {
			from = entry
		}
		for _, st := range b.Statements {
			if st.Kind == analyzer.StmtFunctionDef || st.Kind == analyzer.StmtClassDef {
				continue
			}
			to := graph.CodeVertex(e.file, st.Line)
			e.put(graph.EdgeCFG, from, to)
			from = &to
		}
		if from == nil {
			continue
		}
		for _, next := range b.Exits {
			if first := next.FirstStatement(); first != nil {
				e.put(graph.EdgeCFG, from, graph.CodeVertex(e.file, first.Line))
			}
		}
		if cfg.IsFunction() && len(b.Exits) == 0 {
			end := graph.CodeVertex(e.file, -cfg.DefLine)
			e.put(graph.EdgeCFG, from, end)
			if last := b.LastStatement(); last != nil && last.Kind == analyzer.StmtReturn && last.HasValue {
				e.put(graph.EdgeDFG, &end, graph.CodeVertex(e.file, last.Line))
			}
		}
	}
}

func (e *cfgEmitter) put(label graph.EdgeLabel, from *graph.Vertex, to graph.Vertex) {
	if from == nil || from.Invalid() || to.Invalid() {
		return
	}
	e.sink.PutEdge(graph.NewEdge(label, *from, to))
}

// readSource loads file, given absolute or relative to root, and returns
// its root-relative slash path with its contents.
func readSource(root, file string) (string, []byte, error) {
	abs := file
	if !filepath.IsAbs(file) {
		abs = filepath.Join(root, filepath.FromSlash(file))
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", nil, fmt.Errorf("relative path of %s: %w", file, err)
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", file, err)
	}
	return NormalizePath(rel), src, nil
}
