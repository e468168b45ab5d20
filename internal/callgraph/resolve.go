package callgraph

import (
	"github.com/dusk-indust/py2graph/internal/graph"
	"github.com/dusk-indust/py2graph/internal/pipe"
)

// Pair links a call site to the definition it calls.
type Pair struct {
	CallerKey string // definition vertex key
	CalleeKey string // call site vertex key
}

// Stats summarizes one resolution pass.
type Stats struct {
	Pairs      int
	Related    int
	Unparsable int
}

type frame struct {
	callee *node
	caller *node
}

// Pairs walks the callee and caller indexes in lock-step and returns every
// resolved (definition, call site) pair in deterministic order.
//
// At each level, a function name found at the same position in the caller
// index resolves to its first recorded definition. Otherwise every child of
// the caller's current level that defines the name is taken. Path segments
// present in both indexes are descended into.
func (ix *Index) Pairs() []Pair {
	var out []Pair
	stack := []frame{{callee: ix.Callees.root, caller: ix.Callers.root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		calleeChildren, calleeNames := f.callee.snapshot()
		callerChildren, callerNames := f.caller.snapshot()

		for _, name := range sortedKeys(calleeNames) {
			sites := calleeNames[name]
			if defs := callerNames[name]; len(defs) > 0 {
				for _, site := range sites {
					out = append(out, Pair{CallerKey: defs[0], CalleeKey: site})
				}
				continue
			}
			for _, seg := range sortedKeys(callerChildren) {
				_, names := callerChildren[seg].snapshot()
				defs := names[name]
				if len(defs) == 0 {
					continue
				}
				for _, site := range sites {
					out = append(out, Pair{CallerKey: defs[0], CalleeKey: site})
				}
			}
		}

		segs := sortedKeys(calleeChildren)
		for i := len(segs) - 1; i >= 0; i-- {
			if callerChild, ok := callerChildren[segs[i]]; ok {
				stack = append(stack, frame{callee: calleeChildren[segs[i]], caller: callerChild})
			}
		}
	}
	return out
}

// Resolve emits the edges of every resolved pair into sink:
//
//   - cg call site -> definition, and dfg definition -> call site
//   - related callerFile -> calleeFile, once per ordered pair of distinct files
//   - cg function end -> call site, and dfg call site -> function end, where
//     the function end is the definition's negated line
func (ix *Index) Resolve(sink pipe.Sink) Stats {
	var st Stats
	for _, p := range ix.Pairs() {
		callerFile, callerLine, ok1 := graph.ParseKey(p.CallerKey)
		calleeFile, calleeLine, ok2 := graph.ParseKey(p.CalleeKey)
		if !ok1 || !ok2 {
			st.Unparsable++
			continue
		}
		st.Pairs++

		caller := graph.CodeVertex(callerFile, callerLine)
		callee := graph.CodeVertex(calleeFile, calleeLine)
		end := graph.CodeVertex(callerFile, -callerLine)

		if callerFile != calleeFile && ix.MarkRelated(callerFile, calleeFile) {
			sink.PutEdge(graph.NewEdge(graph.EdgeRelated, graph.FileVertex(callerFile), graph.FileVertex(calleeFile)))
			st.Related++
		}
		sink.PutEdge(graph.NewEdge(graph.EdgeCG, callee, caller))
		sink.PutEdge(graph.NewEdge(graph.EdgeDFG, caller, callee))
		sink.PutEdge(graph.NewEdge(graph.EdgeCG, end, callee))
		sink.PutEdge(graph.NewEdge(graph.EdgeDFG, callee, end))
	}
	return st
}
