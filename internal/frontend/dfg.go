package frontend

import (
	"context"
	"fmt"

	"github.com/dusk-indust/py2graph/internal/analyzer"
	"github.com/dusk-indust/py2graph/internal/graph"
	"github.com/dusk-indust/py2graph/internal/pipe"
)

// DFGConsumer emits a dfg edge from every statement to each statement
// whose definition reaches one of the identifiers it reads.
type DFGConsumer struct {
	Parser *analyzer.Parser
}

func (c *DFGConsumer) Consume(ctx context.Context, root, file string, sink pipe.Sink) error {
	rel, src, err := readSource(root, file)
	if err != nil {
		return err
	}
	mod, err := c.Parser.Parse(ctx, rel, src)
	if err != nil {
		return fmt.Errorf("dfg: %w", err)
	}
	EmitDFG(mod, sink)
	return nil
}

// EmitDFG writes the intra-file data-flow edges of mod to sink, pointing
// from the dependent line to the defining line.
func EmitDFG(mod *analyzer.Module, sink pipe.Sink) {
	for _, d := range analyzer.BuildSSA(mod).Dependencies() {
		from := graph.CodeVertex(mod.Path, d.Line)
		to := graph.CodeVertex(mod.Path, d.DefLine)
		if from.Invalid() || to.Invalid() {
			continue
		}
		sink.PutEdge(graph.NewEdge(graph.EdgeDFG, from, to))
	}
}
