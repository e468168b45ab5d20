package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/py2graph/internal/diff"
	"github.com/dusk-indust/py2graph/internal/graph"
	"github.com/dusk-indust/py2graph/internal/orchestrator"
)

// GraphService runs ingestion against one Env on behalf of MCP clients.
// Runs are serialized because they share the store and cache.
type GraphService struct {
	env    *orchestrator.Env
	logger *slog.Logger
	mu     sync.Mutex
}

// NewGraphService creates a GraphService. logger may be nil.
func NewGraphService(env *orchestrator.Env, logger *slog.Logger) *GraphService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphService{env: env, logger: logger}
}

func (s *GraphService) run(ctx context.Context, opts orchestrator.Options) (*orchestrator.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := orchestrator.NewPipeline(s.env, opts, s.logger)
	defer p.Close()
	return p.Run(ctx)
}

func (s *GraphService) output(ctx context.Context, res *orchestrator.Result) BuildGraphOutput {
	out := BuildGraphOutput{
		RunID:     res.RunID,
		Files:     res.Files,
		Failed:    res.Failed,
		Vertices:  res.Backend.Vertices,
		Edges:     res.Backend.Edges,
		CallPairs: res.CallPairs,
	}
	if t, ok := s.env.Store().(graph.Traverser); ok {
		if st, err := t.Stats(ctx); err == nil {
			out.Stats = st
		} else {
			s.logger.Warn("graph stats", "error", err)
		}
	}
	return out
}

// BuildGraph ingests a whole project.
func (s *GraphService) BuildGraph(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input BuildGraphInput,
) (*mcp.CallToolResult, BuildGraphOutput, error) {
	if input.ProjectPath == "" {
		return nil, BuildGraphOutput{}, fmt.Errorf("projectPath is required")
	}
	res, err := s.run(ctx, orchestrator.Options{
		ProjectPath: input.ProjectPath,
		CalcWorkers: input.CalcThreads,
		IOWorkers:   input.IOThreads,
		Force:       input.Force,
		Build:       true,
	})
	if err != nil {
		return nil, BuildGraphOutput{}, err
	}
	return nil, s.output(ctx, res), nil
}

// ApplyDiff invalidates the files touched by a change set and rebuilds them.
func (s *GraphService) ApplyDiff(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ApplyDiffInput,
) (*mcp.CallToolResult, ApplyDiffOutput, error) {
	if input.ProjectPath == "" {
		return nil, ApplyDiffOutput{}, fmt.Errorf("projectPath is required")
	}
	res, err := s.run(ctx, orchestrator.Options{
		ProjectPath: input.ProjectPath,
		Diff:        diff.New(input.Added, input.Removed, input.Modified),
		Build:       true,
	})
	if err != nil {
		return nil, ApplyDiffOutput{}, err
	}
	return nil, ApplyDiffOutput{Readd: res.Readd, Result: s.output(ctx, res)}, nil
}

// RelatedFiles lists the files linked to a file by cross-file calls.
func (s *GraphService) RelatedFiles(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RelatedFilesInput,
) (*mcp.CallToolResult, RelatedFilesOutput, error) {
	if input.File == "" {
		return nil, RelatedFilesOutput{}, fmt.Errorf("file is required")
	}
	t, ok := s.env.Store().(graph.Traverser)
	if !ok {
		return nil, RelatedFilesOutput{}, fmt.Errorf("related_files: %w", graph.ErrNotSupported)
	}
	files, err := t.RelatedFiles(ctx, input.File)
	if err != nil {
		return nil, RelatedFilesOutput{}, err
	}
	if files == nil {
		files = []string{}
	}
	return nil, RelatedFilesOutput{Files: files}, nil
}
