package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/py2graph/internal/analyzer"
	"github.com/dusk-indust/py2graph/internal/backend"
	"github.com/dusk-indust/py2graph/internal/cache"
	"github.com/dusk-indust/py2graph/internal/callgraph"
	"github.com/dusk-indust/py2graph/internal/diff"
	"github.com/dusk-indust/py2graph/internal/frontend"
	"github.com/dusk-indust/py2graph/internal/graph"
	"github.com/dusk-indust/py2graph/internal/pipe"
)

var tracer = otel.Tracer("py2graph.orchestrator")

// Pipeline runs py2graph over one project against the store and cache of
// an Env.
type Pipeline struct {
	env      *Env
	opts     Options
	logger   *slog.Logger
	parser   *analyzer.Parser
	progress *ProgressReporter
}

// NewPipeline creates a Pipeline. logger may be nil.
func NewPipeline(env *Env, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		env:      env,
		opts:     opts,
		logger:   logger,
		parser:   analyzer.NewParser(),
		progress: NewProgressReporter(),
	}
}

// Progress returns a channel that emits progress events.
func (p *Pipeline) Progress() <-chan ProgressEvent {
	return p.progress.Subscribe()
}

// Close shuts down the progress reporter.
func (p *Pipeline) Close() {
	p.progress.Close()
}

func (p *Pipeline) emit(phase Phase, status ProgressStatus, msg string) {
	p.progress.Emit(ProgressEvent{Phase: phase, Status: status, Message: msg})
}

// Run executes one run: purge when forced, apply the diff when given, and
// build the graph when Options.Build is set. Only configuration and store
// setup errors are returned; per-file and per-batch failures are logged.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", res.RunID)

	root := p.opts.ProjectPath
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("orchestrator: project path %q is not a directory", root)
	}
	store, ids := p.env.Store(), p.env.Cache()
	if store == nil || ids == nil {
		return nil, errors.New("orchestrator: env has no store or cache")
	}

	if err := p.prepare(ctx, logger, store, ids); err != nil {
		return nil, err
	}

	producer := frontend.AllFiles(root)
	if p.opts.Diff != nil {
		readd, err := p.applyDiff(ctx, logger, store)
		if err != nil {
			return nil, err
		}
		if readd != nil {
			res.Readd = readd
			producer = frontend.SpecifiedFiles(readd)
		}
	}

	if !p.opts.Build {
		res.Duration = time.Since(start)
		return res, nil
	}

	fileCount := len(res.Readd)
	if res.Readd == nil {
		n, err := frontend.CountFiles(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: count files: %w", err)
		}
		fileCount = n
	}
	logger.Info("building graph", "project", root, "files", fileCount)

	if err := p.build(ctx, logger, producer, fileCount, res); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	logger.Info("graph ready",
		"files", res.Files,
		"failed", res.Failed,
		"vertices", res.Backend.Vertices,
		"edges", res.Backend.Edges,
		"duration", res.Duration,
	)
	return res, nil
}

// prepare purges the store and cache when forced, and makes sure the
// store schema exists.
func (p *Pipeline) prepare(ctx context.Context, logger *slog.Logger, store graph.Store, ids cache.Cache) error {
	switch {
	case p.opts.Force && p.opts.Diff != nil:
		logger.Warn("diff given, force flag ignored")
		p.emit(PhasePurge, ProgressSkipped, "diff given")
	case p.opts.Force:
		p.emit(PhasePurge, ProgressWorking, "")
		logger.Info("purging previous graph")
		if err := store.Drop(ctx); err != nil {
			p.emit(PhasePurge, ProgressFailed, err.Error())
			return fmt.Errorf("orchestrator: drop store: %w", err)
		}
		logger.Info("purging cache")
		if err := ids.Clear(); err != nil {
			p.emit(PhasePurge, ProgressFailed, err.Error())
			return fmt.Errorf("orchestrator: clear cache: %w", err)
		}
		p.emit(PhasePurge, ProgressComplete, "")
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("orchestrator: init store: %w", err)
	}
	return nil
}

// applyDiff deletes the invalidated part of the graph and returns the files
// to analyze again, or nil when the store cannot apply diffs.
func (p *Pipeline) applyDiff(ctx context.Context, logger *slog.Logger, store graph.Store) ([]string, error) {
	p.emit(PhaseDiff, ProgressWorking, "")
	out, err := (&diff.Applier{Store: store, Logger: logger}).Apply(ctx, p.opts.Diff)
	if errors.Is(err, graph.ErrNotSupported) {
		logger.Warn("diff not supported by backend, rebuilding every file")
		p.emit(PhaseDiff, ProgressSkipped, "backend cannot traverse")
		return nil, nil
	}
	if err != nil {
		p.emit(PhaseDiff, ProgressFailed, err.Error())
		return nil, err
	}
	logger.Info("affected files", "files", out.Readd)
	p.emit(PhaseDiff, ProgressComplete, fmt.Sprintf("%d files to rebuild", len(out.Readd)))
	if out.Readd == nil {
		out.Readd = []string{}
	}
	return out.Readd, nil
}

// build runs both frontends and the backend concurrently. The vertex
// stream is sealed when the CFG frontend finishes; the edge stream when
// the call-graph pass and the DFG frontend have both finished.
func (p *Pipeline) build(ctx context.Context, logger *slog.Logger, producer frontend.Producer, fileCount int, res *Result) error {
	pp := pipe.New()
	sink := pp.Sink()
	ix := callgraph.NewIndex()

	calc := p.opts.CalcWorkers
	if calc <= 0 {
		calc = frontend.DefaultWorkers(fileCount)
	}
	io := p.opts.IOWorkers
	if io <= 0 {
		io = runtime.NumCPU()
	}

	writer := backend.NewWriter(p.env.Store(), p.env.Cache(), backend.Config{
		MaxWorkers:  io,
		VertexBatch: p.opts.VertexBatch,
		EdgeBatch:   p.opts.EdgeBatch,
		RetryDelay:  p.opts.RetryDelay,
	}, logger)

	runner := func(name string, c frontend.Consumer) *frontend.Runner {
		return &frontend.Runner{
			Name:     name,
			Root:     p.opts.ProjectPath,
			Producer: producer,
			Consumer: c,
			Sink:     sink,
			Workers:  calc,
			Logger:   logger,
		}
	}
	cfgRunner := runner("cfg", &frontend.CFGConsumer{Parser: p.parser, Index: ix})
	dfgRunner := runner("dfg", &frontend.DFGConsumer{Parser: p.parser})

	// Started before any vertex exists: one vertex worker streams while the
	// frontends run, and the edge phase is sized once vertices are sealed.
	p.emit(PhaseBackend, ProgressWorking, "")
	backendDone := make(chan backend.Stats, 1)
	go func() {
		backendDone <- writer.Run(ctx, pp.Source())
	}()

	var g errgroup.Group
	g.Go(func() error {
		p.emit(PhaseCFG, ProgressWorking, "")
		st, err := cfgRunner.Run(ctx)
		sink.SealVertices()
		res.Files, res.Failed = st.Files, st.Failed
		if err != nil {
			p.emit(PhaseCFG, ProgressFailed, err.Error())
			return err
		}
		p.emit(PhaseCFG, ProgressComplete, fmt.Sprintf("%d files", st.Files))

		p.emit(PhaseCallGraph, ProgressWorking, "")
		_, span := tracer.Start(ctx, "orchestrator.CallGraph")
		cg := ix.Resolve(sink)
		span.SetAttributes(attribute.Int("pairs", cg.Pairs), attribute.Int("related", cg.Related))
		span.End()
		res.CallPairs = cg.Pairs
		if cg.Unparsable > 0 {
			logger.Warn("unparsable call-graph keys", "count", cg.Unparsable)
		}
		p.emit(PhaseCallGraph, ProgressComplete, fmt.Sprintf("%d calls", cg.Pairs))
		return nil
	})
	g.Go(func() error {
		p.emit(PhaseDFG, ProgressWorking, "")
		st, err := dfgRunner.Run(ctx)
		if err != nil {
			p.emit(PhaseDFG, ProgressFailed, err.Error())
			return err
		}
		p.emit(PhaseDFG, ProgressComplete, fmt.Sprintf("%d files", st.Files))
		return nil
	})

	ferr := g.Wait()
	sink.SealEdges()
	res.Backend = <-backendDone
	p.emit(PhaseBackend, ProgressComplete,
		fmt.Sprintf("%d vertices, %d edges", res.Backend.Vertices, res.Backend.Edges))

	if ferr != nil {
		return fmt.Errorf("orchestrator: build: %w", ferr)
	}
	return nil
}
