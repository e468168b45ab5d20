// Package orchestrator sequences a py2graph run: optional purge, optional
// diff application, the frontends, the call-graph pass and the backend.
package orchestrator

import (
	"time"

	"github.com/dusk-indust/py2graph/internal/backend"
	"github.com/dusk-indust/py2graph/internal/diff"
)

// Phase identifies a step of a run.
type Phase int

const (
	PhasePurge Phase = iota
	PhaseDiff
	PhaseCFG
	PhaseDFG
	PhaseCallGraph
	PhaseBackend
)

func (p Phase) String() string {
	names := [...]string{
		"purge",
		"diff",
		"cfg",
		"dfg",
		"callgraph",
		"backend",
	}
	if int(p) < len(names) {
		return names[p]
	}
	return "unknown"
}

// ProgressEvent is emitted to the user during a run.
type ProgressEvent struct {
	Phase   Phase
	Status  ProgressStatus
	Message string
	// Elapsed is the time since the run started, stamped on Emit.
	Elapsed time.Duration
}

// ProgressStatus is the state of a phase.
type ProgressStatus string

const (
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
	ProgressSkipped  ProgressStatus = "skipped"
)

// Options holds the per-run settings, usually taken from the command line.
type Options struct {
	// ProjectPath is the root of the Python source tree.
	ProjectPath string

	// Diff limits the run to the files it invalidates. Nil rebuilds all.
	Diff *diff.CommitDiff

	// CalcWorkers is the worker count of each frontend. Zero sizes it from
	// the file count.
	CalcWorkers int

	// IOWorkers caps the backend worker count. Zero means the CPU count.
	IOWorkers int

	// VertexBatch and EdgeBatch are the backend bulk sizes.
	VertexBatch int
	EdgeBatch   int

	// RetryDelay is the pause between edge batch attempts. Zero means
	// backend.DefaultRetryDelay.
	RetryDelay time.Duration

	// Force drops the store and clears the cache first. Ignored with Diff.
	Force bool

	// Build runs the analysis. Without it a run only purges or applies
	// the diff.
	Build bool
}

// Result summarizes a run.
type Result struct {
	RunID string
	// Files is the number of files analyzed; Failed of them could not be.
	Files  int
	Failed int
	// Readd lists the files a diff invalidated, nil for full builds.
	Readd     []string
	CallPairs int
	Backend   backend.Stats
	Duration  time.Duration
}
