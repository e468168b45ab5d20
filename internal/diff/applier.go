package diff

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dusk-indust/py2graph/internal/graph"
)

var tracer = otel.Tracer("py2graph.diff")

// Result is the outcome of applying a diff.
type Result struct {
	// Removed lists the files whose vertices were deleted.
	Removed []string
	// Readd lists the files to analyze again.
	Readd []string
}

// Applier invalidates the part of a stored graph touched by a diff.
type Applier struct {
	Store  graph.Store
	Logger *slog.Logger
}

// Plan computes the files to delete and to re-add without touching the
// store. Every listed file is deleted; added and modified files are
// re-added. Removed and modified files also invalidate every file related
// to them in either direction, which is re-added unless the diff removes it.
func Plan(ctx context.Context, t graph.Traverser, d *CommitDiff) (*Result, error) {
	removed := make(map[string]bool, len(d.Removed))
	for _, f := range d.Removed {
		removed[f] = true
	}

	toRemove := map[string]bool{}
	toAdd := map[string]bool{}
	for _, c := range d.Enumerate() {
		toRemove[c.File] = true
		if c.Status == Added {
			toAdd[c.File] = true
			continue
		}
		if c.Status == Modified {
			toAdd[c.File] = true
		}
		related, err := t.RelatedFiles(ctx, c.File)
		if err != nil {
			return nil, fmt.Errorf("diff: related files of %s: %w", c.File, err)
		}
		for _, r := range related {
			toRemove[r] = true
			if !removed[r] {
				toAdd[r] = true
			}
		}
	}
	return &Result{Removed: sortedSet(toRemove), Readd: sortedSet(toAdd)}, nil
}

// Apply deletes every invalidated file from the store and returns the plan.
// It returns graph.ErrNotSupported if the store cannot be traversed; the
// caller should then rebuild everything.
func (a *Applier) Apply(ctx context.Context, d *CommitDiff) (*Result, error) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t, ok := a.Store.(graph.Traverser)
	if !ok {
		return nil, fmt.Errorf("diff: apply: %w", graph.ErrNotSupported)
	}

	ctx, span := tracer.Start(ctx, "diff.Apply")
	defer span.End()

	res, err := Plan(ctx, t, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	for _, f := range res.Removed {
		if err := t.DeleteFile(ctx, f); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("diff: delete %s: %w", f, err)
		}
		logger.Debug("deleted file from graph", "file", f)
	}

	span.SetAttributes(
		attribute.Int("removed", len(res.Removed)),
		attribute.Int("readd", len(res.Readd)),
	)
	logger.Info("applied diff", "removed", len(res.Removed), "readd", len(res.Readd))
	return res, nil
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
