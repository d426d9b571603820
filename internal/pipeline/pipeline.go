// Package pipeline refines resolved resumes before they are handed to the
// caller: dedupe, AI scoring against the task's vacancy description, and
// threshold filtering, each as one accountable step.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"resume-aggregator/internal/ai"
	"resume-aggregator/internal/core"
)

// Result is one resume with its match assessment attached. Percent stays
// zero until the scoring step runs.
type Result struct {
	Resume      core.Resume
	Percent     float64
	Explanation string
}

// Step is a single refinement applied to the working set.
type Step interface {
	Name() string
	Apply(ctx context.Context, deps Deps, items []Result) ([]Result, Stats, error)
}

// Deps aggregates dependencies shared across all steps.
type Deps struct {
	Logger      *zap.Logger
	Scorer      ai.Scorer
	Description string
}

// Stats describes the result of executing one step.
type Stats struct {
	Initial int
	Dropped int
	Left    int
}

// Run executes the steps sequentially. A step failure aborts the run.
func Run(ctx context.Context, deps Deps, steps []Step, items []Result) ([]Result, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	for _, step := range steps {
		next, stats, err := step.Apply(ctx, deps, items)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		deps.Logger.Info("pipeline step",
			zap.String("name", step.Name()),
			zap.Int("initial", stats.Initial),
			zap.Int("dropped", stats.Dropped),
			zap.Int("left", stats.Left),
		)

		items = next
	}

	return items, nil
}

// Wrap lifts plain resumes into unscored results.
func Wrap(resumes []core.Resume) []Result {
	out := make([]Result, 0, len(resumes))
	for _, r := range resumes {
		out = append(out, Result{Resume: r})
	}
	return out
}
