package pipeline

import (
	"context"

	"go.uber.org/zap"

	"resume-aggregator/internal/core"
)

type dedupeStep struct{}

// NewDedupe drops repeated identities, keeping the first occurrence.
func NewDedupe() Step { return dedupeStep{} }

func (dedupeStep) Name() string { return "dedupe" }

func (dedupeStep) Apply(_ context.Context, _ Deps, items []Result) ([]Result, Stats, error) {
	initial := len(items)
	seen := make(map[core.Ref]struct{}, initial)
	kept := items[:0]
	for _, item := range items {
		ref := item.Resume.Ref()
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		kept = append(kept, item)
	}

	return kept, Stats{Initial: initial, Dropped: initial - len(kept), Left: len(kept)}, nil
}

type scoreStep struct{}

// NewScore attaches an AI match assessment to every item. Scoring failures
// surface as the scorer's fallback, never as a step error.
func NewScore() Step { return scoreStep{} }

func (scoreStep) Name() string { return "score" }

func (scoreStep) Apply(ctx context.Context, deps Deps, items []Result) ([]Result, Stats, error) {
	initial := len(items)
	if deps.Scorer == nil {
		return items, Stats{Initial: initial, Left: initial}, nil
	}

	for i := range items {
		score := deps.Scorer.Evaluate(ctx, items[i].Resume.ExperienceText(), deps.Description)
		items[i].Percent = score.Percent
		items[i].Explanation = score.Explanation

		deps.Logger.Debug("scored resume",
			zap.String("ref", items[i].Resume.Ref().String()),
			zap.Float64("percent", score.Percent),
		)
	}

	return items, Stats{Initial: initial, Left: initial}, nil
}

type minScoreStep struct {
	threshold float64
}

// NewMinScore drops items scored below the threshold. A zero threshold
// keeps everything.
func NewMinScore(threshold float64) Step { return minScoreStep{threshold: threshold} }

func (minScoreStep) Name() string { return "min_score" }

func (s minScoreStep) Apply(_ context.Context, deps Deps, items []Result) ([]Result, Stats, error) {
	initial := len(items)
	if s.threshold <= 0 {
		return items, Stats{Initial: initial, Left: initial}, nil
	}

	kept := items[:0]
	for _, item := range items {
		if item.Percent < s.threshold {
			deps.Logger.Info("resume rejected by score threshold",
				zap.String("ref", item.Resume.Ref().String()),
				zap.Float64("percent", item.Percent),
				zap.Float64("threshold", s.threshold),
			)
			continue
		}
		kept = append(kept, item)
	}

	return kept, Stats{Initial: initial, Dropped: initial - len(kept), Left: len(kept)}, nil
}
