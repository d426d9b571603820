// Package search fans one filter set out to the configured providers and
// merges the pages into a single deduplicated result list.
package search

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"resume-aggregator/internal/core"
	"resume-aggregator/internal/logger"
	"resume-aggregator/internal/provider"
)

type Engine struct {
	logger    *zap.Logger
	searchers map[core.Provider]provider.Searcher
}

func New(searchers map[core.Provider]provider.Searcher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{logger: log, searchers: searchers}
}

// Search validates the filters, dispatches to the requested providers, and
// merges their results in provider order. Any provider failure aborts the
// whole invocation; there is no partial success.
func (e *Engine) Search(ctx context.Context, providers []core.Provider, filters *provider.SearchFilters) ([]core.Resume, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		providers = []core.Provider{core.ProviderHH}
	}

	var merged []core.Resume
	for _, p := range providers {
		searcher, ok := e.searchers[p]
		if !ok {
			return nil, provider.Validationf("unknown provider %q", p)
		}

		resumes, err := searcher.SearchResumes(ctx, filters)
		if err != nil {
			return nil, fmt.Errorf("searching on %s: %w", p, err)
		}

		e.logger.Info("provider search finished",
			zap.String(logger.FieldProvider, string(p)),
			zap.Int("items", len(resumes)),
		)
		merged = append(merged, resumes...)
	}

	merged = dedupe(merged)
	if len(merged) > filters.Total {
		merged = merged[:filters.Total]
	}

	return merged, nil
}

// dedupe drops repeated identities, keeping the first occurrence so
// provider order is preserved.
func dedupe(resumes []core.Resume) []core.Resume {
	seen := make(map[core.Ref]struct{}, len(resumes))
	out := resumes[:0]
	for _, r := range resumes {
		ref := r.Ref()
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, r)
	}
	return out
}
