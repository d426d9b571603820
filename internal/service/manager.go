// Package service is the facade the outer surfaces call into. It owns task
// lifecycle, result resolution through the entity store, and the
// post-resolution pipeline.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"resume-aggregator/internal/ai"
	"resume-aggregator/internal/core"
	"resume-aggregator/internal/logger"
	"resume-aggregator/internal/pipeline"
	"resume-aggregator/internal/provider"
	"resume-aggregator/internal/search"
	"resume-aggregator/internal/store"
	"resume-aggregator/internal/task"
)

const defaultPageLimit = 20

// providerOrder fixes the merge order across providers.
var providerOrder = []core.Provider{core.ProviderHH, core.ProviderAvito}

// ErrTaskNotFound mirrors the tracker's miss: the handle expired or never
// existed.
var ErrTaskNotFound = task.ErrNotFound

// TaskItems is one page of resolved, scored results. Found counts the whole
// task, not the page.
type TaskItems struct {
	Found int
	Items []pipeline.Result
}

type Manager struct {
	logger   *zap.Logger
	clients  map[core.Provider]provider.Client
	engine   *search.Engine
	tracker  *task.Tracker
	store    store.Store
	scorer   ai.Scorer
	minScore float64
}

func New(clients map[core.Provider]provider.Client, tracker *task.Tracker, entities store.Store, scorer ai.Scorer, minScore float64, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	searchers := make(map[core.Provider]provider.Searcher, len(clients))
	for p, c := range clients {
		searchers[p] = c
	}

	return &Manager{
		logger:   log,
		clients:  clients,
		engine:   search.New(searchers, log),
		tracker:  tracker,
		store:    entities,
		scorer:   scorer,
		minScore: minScore,
	}
}

// SearchResumes runs a synchronous multi-provider search under a fresh task
// handle. The handle is returned even when the search fails, so the caller
// can still read the failed state.
func (m *Manager) SearchResumes(ctx context.Context, providers []core.Provider, filters *provider.SearchFilters, description string) (string, error) {
	handle, err := m.tracker.Create(ctx, description)
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}

	if err := m.tracker.UpdateProgress(ctx, handle, 0, core.TaskInProgress); err != nil {
		m.logger.Warn("could not mark task in progress", zap.String("task_id", handle), zap.Error(err))
	}

	resumes, err := m.engine.Search(ctx, providers, filters)
	if err != nil {
		m.failTask(ctx, handle, err)
		return handle, err
	}

	refs := make([]core.Ref, 0, len(resumes))
	for _, r := range resumes {
		if r.ID == "" {
			continue
		}
		refs = append(refs, r.Ref())
	}

	if err := m.tracker.UpdateRefs(ctx, handle, refs); err != nil {
		m.failTask(ctx, handle, err)
		return handle, err
	}
	if err := m.tracker.UpdateProgress(ctx, handle, 100, core.TaskCompleted); err != nil {
		return handle, err
	}

	m.logger.Info("search task completed",
		zap.String("task_id", handle),
		zap.Int("resumes", len(refs)),
	)
	return handle, nil
}

// GetTaskItems resolves one page of a task's resumes. Resolution prefers
// the entity store; misses fall back to the owning provider and are written
// through. Resumes the provider no longer has are skipped, not fatal.
func (m *Manager) GetTaskItems(ctx context.Context, handle string, offset, limit int) (*TaskItems, error) {
	t, err := m.tracker.Get(ctx, handle)
	if err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}

	found := len(t.Refs)
	if offset >= found {
		return &TaskItems{Found: found}, nil
	}
	end := min(offset+limit, found)

	var resumes []core.Resume
	for _, ref := range t.Refs[offset:end] {
		resume, err := m.resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		if resume == nil {
			m.logger.Warn("resume is gone upstream, skipping", zap.String("ref", ref.String()))
			continue
		}
		resumes = append(resumes, *resume)
	}

	items, err := pipeline.Run(ctx, pipeline.Deps{
		Logger:      m.logger,
		Scorer:      m.scorer,
		Description: t.Description,
	}, []pipeline.Step{
		pipeline.NewDedupe(),
		pipeline.NewScore(),
		pipeline.NewMinScore(m.minScore),
	}, pipeline.Wrap(resumes))
	if err != nil {
		return nil, err
	}

	return &TaskItems{Found: found, Items: items}, nil
}

// resolve fetches one resume, entity store first. Provider results are
// written through with first-write-wins semantics; a nil result means the
// entity no longer exists anywhere.
func (m *Manager) resolve(ctx context.Context, ref core.Ref) (*core.Resume, error) {
	if resume, err := m.store.Get(ctx, ref); err != nil {
		m.logger.Warn("entity store read failed", zap.String("ref", ref.String()), zap.Error(err))
	} else if resume != nil {
		return resume, nil
	}

	client, ok := m.clients[ref.Provider]
	if !ok {
		m.logger.Warn("no client for stored ref", zap.String("ref", ref.String()))
		return nil, nil
	}

	resume, err := client.GetResume(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", ref, err)
	}
	if resume == nil {
		return nil, nil
	}

	if err := m.store.Put(ctx, resume); err != nil {
		m.logger.Warn("entity store write failed", zap.String("ref", ref.String()), zap.Error(err))
	}
	return resume, nil
}

// StartVacanciesTask kicks off a background listing of the company's
// vacancies under a task handle; the vacancy ids land in the ref list.
func (m *Manager) StartVacanciesTask(ctx context.Context) (string, error) {
	handle, err := m.tracker.Create(ctx, "company vacancies")
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}

	go m.runBackground(handle, func(ctx context.Context) ([]core.Ref, error) {
		vacancies, err := m.GetVacancies(ctx)
		if err != nil {
			return nil, err
		}
		refs := make([]core.Ref, 0, len(vacancies))
		for _, v := range vacancies {
			refs = append(refs, core.Ref{Provider: v.Provider, ID: v.ID})
		}
		return refs, nil
	})

	return handle, nil
}

// StartResponsesTask kicks off a background collection of the unread
// responses for one vacancy; the responding resumes land in the ref list.
func (m *Manager) StartResponsesTask(ctx context.Context, p core.Provider, vacancyID string) (string, error) {
	handle, err := m.tracker.Create(ctx, fmt.Sprintf("responses for vacancy %s", vacancyID))
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}

	go m.runBackground(handle, func(ctx context.Context) ([]core.Ref, error) {
		responses, err := m.GetVacancyResponses(ctx, p, vacancyID)
		if err != nil {
			return nil, err
		}
		var refs []core.Ref
		for _, r := range responses {
			if !r.Unread {
				continue
			}
			refs = append(refs, r.Resume)
		}
		return refs, nil
	})

	return handle, nil
}

// runBackground drives one detached task to a terminal state. Panics are
// contained and fail the task instead of the process.
func (m *Manager) runBackground(handle string, work func(ctx context.Context) ([]core.Ref, error)) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			m.failTask(ctx, handle, fmt.Errorf("background task panicked: %v", r))
		}
	}()

	if err := m.tracker.UpdateProgress(ctx, handle, 0, core.TaskInProgress); err != nil {
		m.logger.Warn("could not mark task in progress", zap.String("task_id", handle), zap.Error(err))
	}

	refs, err := work(ctx)
	if err != nil {
		m.failTask(ctx, handle, err)
		return
	}

	if err := m.tracker.UpdateRefs(ctx, handle, refs); err != nil {
		m.failTask(ctx, handle, err)
		return
	}
	if err := m.tracker.UpdateProgress(ctx, handle, 100, core.TaskCompleted); err != nil {
		m.logger.Warn("could not complete task", zap.String("task_id", handle), zap.Error(err))
	}
}

func (m *Manager) failTask(ctx context.Context, handle string, cause error) {
	m.logger.Error("task failed", zap.String("task_id", handle), zap.Error(cause))
	if err := m.tracker.UpdateProgress(ctx, handle, 0, core.TaskFailed); err != nil {
		m.logger.Warn("could not mark task failed", zap.String("task_id", handle), zap.Error(err))
	}
}

// GetTask reads the raw task state.
func (m *Manager) GetTask(ctx context.Context, handle string) (*core.Task, error) {
	return m.tracker.Get(ctx, handle)
}

// GetVacancies merges the company's vacancies across all configured
// providers in a fixed order.
func (m *Manager) GetVacancies(ctx context.Context) ([]core.Vacancy, error) {
	var merged []core.Vacancy
	for _, p := range providerOrder {
		client, ok := m.clients[p]
		if !ok {
			continue
		}
		vacancies, err := client.Vacancies(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing vacancies on %s: %w", p, err)
		}
		merged = append(merged, vacancies...)
	}
	return merged, nil
}

// GetVacancyResponses lists the responses for one vacancy on one provider.
func (m *Manager) GetVacancyResponses(ctx context.Context, p core.Provider, vacancyID string) ([]core.Response, error) {
	client, ok := m.clients[p]
	if !ok {
		return nil, provider.Validationf("unknown provider %q", p)
	}
	return client.VacancyResponses(ctx, vacancyID)
}

// MarkResponsesRead flags responses as seen upstream and reports whether
// the whole batch went through.
func (m *Manager) MarkResponsesRead(ctx context.Context, p core.Provider, vacancyID string, responseIDs []string) bool {
	client, ok := m.clients[p]
	if !ok {
		m.logger.Warn("unknown provider for mark-read", zap.String(logger.FieldProvider, string(p)))
		return false
	}
	if err := client.MarkResponsesRead(ctx, vacancyID, responseIDs); err != nil {
		m.logger.Error("marking responses read failed",
			zap.String(logger.FieldProvider, string(p)),
			zap.String("vacancy_id", vacancyID),
			zap.Error(err),
		)
		return false
	}
	return true
}
