package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"resume-aggregator/internal/ai"
	"resume-aggregator/internal/core"
	"resume-aggregator/internal/kv"
	"resume-aggregator/internal/provider"
	"resume-aggregator/internal/task"
)

type stubClient struct {
	name      core.Provider
	search    []core.Resume
	searchErr error

	details    map[string]*core.Resume
	detailErr  error
	getCalls   []string
	vacancies  []core.Vacancy
	responses  []core.Response
	markReadOK bool
	markedIDs  []string
}

func (s *stubClient) Name() core.Provider { return s.name }

func (s *stubClient) SearchResumes(_ context.Context, _ *provider.SearchFilters) ([]core.Resume, error) {
	return s.search, s.searchErr
}

func (s *stubClient) GetResume(_ context.Context, id string) (*core.Resume, error) {
	s.getCalls = append(s.getCalls, id)
	if s.detailErr != nil {
		return nil, s.detailErr
	}
	return s.details[id], nil
}

func (s *stubClient) Vacancies(_ context.Context) ([]core.Vacancy, error) {
	return s.vacancies, nil
}

func (s *stubClient) VacancyResponses(_ context.Context, _ string) ([]core.Response, error) {
	return s.responses, nil
}

func (s *stubClient) MarkResponsesRead(_ context.Context, _ string, ids []string) error {
	s.markedIDs = ids
	if !s.markReadOK {
		return errors.New("upstream rejected")
	}
	return nil
}

// memStore is an in-memory first-write-wins entity store.
type memStore struct {
	entries map[core.Ref]*core.Resume
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[core.Ref]*core.Resume)}
}

func (s *memStore) Get(_ context.Context, ref core.Ref) (*core.Resume, error) {
	return s.entries[ref], nil
}

func (s *memStore) Exists(_ context.Context, ref core.Ref) (bool, error) {
	_, ok := s.entries[ref]
	return ok, nil
}

func (s *memStore) Put(_ context.Context, r *core.Resume) error {
	ref := r.Ref()
	if _, ok := s.entries[ref]; ok {
		return nil
	}
	copied := *r
	s.entries[ref] = &copied
	return nil
}

type fixedScorer struct{ score ai.Score }

func (s fixedScorer) Evaluate(_ context.Context, _, _ string) ai.Score { return s.score }

func newManager(t *testing.T, clients map[core.Provider]provider.Client, entities *memStore, scorer ai.Scorer, minScore float64) (*Manager, *task.Tracker) {
	t.Helper()
	tracker := task.NewTracker(kv.NewMemory(), time.Hour, zap.NewNop())
	return New(clients, tracker, entities, scorer, minScore, zap.NewNop()), tracker
}

func resume(p core.Provider, id, experience string) core.Resume {
	return core.Resume{
		Provider:   p,
		ID:         id,
		Title:      "Cook",
		Experience: []core.ExperienceEntry{{Description: experience}},
		ReceivedAt: time.Now().UTC(),
	}
}

func TestSearchResumesCompletesTask(t *testing.T) {
	hh := &stubClient{name: core.ProviderHH, search: []core.Resume{
		resume(core.ProviderHH, "1", "grill"),
		resume(core.ProviderHH, "2", "prep"),
	}}

	m, _ := newManager(t, map[core.Provider]provider.Client{core.ProviderHH: hh}, newMemStore(), nil, 0)

	handle, err := m.SearchResumes(context.Background(), nil, &provider.SearchFilters{Keywords: "cook", Total: 10}, "cook wanted")
	if err != nil {
		t.Fatalf("SearchResumes: %v", err)
	}

	got, err := m.GetTask(context.Background(), handle)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != core.TaskCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if len(got.Refs) != 2 {
		t.Fatalf("refs = %d, want 2", len(got.Refs))
	}
	if got.Description != "cook wanted" {
		t.Fatalf("description = %q", got.Description)
	}
}

func TestSearchFailureMarksTaskFailedButReturnsHandle(t *testing.T) {
	hh := &stubClient{name: core.ProviderHH, searchErr: errors.New("upstream down")}

	m, _ := newManager(t, map[core.Provider]provider.Client{core.ProviderHH: hh}, newMemStore(), nil, 0)

	handle, err := m.SearchResumes(context.Background(), nil, &provider.SearchFilters{Keywords: "cook", Total: 10}, "")
	if err == nil {
		t.Fatal("want the search error surfaced")
	}
	if handle == "" {
		t.Fatal("want a readable handle even for a failed search")
	}

	got, err := m.GetTask(context.Background(), handle)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != core.TaskFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestGetTaskItemsResolvesStoreFirst(t *testing.T) {
	stored := resume(core.ProviderHH, "1", "stored experience")
	entities := newMemStore()
	entities.entries[stored.Ref()] = &stored

	hh := &stubClient{name: core.ProviderHH, details: map[string]*core.Resume{
		"2": {Provider: core.ProviderHH, ID: "2", Title: "Cook"},
	}}

	m, tracker := newManager(t, map[core.Provider]provider.Client{core.ProviderHH: hh}, entities, nil, 0)

	handle, _ := tracker.Create(context.Background(), "cook")
	tracker.UpdateRefs(context.Background(), handle, []core.Ref{
		{Provider: core.ProviderHH, ID: "1"},
		{Provider: core.ProviderHH, ID: "2"},
	})

	page, err := m.GetTaskItems(context.Background(), handle, 0, 10)
	if err != nil {
		t.Fatalf("GetTaskItems: %v", err)
	}

	if page.Found != 2 {
		t.Fatalf("found = %d, want 2", page.Found)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}

	// the stored resume must not hit the provider; the miss must be
	// written through
	if len(hh.getCalls) != 1 || hh.getCalls[0] != "2" {
		t.Fatalf("provider calls = %v, want only [2]", hh.getCalls)
	}
	if _, ok := entities.entries[core.Ref{Provider: core.ProviderHH, ID: "2"}]; !ok {
		t.Fatal("resolved resume was not written through to the store")
	}
}

func TestGetTaskItemsSkipsGoneResumes(t *testing.T) {
	hh := &stubClient{name: core.ProviderHH, details: map[string]*core.Resume{
		"2": {Provider: core.ProviderHH, ID: "2"},
	}}

	m, tracker := newManager(t, map[core.Provider]provider.Client{core.ProviderHH: hh}, newMemStore(), nil, 0)

	handle, _ := tracker.Create(context.Background(), "")
	tracker.UpdateRefs(context.Background(), handle, []core.Ref{
		{Provider: core.ProviderHH, ID: "gone"},
		{Provider: core.ProviderHH, ID: "2"},
	})

	page, err := m.GetTaskItems(context.Background(), handle, 0, 10)
	if err != nil {
		t.Fatalf("GetTaskItems: %v", err)
	}

	if page.Found != 2 {
		t.Fatalf("found = %d, want the full ref count", page.Found)
	}
	if len(page.Items) != 1 {
		t.Fatalf("items = %d, want the one resolvable resume", len(page.Items))
	}
}

func TestGetTaskItemsPaginates(t *testing.T) {
	details := make(map[string]*core.Resume)
	refs := make([]core.Ref, 0, 5)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		r := resume(core.ProviderHH, id, "exp")
		details[id] = &r
		refs = append(refs, r.Ref())
	}
	hh := &stubClient{name: core.ProviderHH, details: details}

	m, tracker := newManager(t, map[core.Provider]provider.Client{core.ProviderHH: hh}, newMemStore(), nil, 0)

	handle, _ := tracker.Create(context.Background(), "")
	tracker.UpdateRefs(context.Background(), handle, refs)

	page, err := m.GetTaskItems(context.Background(), handle, 2, 2)
	if err != nil {
		t.Fatalf("GetTaskItems: %v", err)
	}

	if page.Found != 5 {
		t.Fatalf("found = %d, want 5", page.Found)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	if page.Items[0].Resume.ID != "3" || page.Items[1].Resume.ID != "4" {
		t.Fatalf("page = %s, %s; want 3, 4", page.Items[0].Resume.ID, page.Items[1].Resume.ID)
	}

	// offset past the end is an empty page, not an error
	empty, err := m.GetTaskItems(context.Background(), handle, 10, 2)
	if err != nil {
		t.Fatalf("GetTaskItems past end: %v", err)
	}
	if len(empty.Items) != 0 || empty.Found != 5 {
		t.Fatalf("past-end page = %+v", empty)
	}
}

func TestGetTaskItemsUnknownHandle(t *testing.T) {
	m, _ := newManager(t, nil, newMemStore(), nil, 0)

	_, err := m.GetTaskItems(context.Background(), "never-existed", 0, 10)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("got %v, want ErrTaskNotFound", err)
	}
}

func TestGetTaskItemsAppliesScoreThreshold(t *testing.T) {
	r := resume(core.ProviderHH, "1", "weak fit")
	hh := &stubClient{name: core.ProviderHH, details: map[string]*core.Resume{"1": &r}}

	m, tracker := newManager(t,
		map[core.Provider]provider.Client{core.ProviderHH: hh},
		newMemStore(),
		fixedScorer{score: ai.Score{Percent: 30, Explanation: "weak"}},
		50,
	)

	handle, _ := tracker.Create(context.Background(), "cook")
	tracker.UpdateRefs(context.Background(), handle, []core.Ref{r.Ref()})

	page, err := m.GetTaskItems(context.Background(), handle, 0, 10)
	if err != nil {
		t.Fatalf("GetTaskItems: %v", err)
	}
	if page.Found != 1 {
		t.Fatalf("found = %d, want 1", page.Found)
	}
	if len(page.Items) != 0 {
		t.Fatalf("items = %d, want 0 after threshold", len(page.Items))
	}
}

func TestGetVacanciesMergesProviders(t *testing.T) {
	hh := &stubClient{name: core.ProviderHH, vacancies: []core.Vacancy{{Provider: core.ProviderHH, ID: "v1"}}}
	avito := &stubClient{name: core.ProviderAvito, vacancies: []core.Vacancy{{Provider: core.ProviderAvito, ID: "v2"}}}

	m, _ := newManager(t, map[core.Provider]provider.Client{
		core.ProviderHH:    hh,
		core.ProviderAvito: avito,
	}, newMemStore(), nil, 0)

	vacancies, err := m.GetVacancies(context.Background())
	if err != nil {
		t.Fatalf("GetVacancies: %v", err)
	}
	if len(vacancies) != 2 {
		t.Fatalf("got %d vacancies, want 2", len(vacancies))
	}
	if vacancies[0].Provider != core.ProviderHH || vacancies[1].Provider != core.ProviderAvito {
		t.Fatalf("merge order = %s, %s", vacancies[0].Provider, vacancies[1].Provider)
	}
}

func TestMarkResponsesRead(t *testing.T) {
	hh := &stubClient{name: core.ProviderHH, markReadOK: true}

	m, _ := newManager(t, map[core.Provider]provider.Client{core.ProviderHH: hh}, newMemStore(), nil, 0)

	if !m.MarkResponsesRead(context.Background(), core.ProviderHH, "v1", []string{"n1", "n2"}) {
		t.Fatal("want true on success")
	}
	if len(hh.markedIDs) != 2 {
		t.Fatalf("marked %v", hh.markedIDs)
	}

	hh.markReadOK = false
	if m.MarkResponsesRead(context.Background(), core.ProviderHH, "v1", []string{"n3"}) {
		t.Fatal("want false on upstream failure")
	}

	if m.MarkResponsesRead(context.Background(), core.Provider("superjob"), "v1", nil) {
		t.Fatal("want false for an unknown provider")
	}
}
