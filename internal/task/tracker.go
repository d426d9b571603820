// Package task tracks multi-page fetches through opaque handles stored in
// the shared key-value store. Task keys live under their own prefix with a
// multi-day TTL, fully separate from the seconds-scale response cache.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resume-aggregator/internal/core"
	"resume-aggregator/internal/kv"
)

const (
	keyPrefix  = "task:"
	DefaultTTL = 7 * 24 * time.Hour
)

// ErrNotFound means the handle expired or never existed. Callers must treat
// the two cases identically; a task that failed during processing is still
// readable with status failed until its TTL elapses.
var ErrNotFound = errors.New("task: not found")

type record struct {
	ResumeIDs   []string `json:"resume_ids"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Progress    int      `json:"progress"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// Tracker creates and mutates task records.
type Tracker struct {
	store  kv.Store
	ttl    time.Duration
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewTracker(store kv.Store, ttl time.Duration, logger *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Create registers a new task and returns its handle. The description is the
// vacancy text later fed to the match scorer.
func (t *Tracker) Create(ctx context.Context, description string) (string, error) {
	id := t.newID()
	rec := record{
		ResumeIDs:   []string{},
		Description: description,
		Status:      string(core.TaskCreated),
		CreatedAt:   t.now().UTC().Format(time.RFC3339),
	}

	if err := t.write(ctx, id, &rec); err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}

	t.logger.Info("created task",
		zap.String("task_id", id),
		zap.Int("description_length", len(description)),
	)
	return id, nil
}

// UpdateRefs replaces the task's resume id list. Terminal tasks are left
// untouched.
func (t *Tracker) UpdateRefs(ctx context.Context, id string, refs []core.Ref) error {
	rec, err := t.read(ctx, id)
	if err != nil {
		return err
	}
	if core.TaskStatus(rec.Status).Terminal() {
		t.logger.Warn("ignoring ref update for terminal task", zap.String("task_id", id))
		return nil
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.String())
	}
	rec.ResumeIDs = ids
	rec.UpdatedAt = t.now().UTC().Format(time.RFC3339)

	return t.write(ctx, id, rec)
}

// UpdateProgress sets progress and status. Once a task is terminal further
// updates are dropped, keeping the id list and status immutable.
func (t *Tracker) UpdateProgress(ctx context.Context, id string, progress int, status core.TaskStatus) error {
	rec, err := t.read(ctx, id)
	if err != nil {
		return err
	}
	if core.TaskStatus(rec.Status).Terminal() {
		t.logger.Warn("ignoring progress update for terminal task",
			zap.String("task_id", id),
			zap.String("status", rec.Status),
		)
		return nil
	}

	rec.Progress = progress
	rec.Status = string(status)
	rec.UpdatedAt = t.now().UTC().Format(time.RFC3339)

	return t.write(ctx, id, rec)
}

// Get reads a task. ErrNotFound covers both an expired and a never-created
// handle.
func (t *Tracker) Get(ctx context.Context, id string) (*core.Task, error) {
	rec, err := t.read(ctx, id)
	if err != nil {
		return nil, err
	}

	refs := make([]core.Ref, 0, len(rec.ResumeIDs))
	for _, raw := range rec.ResumeIDs {
		refs = append(refs, core.ParseRef(raw))
	}

	result := &core.Task{
		ID:          id,
		Refs:        refs,
		Description: rec.Description,
		Status:      core.TaskStatus(rec.Status),
		Progress:    rec.Progress,
	}
	if created, err := time.Parse(time.RFC3339, rec.CreatedAt); err == nil {
		result.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339, rec.UpdatedAt); err == nil {
		result.UpdatedAt = updated
	}
	return result, nil
}

func (t *Tracker) read(ctx context.Context, id string) (*record, error) {
	data, err := t.store.Get(ctx, keyPrefix+id)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading task %s: %w", id, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return &rec, nil
}

func (t *Tracker) write(ctx context.Context, id string, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding task %s: %w", id, err)
	}
	return t.store.SetWithTTL(ctx, keyPrefix+id, data, t.ttl)
}
