package core

import "time"

// TaskStatus is the lifecycle state of a tracked fetch.
type TaskStatus string

const (
	TaskCreated    TaskStatus = "created"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status allows no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is an opaque handle for an in-flight or finished multi-page fetch.
// The ref list and status become immutable once the status is terminal; the
// record itself expires from the tracker after its retention window.
type Task struct {
	ID          string
	Refs        []Ref
	Description string
	Status      TaskStatus
	Progress    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
