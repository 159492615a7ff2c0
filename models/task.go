package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the status of a queued refresh
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskKind is what a refresh task does
type TaskKind string

const (
	TaskRefreshItem TaskKind = "refresh_item"
	TaskRefreshAll  TaskKind = "refresh_all"
)

// RefreshSummary counts outcomes of a refresh run
type RefreshSummary struct {
	Items     int            `json:"items"`
	Sites     int            `json:"sites"`
	Updated   int            `json:"updated"`
	Rejected  int            `json:"rejected"`
	Failed    int            `json:"failed"`
	ByKind    map[string]int `json:"byKind,omitempty"`
	StartedAt time.Time      `json:"startedAt"`
	Duration  string         `json:"duration"`
}

// Count records one site outcome
func (s *RefreshSummary) Count(kind ErrorKind) {
	if s.ByKind == nil {
		s.ByKind = make(map[string]int)
	}
	s.ByKind[string(kind)]++
}

// Merge adds another summary into s
func (s *RefreshSummary) Merge(o RefreshSummary) {
	s.Items += o.Items
	s.Sites += o.Sites
	s.Updated += o.Updated
	s.Rejected += o.Rejected
	s.Failed += o.Failed
	for k, v := range o.ByKind {
		if s.ByKind == nil {
			s.ByKind = make(map[string]int)
		}
		s.ByKind[k] += v
	}
}

// UpdateTask represents a queued refresh
type UpdateTask struct {
	ID          string          `json:"id"`
	Kind        TaskKind        `json:"kind"`
	ItemID      string          `json:"itemId,omitempty"`
	Status      TaskStatus      `json:"status"`
	Message     string          `json:"message"`
	Summary     *RefreshSummary `json:"summary,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// NewUpdateTask creates a queued task
func NewUpdateTask(kind TaskKind, itemID string) *UpdateTask {
	return &UpdateTask{
		ID:        "task_" + uuid.NewString(),
		Kind:      kind,
		ItemID:    itemID,
		Status:    TaskStatusQueued,
		Message:   "queued",
		CreatedAt: time.Now(),
	}
}

// Start marks the task as processing
func (t *UpdateTask) Start() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.Message = "refreshing"
	t.StartedAt = &now
}

// Complete marks the task as completed with its summary
func (t *UpdateTask) Complete(summary RefreshSummary) {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.Message = "refresh completed"
	t.Summary = &summary
	t.CompletedAt = &now
}

// Fail marks the task as failed
func (t *UpdateTask) Fail(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.Message = "refresh failed"
	t.Error = err
	t.CompletedAt = &now
}

// IsCompleted returns true if the task is in a final state
func (t *UpdateTask) IsCompleted() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// IsActive returns true if the task is queued or running
func (t *UpdateTask) IsActive() bool {
	return t.Status == TaskStatusQueued || t.Status == TaskStatusProcessing
}

// Duration returns how long the task has been running or ran
func (t *UpdateTask) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}
