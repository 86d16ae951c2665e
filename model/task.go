package model

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a DownloadTask.
type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusProcessing  TaskStatus = "processing"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
)

// Field caps, applied by truncation.
const (
	MaxURLLength      = 500
	MaxTitleLength    = 300
	MaxUploaderLength = 200
	MaxErrorLength    = 1000
)

// Progress checkpoints on the normalized 0-100 scale.
const (
	ProgressDownloadCeiling = 80
	ProgressProcessing      = 85
	ProgressCompleted       = 100
)

// transitions lists the forward edges of the task state machine.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:     {TaskStatusDownloading, TaskStatusFailed},
	TaskStatusDownloading: {TaskStatusProcessing, TaskStatusFailed},
	TaskStatusProcessing:  {TaskStatusCompleted, TaskStatusFailed},
}

// String returns the string representation of TaskStatus
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal returns true for completed and failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// IsActive returns true while the task is still being worked on.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusPending || s == TaskStatusDownloading || s == TaskStatusProcessing
}

// CanTransitionTo reports whether next is a legal edge from s.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DownloadTask tracks one submitted URL's extraction lifecycle.
type DownloadTask struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	URL          string     `json:"url" gorm:"size:500;not null"`
	Status       TaskStatus `json:"status" gorm:"size:20;not null;default:'pending';index"`
	Title        string     `json:"title" gorm:"size:300"`
	Uploader     string     `json:"uploader" gorm:"size:200"`
	Filename     string     `json:"filename" gorm:"size:500"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	Progress     int        `json:"progress" gorm:"not null;default:0"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// TableName pins the table name used by gorm.
func (DownloadTask) TableName() string {
	return "download_tasks"
}

// NewDownloadTask creates a pending task for url.
func NewDownloadTask(id, url string, now time.Time) *DownloadTask {
	return &DownloadTask{
		ID:        id,
		URL:       url,
		Status:    TaskStatusPending,
		CreatedAt: now,
	}
}

// Clone returns a copy that shares no pointers with t.
func (t *DownloadTask) Clone() *DownloadTask {
	cp := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// Transition moves the task to next, rejecting edges the state machine does not have.
func (t *DownloadTask) Transition(next TaskStatus) error {
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal task transition %s -> %s", t.Status, next)
	}
	t.Status = next
	return nil
}

// SetProgress raises progress to p. Values below the current progress are
// ignored, and 100 is reserved for Complete.
func (t *DownloadTask) SetProgress(p int) bool {
	if p < 0 {
		p = 0
	}
	if p >= ProgressCompleted {
		p = ProgressCompleted - 1
	}
	if p <= t.Progress {
		return false
	}
	t.Progress = p
	return true
}

// Complete records success. The task must be processing.
func (t *DownloadTask) Complete(title, uploader, filename string, now time.Time) error {
	if filename == "" {
		return fmt.Errorf("complete task %s: empty filename", t.ID)
	}
	if err := t.Transition(TaskStatusCompleted); err != nil {
		return err
	}
	t.Title = Truncate(title, MaxTitleLength)
	t.Uploader = Truncate(uploader, MaxUploaderLength)
	t.Filename = filename
	t.Progress = ProgressCompleted
	t.CompletedAt = &now
	return nil
}

// Fail records a terminal failure. Failing an already terminal task is a no-op
// that returns false.
func (t *DownloadTask) Fail(message string) bool {
	if t.Status.IsTerminal() {
		return false
	}
	if message == "" {
		message = "unknown error"
	}
	t.Status = TaskStatusFailed
	t.ErrorMessage = Truncate(message, MaxErrorLength)
	return true
}

// Truncate caps s at max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
