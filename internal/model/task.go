package model

import "time"

// Task is a checklist item derived from a task marker in a node's content.
// As with cards, the primary key is the inline anchor.
type Task struct {
	ID        string `gorm:"primaryKey;uuid;not null" json:"id"`
	NodeID    string `gorm:"uuid;not null;index:idx_tasks_node_id" json:"node_id"`
	Module    string `gorm:"not null;index:idx_tasks_module" json:"module"`
	Body      string `gorm:"not null" json:"body"`
	Done      bool   `gorm:"not null;default:false" json:"done"`
	Assignee  string     `json:"assignee,omitempty"`
	DueAt     *time.Time `json:"due_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (t *Task) TableName() string {
	return "tasks"
}

// TaskStats is an aggregate view over a set of tasks.
type TaskStats struct {
	Total   int64 `json:"total"`
	Done    int64 `json:"done"`
	Overdue int64 `json:"overdue"`
}
