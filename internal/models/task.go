package models

import "github.com/google/uuid"

// Task is a single to-do item. The owner is implied by the key it is
// stored under and never serialized.
type Task struct {
	Id        uuid.UUID `json:"id"`
	Category  string    `json:"category"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Due       *int64    `json:"due"` // unix seconds
}

type NewTask struct {
	Category  string
	Text      string
	Completed bool
	Due       *int64
}

// TaskPatch is a merge-patch: nil fields keep the stored value.
type TaskPatch struct {
	Category  *string
	Text      *string
	Completed *bool
	Due       *int64
}

func (p TaskPatch) Apply(task Task) Task {
	if p.Category != nil {
		task.Category = *p.Category
	}
	if p.Text != nil {
		task.Text = *p.Text
	}
	if p.Completed != nil {
		task.Completed = *p.Completed
	}
	if p.Due != nil {
		due := *p.Due
		task.Due = &due
	}
	return task
}
