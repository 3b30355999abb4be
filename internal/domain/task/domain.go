package task

import (
	"errors"
	"time"
)

type Status string

const (
	StatusTodo       Status = "Todo"
	StatusInProgress Status = "In Progress"
	StatusDone       Status = "Done"
)

func (s Status) Valid() bool {
	return s == StatusTodo || s == StatusInProgress || s == StatusDone
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

var (
	ErrNotFound = errors.New("task not found")
	ErrInvalid  = errors.New("invalid task")
	// ErrConflict reports that the stored status or assignee no longer
	// matches the state an update was computed from.
	ErrConflict = errors.New("task changed concurrently")
)

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	AssignedTo  *string    `json:"assignedTo,omitempty"`
	Project     *string    `json:"project,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Mutation describes the outcome of a create or update, as seen by whoever
// reacts to task changes.
type Mutation struct {
	ID           string
	TaskID       string
	Title        string
	Project      *string
	Created      bool
	PrevAssignee *string
	NextAssignee *string
	PrevStatus   Status
	NextStatus   Status
	Creator      string
}

func CreatedMutation(id string, t *Task) Mutation {
	return Mutation{
		ID:           id,
		TaskID:       t.ID,
		Title:        t.Title,
		Project:      t.Project,
		Created:      true,
		NextAssignee: t.AssignedTo,
		NextStatus:   t.Status,
		Creator:      t.CreatedBy,
	}
}

func UpdatedMutation(id string, prev, next *Task) Mutation {
	return Mutation{
		ID:           id,
		TaskID:       next.ID,
		Title:        next.Title,
		Project:      next.Project,
		PrevAssignee: prev.AssignedTo,
		NextAssignee: next.AssignedTo,
		PrevStatus:   prev.Status,
		NextStatus:   next.Status,
		Creator:      next.CreatedBy,
	}
}

// Due is a task whose deadline falls inside the reminder window.
type Due struct {
	TaskID   string
	Title    string
	Project  *string
	Assignee string
	Deadline time.Time
}
