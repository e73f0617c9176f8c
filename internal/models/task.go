package models

import "time"

// Priority is an ordinal task priority on the TickTick scale.
type Priority int

const (
	PriorityNone   Priority = 0
	PriorityLow    Priority = 1
	PriorityMedium Priority = 3
	PriorityHigh   Priority = 5
)

// String returns the lower-case tier name.
func (p Priority) String() string {
	switch {
	case p >= PriorityHigh:
		return "high"
	case p >= PriorityMedium:
		return "medium"
	case p >= PriorityLow:
		return "low"
	default:
		return "none"
	}
}

// Task is a to-do item in the task sink.
type Task struct {
	ID       string
	Title    string
	Body     string // Free text; engine-created tasks embed an identity marker here
	DueAt    time.Time
	ListID   string // Empty means the sink's default list
	Priority Priority
	Labels   []string
}

// TaskList is a sink-side container tasks are filed into.
type TaskList struct {
	ID       string
	Name     string
	FolderID string
}

// Folder groups task lists in sinks that support it.
type Folder struct {
	ID   string
	Name string
}
