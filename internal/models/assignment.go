package models

import "time"

// Course is a course the caller is enrolled in as an active student.
type Course struct {
	ID            int64  // Canvas course id
	Name          string // Display name, used as the monitoring and list-mapping key
	WorkflowState string // "available" for published courses
}

// Assignment is a gradable work item read from the assignment source.
// Adapters validate remote payloads before building one; absent remote fields
// are represented by zero values, except DueAt which is nil when there is no due date.
type Assignment struct {
	ID              int64      // Source-scoped, stable identifier
	Title           string     // Assignment name
	DueAt           *time.Time // Nil means the assignment is never synced
	Description     string     // Rich-text (HTML) body, may be empty
	HTMLURL         string     // Permalink to the assignment page
	CourseName      string     // Owning course
	SubmissionTypes []string   // e.g. "online_upload", "none"
	Submitted       bool       // True once the caller has submitted
}

// HasDueDate reports whether the assignment carries a due timestamp.
func (a Assignment) HasDueDate() bool {
	return a.DueAt != nil && !a.DueAt.IsZero()
}
