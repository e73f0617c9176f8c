// Package rules classifies assignments by title keywords.
package rules

import (
	"strings"

	"canvassync/internal/config"
	"canvassync/internal/models"
)

const (
	LabelExam     = "Exam"
	LabelHomework = "Homework"

	fallbackLabel = "Coursework"
)

// Classifier maps assignment titles to priorities and labels.
// It is safe for concurrent use and never mutated after New.
type Classifier struct {
	high, low       []string
	defaultPriority models.Priority

	exam, homework []string
	defaultLabels  []string
}

// New builds a Classifier from the configured keyword tiers. Keywords are
// matched case-insensitively.
func New(p config.Priorities, t config.Tags) *Classifier {
	c := &Classifier{
		high:            lower(p.HighKeywords),
		low:             lower(p.LowKeywords),
		defaultPriority: models.PriorityMedium,
		exam:            lower(t.ExamKeywords),
		homework:        lower(t.HomeworkKeywords),
		defaultLabels:   []string{fallbackLabel},
	}
	if p.Default != nil {
		c.defaultPriority = *p.Default
	}
	if t.Default != nil {
		c.defaultLabels = append([]string{}, t.Default...)
	}
	return c
}

// Priority returns the high tier if any high keyword occurs in title, else the
// low tier if any low keyword occurs, else the default.
func (c *Classifier) Priority(title string) models.Priority {
	title = strings.ToLower(title)
	if containsAny(title, c.high) {
		return models.PriorityHigh
	}
	if containsAny(title, c.low) {
		return models.PriorityLow
	}
	return c.defaultPriority
}

// Labels returns Exam and/or Homework for matching titles, or a copy of the
// default labels when neither matched.
func (c *Classifier) Labels(title string) []string {
	title = strings.ToLower(title)
	var labels []string
	if containsAny(title, c.exam) {
		labels = append(labels, LabelExam)
	}
	if containsAny(title, c.homework) {
		labels = append(labels, LabelHomework)
	}
	if len(labels) == 0 {
		return append([]string{}, c.defaultLabels...)
	}
	return labels
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lower(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		out = append(out, strings.ToLower(kw))
	}
	return out
}
