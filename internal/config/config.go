// Package config loads the sync rule file and the process environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"canvassync/internal/models"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is where the rule file is looked up when no path is given.
	DefaultPath = "config.yaml"

	defaultListKey  = "default"
	fallbackList    = "Coursework"
	fallbackLabel   = "Coursework"
	defaultFileMode = 0644
)

// ErrEmptyKeyword is returned by Validate when a keyword list holds an empty string,
// which would match every title.
var ErrEmptyKeyword = errors.New("keyword must not be empty")

// Config holds the classification and routing rules for a sync run.
// It is loaded once per run and not mutated afterwards.
type Config struct {
	// Course names to sync. Empty means every visible course.
	CoursesToMonitor []string `yaml:"courses_to_monitor"`

	// Course name to task list name. The "default" key is used for unmapped courses.
	ListMappings map[string]string `yaml:"list_mappings"`

	Priorities Priorities `yaml:"priorities"`
	Tags       Tags       `yaml:"tags"`

	// Subtracted from every due date, e.g. 24 to be reminded a day early.
	DueDateOffsetHours float64 `yaml:"due_date_offset_hours"`

	// Name of the folder new lists are created under. Empty disables folders.
	TargetList string `yaml:"target_list"`
}

// Priorities configures priority tiers by title keyword.
type Priorities struct {
	HighKeywords []string `yaml:"high_keywords"`
	LowKeywords  []string `yaml:"low_keywords"`
	// Nil falls back to models.PriorityMedium.
	Default *models.Priority `yaml:"default,omitempty"`
}

// Tags configures labels by title keyword.
type Tags struct {
	ExamKeywords     []string `yaml:"exam_keywords"`
	HomeworkKeywords []string `yaml:"homework_keywords"`
	// Used when no keyword matched. Nil falls back to a single generic label;
	// an explicit empty list means no labels.
	Default []string `yaml:"default"`
}

// DefaultConfig returns the rule set written for first-time users.
func DefaultConfig() *Config {
	medium := models.PriorityMedium
	return &Config{
		CoursesToMonitor: []string{},
		ListMappings: map[string]string{
			defaultListKey: "Other Coursework",
		},
		Priorities: Priorities{
			HighKeywords: []string{"exam", "quiz", "midterm", "final", "project"},
			LowKeywords:  []string{"optional", "extra credit", "reading"},
			Default:      &medium,
		},
		Tags: Tags{
			ExamKeywords:     []string{"exam", "quiz", "midterm", "final"},
			HomeworkKeywords: []string{"hw", "homework", "assignment", "paper"},
			Default:          []string{fallbackLabel},
		},
		DueDateOffsetHours: 0,
		TargetList:         "Coursework",
	}
}

// Load reads the rule file at path. A missing file is created with DefaultConfig
// and the defaults are returned.
func Load(path string, logger *slog.Logger) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logger.Info("Config file not found, writing defaults.", "file", path)
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML rule document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UnmarshalYAML decodes a rule document. Files written by earlier releases use
// ticktick_list_mappings and ticktick_target_list; those keys are honoured when
// the current keys are absent.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	if err := value.Decode((*plain)(c)); err != nil {
		return err
	}

	var legacy struct {
		ListMappings map[string]string `yaml:"ticktick_list_mappings"`
		TargetList   *string           `yaml:"ticktick_target_list"`
	}
	if err := value.Decode(&legacy); err != nil {
		return err
	}
	present := mappingKeys(value)
	if !present["list_mappings"] && legacy.ListMappings != nil {
		c.ListMappings = legacy.ListMappings
	}
	if !present["target_list"] && legacy.TargetList != nil {
		c.TargetList = *legacy.TargetList
	}
	return nil
}

func mappingKeys(node *yaml.Node) map[string]bool {
	keys := make(map[string]bool)
	if node.Kind != yaml.MappingNode {
		return keys
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys[node.Content[i].Value] = true
	}
	return keys
}

// Save writes cfg as YAML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, defaultFileMode); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects rule sets that cannot be applied.
func (c *Config) Validate() error {
	lists := map[string][]string{
		"priorities.high_keywords": c.Priorities.HighKeywords,
		"priorities.low_keywords":  c.Priorities.LowKeywords,
		"tags.exam_keywords":       c.Tags.ExamKeywords,
		"tags.homework_keywords":   c.Tags.HomeworkKeywords,
	}
	for field, keywords := range lists {
		for i, kw := range keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("%s[%d]: %w", field, i, ErrEmptyKeyword)
			}
		}
	}
	return nil
}

// IsCourseMonitored reports whether a course should be synced.
func (c *Config) IsCourseMonitored(courseName string) bool {
	if len(c.CoursesToMonitor) == 0 {
		return true
	}
	for _, name := range c.CoursesToMonitor {
		if name == courseName {
			return true
		}
	}
	return false
}

// ListName returns the task list name a course's assignments are filed into.
func (c *Config) ListName(courseName string) string {
	if name, ok := c.ListMappings[courseName]; ok && name != "" {
		return name
	}
	if name, ok := c.ListMappings[defaultListKey]; ok && name != "" {
		return name
	}
	return fallbackList
}

// DueDateOffset returns the configured due date offset.
func (c *Config) DueDateOffset() time.Duration {
	return time.Duration(c.DueDateOffsetHours * float64(time.Hour))
}
