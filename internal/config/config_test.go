package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"canvassync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_WritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	reloaded, err := Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, cfg.Priorities.HighKeywords, reloaded.Priorities.HighKeywords)
	assert.Equal(t, cfg.Tags.Default, reloaded.Tags.Default)
	require.NotNil(t, reloaded.Priorities.Default)
	assert.Equal(t, models.PriorityMedium, *reloaded.Priorities.Default)
	assert.Equal(t, "Other Coursework", reloaded.ListName("Unknown 101"))
}

func TestParse(t *testing.T) {
	doc := `
courses_to_monitor: [CS101, MATH200]
list_mappings:
  CS101: CS Tasks
  default: Misc
priorities:
  high_keywords: [exam]
  low_keywords: [optional]
  default: 1
tags:
  exam_keywords: [exam]
  homework_keywords: [hw]
  default: []
due_date_offset_hours: 1.5
target_list: School
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.True(t, cfg.IsCourseMonitored("CS101"))
	assert.False(t, cfg.IsCourseMonitored("HIST300"))
	assert.Equal(t, "CS Tasks", cfg.ListName("CS101"))
	assert.Equal(t, "Misc", cfg.ListName("MATH200"))
	require.NotNil(t, cfg.Priorities.Default)
	assert.Equal(t, models.PriorityLow, *cfg.Priorities.Default)
	assert.NotNil(t, cfg.Tags.Default)
	assert.Empty(t, cfg.Tags.Default)
	assert.Equal(t, 90*time.Minute, cfg.DueDateOffset())
	assert.Equal(t, "School", cfg.TargetList)
}

func TestParse_LegacyKeys(t *testing.T) {
	doc := `
ticktick_list_mappings:
  CS101: CS Tasks
  default: Other Coursework
ticktick_target_list: School
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "CS Tasks", cfg.ListName("CS101"))
	assert.Equal(t, "Other Coursework", cfg.ListName("MATH200"))
	assert.Equal(t, "School", cfg.TargetList)
}

func TestParse_CurrentKeysWinOverLegacy(t *testing.T) {
	doc := `
list_mappings: {CS101: New}
ticktick_list_mappings: {CS101: Old}
target_list: ""
ticktick_target_list: School
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "New", cfg.ListName("CS101"))
	assert.Empty(t, cfg.TargetList)
}

func TestParse_MissingSections(t *testing.T) {
	cfg, err := Parse([]byte("courses_to_monitor: []\n"))
	require.NoError(t, err)

	assert.True(t, cfg.IsCourseMonitored("anything"))
	assert.Equal(t, "Coursework", cfg.ListName("CS101"))
	assert.Nil(t, cfg.Priorities.Default)
	assert.Nil(t, cfg.Tags.Default)
	assert.Zero(t, cfg.DueDateOffset())
}

func TestParse_RejectsEmptyKeyword(t *testing.T) {
	_, err := Parse([]byte("priorities:\n  high_keywords: [exam, '']\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyKeyword)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("courses_to_monitor: [unterminated"))
	assert.Error(t, err)
}

func TestEnvValidate(t *testing.T) {
	env := Env{Sink: SinkTickTick}
	assert.ErrorIs(t, env.Validate(), ErrMissingCanvasURL)

	env.CanvasURL = "https://canvas.example.edu"
	assert.NoError(t, env.Validate())

	env.Sink = SinkCalDAV
	assert.Error(t, env.Validate())
	env.CalDAVUsername, env.CalDAVPassword = "me", "secret"
	assert.NoError(t, env.Validate())

	env.Sink = "notion"
	assert.Error(t, env.Validate())
}

func TestLoadEnv_Defaults(t *testing.T) {
	t.Setenv("CANVAS_API_URL", "https://canvas.example.edu/")
	t.Setenv("TASK_SINK", "")
	t.Setenv("CANVAS_STATE_FILE", "")
	t.Setenv("CALDAV_ENDPOINT", "")

	env := LoadEnv()
	assert.Equal(t, "https://canvas.example.edu", env.CanvasURL)
	assert.Equal(t, SinkTickTick, env.Sink)
	assert.Equal(t, "canvas_state.json", env.CanvasStateFile)
	assert.Equal(t, defaultCalDAVEndpoint, env.CalDAVEndpoint)
}
