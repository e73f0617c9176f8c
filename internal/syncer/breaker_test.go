package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"canvassync/internal/config"
	"canvassync/internal/models"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerSink_OpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	inner := &fakeSink{}
	inner.createTask = func(models.Task) (*models.Task, error) {
		calls++
		return nil, errors.New("503 service unavailable")
	}
	sink := NewBreakerSink(inner, testLogger(), BreakerConfig{FailureThreshold: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := sink.CreateTask(context.Background(), models.Task{Title: "t"})
		require.Error(t, err)
	}
	_, err := sink.CreateTask(context.Background(), models.Task{Title: "t"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, calls, "open breaker must not reach the sink")

	// Lists have their own breaker.
	list, err := sink.CreateList(context.Background(), "CS", "")
	require.NoError(t, err)
	assert.Equal(t, "CS", list.Name)
}

func TestBreakerSink_CountsOpenCallsAsErrors(t *testing.T) {
	source := &fakeSource{
		courses: []models.Course{{Name: "CS101"}},
		assignments: map[string][]models.Assignment{
			"CS101": {
				{ID: 1, Title: "A", DueAt: dueIn(0)},
				{ID: 2, Title: "B", DueAt: dueIn(0)},
				{ID: 3, Title: "C", DueAt: dueIn(0)},
			},
		},
	}
	calls := 0
	inner := &fakeSink{}
	inner.createTask = func(models.Task) (*models.Task, error) {
		calls++
		return nil, errors.New("rejected")
	}
	sink := NewBreakerSink(inner, testLogger(), BreakerConfig{FailureThreshold: 1, Timeout: time.Minute})

	s, err := NewSyncer(testLogger(), source, sink, config.DefaultConfig())
	require.NoError(t, err)
	stats, err := s.Sync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Stats{Errors: 3}, stats)
	assert.Equal(t, 1, calls)
}

func TestBreakerSink_Folders(t *testing.T) {
	plain := NewBreakerSink(&fakeSink{}, testLogger(), DefaultBreakerConfig())
	_, err := plain.ListFolders(context.Background())
	assert.ErrorIs(t, err, ErrFoldersUnsupported)
	_, err = plain.CreateFolder(context.Background(), "School")
	assert.ErrorIs(t, err, ErrFoldersUnsupported)

	folders := &fakeFolderSink{fakeSink: &fakeSink{}}
	wrapped := NewBreakerSink(folders, testLogger(), DefaultBreakerConfig())
	f, err := wrapped.CreateFolder(context.Background(), "School")
	require.NoError(t, err)
	assert.Equal(t, "School", f.Name)
	listed, err := wrapped.ListFolders(context.Background())
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
