package syncer

import (
	"context"
	"log/slog"
	"time"

	"canvassync/internal/models"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker guarding sink writes.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32

	// Timeout is how long the breaker stays open before letting a probe through.
	Timeout time.Duration
}

// DefaultBreakerConfig returns the breaker settings used by the CLI.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

// BreakerSink wraps a TaskSink so that writes fail fast once the sink keeps
// rejecting them. Reads are passed through unchanged. Calls are never retried.
type BreakerSink struct {
	TaskSink
	tasks *gobreaker.CircuitBreaker[*models.Task]
	lists *gobreaker.CircuitBreaker[*models.TaskList]
}

// NewBreakerSink wraps sink. Lists and tasks share no breaker state.
func NewBreakerSink(sink TaskSink, logger *slog.Logger, cfg BreakerConfig) *BreakerSink {
	if logger == nil {
		logger = slog.Default()
	}
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Sink circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}
	}
	return &BreakerSink{
		TaskSink: sink,
		tasks:    gobreaker.NewCircuitBreaker[*models.Task](settings("create-task")),
		lists:    gobreaker.NewCircuitBreaker[*models.TaskList](settings("create-list")),
	}
}

// CreateTask forwards to the wrapped sink unless the breaker is open.
func (b *BreakerSink) CreateTask(ctx context.Context, task models.Task) (*models.Task, error) {
	return b.tasks.Execute(func() (*models.Task, error) {
		return b.TaskSink.CreateTask(ctx, task)
	})
}

// CreateList forwards to the wrapped sink unless the breaker is open.
func (b *BreakerSink) CreateList(ctx context.Context, name, folderID string) (*models.TaskList, error) {
	return b.lists.Execute(func() (*models.TaskList, error) {
		return b.TaskSink.CreateList(ctx, name, folderID)
	})
}

// ListFolders forwards to the wrapped sink when it supports folders.
func (b *BreakerSink) ListFolders(ctx context.Context) ([]models.Folder, error) {
	fs, ok := b.TaskSink.(FolderSink)
	if !ok {
		return nil, ErrFoldersUnsupported
	}
	return fs.ListFolders(ctx)
}

// CreateFolder forwards to the wrapped sink when it supports folders.
func (b *BreakerSink) CreateFolder(ctx context.Context, name string) (*models.Folder, error) {
	fs, ok := b.TaskSink.(FolderSink)
	if !ok {
		return nil, ErrFoldersUnsupported
	}
	return fs.CreateFolder(ctx, name)
}
