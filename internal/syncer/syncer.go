package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"canvassync/internal/config"
	"canvassync/internal/htmltext"
	"canvassync/internal/identity"
	"canvassync/internal/models"
	"canvassync/internal/rules"
)

var (
	// ErrNoID is reported when a sink accepts a write but returns no created record.
	ErrNoID = errors.New("sink returned no id")

	// ErrFoldersUnsupported is returned by FolderSink implementations wrapping a sink without folders.
	ErrFoldersUnsupported = errors.New("sink does not support folders")
)

// AssignmentSource lists courses and their open assignments.
type AssignmentSource interface {
	// ListActiveCourses returns the published courses the caller is an active student in.
	ListActiveCourses(ctx context.Context) ([]models.Course, error)
	// ListAssignments returns assignments that have a due date, accept a submission,
	// and have not been submitted yet.
	ListAssignments(ctx context.Context, course models.Course) ([]models.Assignment, error)
}

// TaskSink stores tasks in lists.
type TaskSink interface {
	ListLists(ctx context.Context) ([]models.TaskList, error)
	CreateList(ctx context.Context, name, folderID string) (*models.TaskList, error)
	ListTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, task models.Task) (*models.Task, error)
}

// FolderSink is implemented by sinks that can group lists into folders.
type FolderSink interface {
	ListFolders(ctx context.Context) ([]models.Folder, error)
	CreateFolder(ctx context.Context, name string) (*models.Folder, error)
}

// Stats counts the outcome of one sync run.
type Stats struct {
	Created int
	Skipped int
	Errors  int
}

func (s Stats) String() string {
	return fmt.Sprintf("Created: %d, Skipped: %d, Errors: %d", s.Created, s.Skipped, s.Errors)
}

// Syncer orchestrates the synchronization from the assignment source to the task sink.
type Syncer struct {
	logger     *slog.Logger
	source     AssignmentSource
	sink       TaskSink
	cfg        *config.Config
	classifier *rules.Classifier
}

// NewSyncer creates a new Syncer.
func NewSyncer(logger *slog.Logger, source AssignmentSource, sink TaskSink, cfg *config.Config) (*Syncer, error) {
	if source == nil || sink == nil {
		return nil, fmt.Errorf("syncer needs both an assignment source and a task sink")
	}
	if cfg == nil {
		return nil, fmt.Errorf("syncer needs a config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		logger:     logger,
		source:     source,
		sink:       sink,
		cfg:        cfg,
		classifier: rules.New(cfg.Priorities, cfg.Tags),
	}, nil
}

// run holds the state of one Sync call.
type run struct {
	dryRun   bool
	seen     map[int64]struct{}
	resolver *ListResolver
	stats    Stats
}

// Sync performs a full synchronization pass. In dry-run mode every decision is
// made and logged but the sink is never written to.
// An error is returned only when the initial sink or source state cannot be loaded;
// failures for single courses or assignments are counted in Stats.Errors.
func (s *Syncer) Sync(ctx context.Context, dryRun bool) (Stats, error) {
	if dryRun {
		s.logger.Info("Running in dry-run mode. No tasks will be created.")
	}
	s.logger.Info("Starting sync cycle.")

	r := &run{
		dryRun:   dryRun,
		resolver: NewListResolver(s.logger, s.sink, s.cfg.ListName, s.cfg.TargetList, dryRun),
	}

	if err := r.resolver.Load(ctx); err != nil {
		return r.stats, fmt.Errorf("failed to fetch task lists: %w", err)
	}

	existing, err := s.sink.ListTasks(ctx)
	if err != nil {
		return r.stats, fmt.Errorf("failed to fetch existing tasks: %w", err)
	}
	bodies := make([]string, 0, len(existing))
	for _, t := range existing {
		bodies = append(bodies, t.Body)
	}
	r.seen = identity.Collect(bodies)
	s.logger.Info("Fetched existing tasks.", "count", len(existing), "synced", len(r.seen))

	courses, err := s.source.ListActiveCourses(ctx)
	if err != nil {
		return r.stats, fmt.Errorf("failed to fetch courses: %w", err)
	}
	s.logger.Info("Fetched active courses.", "count", len(courses))

	for _, course := range courses {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}
		s.syncCourse(ctx, r, course)
	}

	s.logger.Info("Sync cycle finished.", "created", r.stats.Created, "skipped", r.stats.Skipped, "errors", r.stats.Errors)
	return r.stats, nil
}

func (s *Syncer) syncCourse(ctx context.Context, r *run, course models.Course) {
	if !s.cfg.IsCourseMonitored(course.Name) {
		s.logger.Debug("Course not monitored, skipping.", "course", course.Name)
		return
	}
	s.logger.Info("Processing course.", "course", course.Name)

	// The list is resolved on the first task that needs it, so a course with
	// nothing new to create never touches the sink.
	var (
		listID   string
		resolved bool
	)
	destination := func() string {
		if !resolved {
			listID, resolved = r.resolver.Resolve(ctx, course.Name), true
		}
		return listID
	}

	assignments, err := s.source.ListAssignments(ctx, course)
	if err != nil {
		s.logger.Error("Could not fetch assignments for a course", "course", course.Name, "error", err)
		r.stats.Errors++
		return
	}

	for _, a := range assignments {
		if err := s.syncAssignment(ctx, r, course, destination, a); err != nil {
			r.stats.Errors++
			s.logger.Error("Failed to sync assignment", "id", a.ID, "title", a.Title, "error", err)
			// Continue with the next assignment even if one fails.
		}
	}
}

// syncAssignment handles a single assignment. A panic is converted into an error
// so one bad record cannot end the run.
func (s *Syncer) syncAssignment(ctx context.Context, r *run, course models.Course, destination func() string, a models.Assignment) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Debug("Recovered panic", "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if _, exists := r.seen[a.ID]; exists {
		s.logger.Debug("Assignment already synced, skipping.", "id", a.ID, "title", a.Title)
		r.stats.Skipped++
		return nil
	}
	if !a.HasDueDate() {
		return nil
	}

	task := s.buildTask(course, destination(), a)

	if r.dryRun {
		s.logger.Info("[DRY RUN] Would create task", "title", task.Title, "due", task.DueAt,
			"priority", task.Priority.String(), "labels", task.Labels, "list", task.ListID)
		r.markCreated(a.ID)
		return nil
	}

	created, err := s.sink.CreateTask(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	if created == nil {
		return fmt.Errorf("failed to create task: %w", ErrNoID)
	}
	r.markCreated(a.ID)
	s.logger.Info("Created task.", "title", task.Title, "id", created.ID)
	return nil
}

func (r *run) markCreated(id int64) {
	r.seen[id] = struct{}{}
	r.stats.Created++
}

// buildTask maps an assignment onto the task that represents it.
func (s *Syncer) buildTask(course models.Course, listID string, a models.Assignment) models.Task {
	return models.Task{
		Title:    fmt.Sprintf("%s - %s", a.Title, course.Name),
		Body:     buildBody(a),
		DueAt:    a.DueAt.Add(-s.cfg.DueDateOffset()),
		ListID:   listID,
		Priority: s.classifier.Priority(a.Title),
		Labels:   s.classifier.Labels(a.Title),
	}
}

func buildBody(a models.Assignment) string {
	link := a.HTMLURL
	if link == "" {
		link = "No Link Available"
	}
	body := identity.Encode(a.ID) + "\n\nLink: " + link
	if text := htmltext.Extract(a.Description); text != "" {
		body += "\n\n" + text
	}
	return body
}

func errOrNoID(err error) error {
	if err != nil {
		return err
	}
	return ErrNoID
}
