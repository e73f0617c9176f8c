package syncer

import (
	"context"
	"errors"
	"log/slog"
)

// ListResolver maps course names to destination list ids for one sync run.
// Lists missing from the sink are created on first use and cached, so courses
// sharing a list name share one list.
type ListResolver struct {
	logger     *slog.Logger
	sink       TaskSink
	listName   func(courseName string) string
	folderName string
	dryRun     bool

	index map[string]string // list name -> id

	folderID     string
	folderLoaded bool
}

// NewListResolver creates a resolver. folderName may be empty to create lists at the top level.
func NewListResolver(logger *slog.Logger, sink TaskSink, listName func(string) string, folderName string, dryRun bool) *ListResolver {
	return &ListResolver{
		logger:     logger,
		sink:       sink,
		listName:   listName,
		folderName: folderName,
		dryRun:     dryRun,
		index:      make(map[string]string),
	}
}

// Load builds the name -> id index from one listing call.
func (r *ListResolver) Load(ctx context.Context) error {
	lists, err := r.sink.ListLists(ctx)
	if err != nil {
		return err
	}
	for _, l := range lists {
		if l.Name == "" || l.ID == "" {
			continue
		}
		if _, dup := r.index[l.Name]; !dup {
			r.index[l.Name] = l.ID
		}
	}
	r.logger.Debug("Loaded task lists.", "count", len(r.index))
	return nil
}

// Resolve returns the list id for a course. An empty id means the sink decides
// placement; it is returned when the list could not be created.
func (r *ListResolver) Resolve(ctx context.Context, courseName string) string {
	name := r.listName(courseName)
	if id, ok := r.index[name]; ok {
		return id
	}

	if r.dryRun {
		r.logger.Info("[DRY RUN] Would create list", "list", name)
		r.index[name] = ""
		return ""
	}

	r.logger.Warn("List not found, creating it.", "list", name, "course", courseName)
	list, err := r.sink.CreateList(ctx, name, r.folder(ctx))
	if err != nil || list == nil || list.ID == "" {
		r.logger.Warn("Could not create list, falling back to the default list.", "list", name, "error", errOrNoID(err))
		return ""
	}
	r.index[name] = list.ID
	return list.ID
}

// folder returns the id of the parent folder, creating it at most once per run.
// A failed folder listing is not retried within the run.
func (r *ListResolver) folder(ctx context.Context) string {
	if r.folderLoaded || r.folderName == "" {
		return r.folderID
	}
	fs, ok := r.sink.(FolderSink)
	if !ok {
		r.folderLoaded = true
		return ""
	}

	folders, err := fs.ListFolders(ctx)
	if errors.Is(err, ErrFoldersUnsupported) {
		r.folderLoaded = true
		return ""
	}
	if err != nil {
		r.logger.Warn("Could not list folders, creating lists at the top level.", "folder", r.folderName, "error", err)
		r.folderLoaded = true
		return ""
	}
	for _, f := range folders {
		if f.Name == r.folderName && f.ID != "" {
			r.folderID, r.folderLoaded = f.ID, true
			return r.folderID
		}
	}

	created, err := fs.CreateFolder(ctx, r.folderName)
	if err != nil || created == nil || created.ID == "" {
		r.logger.Warn("Could not create folder, creating list at the top level.", "folder", r.folderName, "error", errOrNoID(err))
		return ""
	}
	r.logger.Info("Created folder.", "folder", r.folderName)
	r.folderID, r.folderLoaded = created.ID, true
	return r.folderID
}
