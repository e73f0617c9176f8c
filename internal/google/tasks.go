package google

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"canvassync/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

const (
	credentialsFile = "credentials.json"

	// defaultList addresses the account's default task list.
	defaultList = "@default"

	pageSize = 100
)

// TasksClient stores tasks in Google Tasks.
type TasksClient struct {
	service *tasks.Service
	logger  *slog.Logger
}

// NewClient creates a Google Tasks client. Callers pass option.WithHTTPClient with
// an authorized client, and may override the endpoint.
func NewClient(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*TasksClient, error) {
	service, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TasksClient{service: service, logger: logger}, nil
}

// ListLists returns all task lists of the account.
func (c *TasksClient) ListLists(ctx context.Context) ([]models.TaskList, error) {
	var lists []models.TaskList
	err := c.service.Tasklists.List().MaxResults(pageSize).Pages(ctx, func(page *tasks.TaskLists) error {
		for _, item := range page.Items {
			lists = append(lists, models.TaskList{ID: item.Id, Name: item.Title})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list task lists: %w", err)
	}
	return lists, nil
}

// CreateList creates a task list. Google Tasks has no folders, so folderID is ignored.
func (c *TasksClient) CreateList(ctx context.Context, name, _ string) (*models.TaskList, error) {
	created, err := c.service.Tasklists.Insert(&tasks.TaskList{Title: name}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create task list %s: %w", name, err)
	}
	c.logger.Info("Created Google task list.", "name", name)
	return &models.TaskList{ID: created.Id, Name: created.Title}, nil
}

// ListTasks returns every task of every list, including completed and hidden ones.
func (c *TasksClient) ListTasks(ctx context.Context) ([]models.Task, error) {
	lists, err := c.ListLists(ctx)
	if err != nil {
		return nil, err
	}

	var out []models.Task
	for _, l := range lists {
		err := c.service.Tasks.List(l.ID).
			ShowCompleted(true).
			ShowHidden(true).
			MaxResults(pageSize).
			Pages(ctx, func(page *tasks.Tasks) error {
				for _, item := range page.Items {
					out = append(out, fromGoogleTask(item, l.ID))
				}
				return nil
			})
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks of %s: %w", l.Name, err)
		}
	}
	c.logger.Debug("Fetched Google tasks.", "lists", len(lists), "tasks", len(out))
	return out, nil
}

// CreateTask inserts a task. Labels and priority have no Google Tasks field and
// are appended to the notes.
func (c *TasksClient) CreateTask(ctx context.Context, t models.Task) (*models.Task, error) {
	listID := t.ListID
	if listID == "" {
		listID = defaultList
	}

	gt := &tasks.Task{
		Title: t.Title,
		Notes: Notes(t),
	}
	if !t.DueAt.IsZero() {
		gt.Due = t.DueAt.UTC().Format(time.RFC3339)
	}

	created, err := c.service.Tasks.Insert(listID, gt).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create task %q: %w", t.Title, err)
	}
	result := fromGoogleTask(created, listID)
	result.Priority = t.Priority
	result.Labels = t.Labels
	return &result, nil
}

// Notes renders the task body followed by its labels as hashtags and its priority.
func Notes(t models.Task) string {
	var b strings.Builder
	b.WriteString(t.Body)
	if len(t.Labels) > 0 {
		tags := make([]string, 0, len(t.Labels))
		for _, l := range t.Labels {
			tags = append(tags, "#"+strings.ReplaceAll(l, " ", ""))
		}
		b.WriteString("\n\n")
		b.WriteString(strings.Join(tags, " "))
	}
	if t.Priority != models.PriorityNone {
		b.WriteString("\nPriority: ")
		b.WriteString(t.Priority.String())
	}
	return b.String()
}

func fromGoogleTask(item *tasks.Task, listID string) models.Task {
	t := models.Task{
		ID:     item.Id,
		Title:  item.Title,
		Body:   item.Notes,
		ListID: listID,
	}
	if due, err := time.Parse(time.RFC3339, item.Due); err == nil {
		t.DueAt = due
	}
	return t
}

// OAuthConfig returns the OAuth2 config for the Tasks scope. It prefers the
// client id and secret and falls back to a local credentials.json file.
func OAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{tasks.TasksScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, tasks.TasksScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	return config, nil
}
