// Package ticktick stores tasks in TickTick through its Open API.
package ticktick

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"canvassync/internal/models"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the TickTick API host.
	DefaultBaseURL = "https://api.ticktick.com"

	authURL     = "https://ticktick.com/oauth/authorize"
	tokenURL    = "https://ticktick.com/oauth/token"
	redirectURL = "http://127.0.0.1:8080"

	// inboxProjectID addresses the inbox, which is not returned by the project listing.
	inboxProjectID = "inbox"

	dueLayout = "2006-01-02T15:04:05-0700"
)

var (
	// ErrMissingID is returned when TickTick acknowledges a write without an id.
	ErrMissingID = errors.New("ticktick response has no id")

	// ErrFoldersUnavailable is returned once TickTick has refused the folder
	// endpoints. They belong to the web API and usually reject Open API tokens.
	ErrFoldersUnavailable = errors.New("ticktick folders are unavailable with these credentials")
)

// statusError is a non-2xx TickTick response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ticktick request failed: status=%d body=%s", e.StatusCode, e.Body)
}

// OAuthConfig returns the OAuth2 configuration for a registered TickTick app.
func OAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("TICKTICK_CLIENT_ID and TICKTICK_CLIENT_SECRET must be set")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"tasks:read", "tasks:write"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}, nil
}

// Client talks to the TickTick API. The HTTP client is expected to add authorization,
// e.g. one returned by oauth2.Config.Client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	foldersUnavailable bool
}

// NewClient creates a TickTick client. An empty baseURL selects DefaultBaseURL.
func NewClient(logger *slog.Logger, httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

type project struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	GroupID string `json:"groupId,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Closed  bool   `json:"closed,omitempty"`
}

type task struct {
	ID        string   `json:"id,omitempty"`
	ProjectID string   `json:"projectId,omitempty"`
	Title     string   `json:"title"`
	Content   string   `json:"content,omitempty"`
	Desc      string   `json:"desc,omitempty"`
	DueDate   string   `json:"dueDate,omitempty"`
	TimeZone  string   `json:"timeZone,omitempty"`
	IsAllDay  bool     `json:"isAllDay"`
	Priority  int      `json:"priority"`
	Tags      []string `json:"tags,omitempty"`
}

type projectData struct {
	Tasks []task `json:"tasks"`
}

type projectGroup struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	ListType string `json:"listType,omitempty"`
}

// ListLists returns all projects.
func (c *Client) ListLists(ctx context.Context) ([]models.TaskList, error) {
	var projects []project
	if err := c.do(ctx, http.MethodGet, "/open/v1/project", nil, &projects); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	lists := make([]models.TaskList, 0, len(projects))
	for _, p := range projects {
		lists = append(lists, models.TaskList{ID: p.ID, Name: p.Name, FolderID: p.GroupID})
	}
	return lists, nil
}

// CreateList creates a project, inside the folder folderID when it is not empty.
func (c *Client) CreateList(ctx context.Context, name, folderID string) (*models.TaskList, error) {
	if name == "" {
		return nil, fmt.Errorf("project name is empty")
	}
	var created project
	if err := c.do(ctx, http.MethodPost, "/open/v1/project", project{Name: name, GroupID: folderID, Kind: "TASK"}, &created); err != nil {
		return nil, fmt.Errorf("failed to create project %s: %w", name, err)
	}
	if created.ID == "" {
		return nil, ErrMissingID
	}
	c.logger.Info("Created TickTick project.", "name", name)
	return &models.TaskList{ID: created.ID, Name: created.Name, FolderID: created.GroupID}, nil
}

// ListTasks returns the open tasks of the inbox and every project.
func (c *Client) ListTasks(ctx context.Context) ([]models.Task, error) {
	lists, err := c.ListLists(ctx)
	if err != nil {
		return nil, err
	}
	ids := []string{inboxProjectID}
	for _, l := range lists {
		ids = append(ids, l.ID)
	}

	var out []models.Task
	for _, id := range ids {
		var data projectData
		if err := c.do(ctx, http.MethodGet, "/open/v1/project/"+id+"/data", nil, &data); err != nil {
			return nil, fmt.Errorf("failed to fetch tasks of project %s: %w", id, err)
		}
		for _, t := range data.Tasks {
			out = append(out, fromTask(t))
		}
	}
	return out, nil
}

// CreateTask creates a timed task. An empty ListID files it into the inbox.
func (c *Client) CreateTask(ctx context.Context, t models.Task) (*models.Task, error) {
	payload := task{
		ProjectID: t.ListID,
		Title:     t.Title,
		Content:   t.Body,
		Priority:  int(t.Priority),
		Tags:      t.Labels,
	}
	if !t.DueAt.IsZero() {
		payload.DueDate = t.DueAt.UTC().Format(dueLayout)
		payload.TimeZone = "UTC"
	}

	var created task
	if err := c.do(ctx, http.MethodPost, "/open/v1/task", payload, &created); err != nil {
		return nil, fmt.Errorf("failed to create task %q: %w", t.Title, err)
	}
	if created.ID == "" {
		return nil, ErrMissingID
	}
	result := fromTask(created)
	return &result, nil
}

// ListFolders returns the project groups of the account.
func (c *Client) ListFolders(ctx context.Context) ([]models.Folder, error) {
	if c.foldersUnavailable {
		return nil, ErrFoldersUnavailable
	}
	var state struct {
		ProjectGroups []projectGroup `json:"projectGroups"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v2/batch/check/0", nil, &state); err != nil {
		return nil, fmt.Errorf("failed to list project groups: %w", c.folderError(err))
	}
	folders := make([]models.Folder, 0, len(state.ProjectGroups))
	for _, g := range state.ProjectGroups {
		folders = append(folders, models.Folder{ID: g.ID, Name: g.Name})
	}
	return folders, nil
}

// CreateFolder creates a project group.
func (c *Client) CreateFolder(ctx context.Context, name string) (*models.Folder, error) {
	if c.foldersUnavailable {
		return nil, ErrFoldersUnavailable
	}
	req := struct {
		Add []projectGroup `json:"add"`
	}{Add: []projectGroup{{Name: name, ListType: "group"}}}
	var resp struct {
		ID2ETag  map[string]string `json:"id2etag"`
		ID2Error map[string]string `json:"id2error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v2/batch/projectGroup", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to create project group %s: %w", name, c.folderError(err))
	}
	for id, msg := range resp.ID2Error {
		return nil, fmt.Errorf("failed to create project group %s: %s: %s", name, id, msg)
	}
	for id := range resp.ID2ETag {
		c.logger.Info("Created TickTick folder.", "name", name)
		return &models.Folder{ID: id, Name: name}, nil
	}
	return nil, ErrMissingID
}

// folderError turns an authorization failure on the folder endpoints into
// ErrFoldersUnavailable and stops further folder requests from this client.
func (c *Client) folderError(err error) error {
	var se *statusError
	if !errors.As(err, &se) || (se.StatusCode != http.StatusUnauthorized && se.StatusCode != http.StatusForbidden) {
		return err
	}
	if !c.foldersUnavailable {
		c.foldersUnavailable = true
		c.logger.Warn("TickTick rejected the folder API for this token, lists will be created at the top level.", "status", se.StatusCode)
	}
	return fmt.Errorf("%w: %w", ErrFoldersUnavailable, err)
}

func fromTask(t task) models.Task {
	out := models.Task{
		ID:       t.ID,
		Title:    t.Title,
		Body:     t.Content,
		ListID:   t.ProjectID,
		Priority: models.Priority(t.Priority),
		Labels:   t.Tags,
	}
	if out.Body == "" {
		out.Body = t.Desc
	}
	return out
}

// do sends a JSON request and decodes a JSON response into out when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "canvassync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
