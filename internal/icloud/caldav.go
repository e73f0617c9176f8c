// Package icloud stores tasks as VTODO reminders on a CalDAV server such as iCloud.
package icloud

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"canvassync/internal/models"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

// DefaultEndpoint is the iCloud CalDAV endpoint.
const DefaultEndpoint = "https://caldav.icloud.com/"

const productID = "-//canvassync//EN"

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "canvassync/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient stores tasks in the reminder lists of a CalDAV account.
type CalDAVClient struct {
	caldavClient *caldav.Client
	httpClient   *http.Client
	endpoint     *url.URL
	logger       *slog.Logger

	homeSet     string
	defaultList string
	defaultPath string
}

// NewClient connects to endpoint and discovers the calendar home set. Tasks
// without a list go to the calendar named defaultList.
func NewClient(ctx context.Context, logger *slog.Logger, endpoint, username, password, defaultList string) (*CalDAVClient, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &customTransport{
			Username:  username,
			Password:  password,
			Transport: http.DefaultTransport,
		},
	}

	c, err := newClient(logger, httpClient, endpoint, "", defaultList)
	if err != nil {
		return nil, err
	}

	principal, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find principal path: %w", err)
	}
	c.homeSet, err = c.caldavClient.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home set: %w", err)
	}
	c.logger.Info("Connected to CalDAV server.", "endpoint", endpoint, "homeSet", c.homeSet)
	return c, nil
}

func newClient(logger *slog.Logger, httpClient *http.Client, endpoint, homeSet, defaultList string) (*CalDAVClient, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid CalDAV endpoint %q: %w", endpoint, err)
	}
	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CalDAVClient{
		caldavClient: caldavClient,
		httpClient:   httpClient,
		endpoint:     u,
		logger:       logger,
		homeSet:      homeSet,
		defaultList:  defaultList,
	}, nil
}

// ListLists returns the calendars that can hold VTODO components. List ids are calendar paths.
func (c *CalDAVClient) ListLists(ctx context.Context) ([]models.TaskList, error) {
	calendars, err := c.caldavClient.FindCalendars(ctx, c.homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars: %w", err)
	}
	var lists []models.TaskList
	for _, cal := range calendars {
		if !supportsTodos(cal.SupportedComponentSet) {
			continue
		}
		lists = append(lists, models.TaskList{ID: cal.Path, Name: cal.Name})
	}
	return lists, nil
}

// CreateList creates a reminder list with an extended MKCOL (RFC 5689) under the home set.
// CalDAV has no folders, so folderID is ignored.
func (c *CalDAVClient) CreateList(ctx context.Context, name, _ string) (*models.TaskList, error) {
	listPath := path.Join(c.homeSet, uuid.New().String()) + "/"

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	body.WriteString(`<D:mkcol xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav"><D:set><D:prop>`)
	body.WriteString(`<D:resourcetype><D:collection/><C:calendar/></D:resourcetype><D:displayname>`)
	if err := xml.EscapeText(&body, []byte(name)); err != nil {
		return nil, err
	}
	body.WriteString(`</D:displayname><C:supported-calendar-component-set><C:comp name="VTODO"/></C:supported-calendar-component-set>`)
	body.WriteString(`</D:prop></D:set></D:mkcol>`)

	target := c.endpoint.ResolveReference(&url.URL{Path: listPath})
	req, err := http.NewRequestWithContext(ctx, "MKCOL", target.String(), strings.NewReader(body.String()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create list %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("failed to create list %s: status=%d body=%s", name, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	c.logger.Info("Created CalDAV reminder list.", "name", name, "path", listPath)
	return &models.TaskList{ID: listPath, Name: name}, nil
}

// ListTasks returns the VTODOs of every reminder list.
func (c *CalDAVClient) ListTasks(ctx context.Context) ([]models.Task, error) {
	lists, err := c.ListLists(ctx)
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{
				{
					Name:  "VTODO",
					Props: []string{"UID", "SUMMARY", "DESCRIPTION", "DUE", "PRIORITY", "CATEGORIES"},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name:  "VCALENDAR",
			Comps: []caldav.CompFilter{{Name: "VTODO"}},
		},
	}

	var out []models.Task
	for _, l := range lists {
		objects, err := c.caldavClient.QueryCalendar(ctx, l.ID, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query list %s: %w", l.Name, err)
		}
		for _, obj := range objects {
			if obj.Data == nil {
				continue
			}
			for _, child := range obj.Data.Children {
				if child.Name != ical.CompToDo {
					continue
				}
				t := fromVTodo(child)
				t.ID = obj.Path
				t.ListID = l.ID
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// CreateTask PUTs a new VTODO as <uid>.ics. An empty ListID selects the default list.
func (c *CalDAVClient) CreateTask(ctx context.Context, t models.Task) (*models.Task, error) {
	listPath := t.ListID
	if listPath == "" {
		var err error
		if listPath, err = c.defaultListPath(ctx); err != nil {
			return nil, err
		}
	}

	uid := GenerateUID()
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, toVTodo(t, uid, time.Now()))

	objectPath := path.Join(listPath, uid+".ics")
	c.logger.Debug("Creating VTODO.", "title", t.Title, "path", objectPath)
	obj, err := c.caldavClient.PutCalendarObject(ctx, objectPath, cal)
	if err != nil {
		return nil, fmt.Errorf("failed to create task %q: %w", t.Title, err)
	}

	created := t
	created.ID = objectPath
	if obj != nil && obj.Path != "" {
		created.ID = obj.Path
	}
	created.ListID = listPath
	return &created, nil
}

// defaultListPath finds the calendar named after the default list once and caches its path.
func (c *CalDAVClient) defaultListPath(ctx context.Context) (string, error) {
	if c.defaultPath != "" {
		return c.defaultPath, nil
	}
	lists, err := c.ListLists(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range lists {
		if l.Name == c.defaultList {
			c.defaultPath = l.ID
			return l.ID, nil
		}
	}
	if len(lists) == 0 {
		return "", fmt.Errorf("no reminder lists found")
	}
	c.logger.Warn("Default reminder list not found, using the first list.", "list", c.defaultList, "using", lists[0].Name)
	c.defaultPath = lists[0].ID
	return c.defaultPath, nil
}

func supportsTodos(components []string) bool {
	if len(components) == 0 {
		return true
	}
	for _, comp := range components {
		if strings.EqualFold(comp, ical.CompToDo) {
			return true
		}
	}
	return false
}

// toVTodo converts a task into a VTODO component.
func toVTodo(t models.Task, uid string, now time.Time) *ical.Component {
	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, uid)
	todo.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	todo.Props.SetText(ical.PropSummary, t.Title)
	if t.Body != "" {
		todo.Props.SetText(ical.PropDescription, t.Body)
	}
	if !t.DueAt.IsZero() {
		todo.Props.SetDateTime(ical.PropDue, t.DueAt.UTC())
	}
	if p := icalPriority(t.Priority); p != 0 {
		prop := ical.NewProp(ical.PropPriority)
		prop.Value = strconv.Itoa(p)
		todo.Props.Set(prop)
	}
	if len(t.Labels) > 0 {
		escaped := make([]string, 0, len(t.Labels))
		for _, l := range t.Labels {
			escaped = append(escaped, strings.ReplaceAll(l, ",", `\,`))
		}
		prop := ical.NewProp(ical.PropCategories)
		prop.Value = strings.Join(escaped, ",")
		todo.Props.Set(prop)
	}
	return todo
}

// fromVTodo reads the fields the sync engine needs. Malformed optional fields are left empty.
func fromVTodo(comp *ical.Component) models.Task {
	var t models.Task
	t.Title, _ = comp.Props.Text(ical.PropSummary)
	t.Body, _ = comp.Props.Text(ical.PropDescription)
	if due, err := comp.Props.DateTime(ical.PropDue, time.UTC); err == nil {
		t.DueAt = due
	}
	if prop := comp.Props.Get(ical.PropPriority); prop != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(prop.Value)); err == nil {
			t.Priority = taskPriority(n)
		}
	}
	if prop := comp.Props.Get(ical.PropCategories); prop != nil && prop.Value != "" {
		for _, l := range strings.Split(prop.Value, ",") {
			t.Labels = append(t.Labels, strings.ReplaceAll(l, `\`, ""))
		}
	}
	return t
}

// icalPriority maps task priorities onto RFC 5545 PRIORITY, where 1 is highest and 0 is undefined.
func icalPriority(p models.Priority) int {
	switch p {
	case models.PriorityHigh:
		return 1
	case models.PriorityMedium:
		return 5
	case models.PriorityLow:
		return 9
	default:
		return 0
	}
}

func taskPriority(n int) models.Priority {
	switch {
	case n == 0:
		return models.PriorityNone
	case n <= 4:
		return models.PriorityHigh
	case n == 5:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// GenerateUID creates a new unique identifier for a task.
func GenerateUID() string {
	return uuid.New().String()
}
