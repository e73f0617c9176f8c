// Package canvas reads courses and assignments from the Canvas LMS REST API.
package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"canvassync/internal/models"

	"github.com/tomnomnom/linkheader"
)

const (
	perPage        = "100"
	requestTimeout = 30 * time.Second
)

// ErrNoAuth is returned when neither a token nor session cookies are available.
var ErrNoAuth = errors.New("no Canvas authentication method found: set CANVAS_API_TOKEN or CANVAS_SESSION_COOKIE, or provide a browser state file")

// Auth selects how requests are authenticated. Cookies take precedence over the token.
type Auth struct {
	Token   string
	Cookies []*http.Cookie
}

// authTransport adds credentials and a user agent to each request.
type authTransport struct {
	auth      Auth
	csrfToken string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", "canvassync/1.0")
	req.Header.Set("Accept", "application/json")
	if len(t.auth.Cookies) > 0 {
		req.Header.Del("Authorization")
		for _, c := range t.auth.Cookies {
			req.AddCookie(c)
		}
		if t.csrfToken != "" {
			req.Header.Set("X-CSRF-Token", t.csrfToken)
		}
	} else {
		req.Header.Set("Authorization", "Bearer "+t.auth.Token)
	}
	return t.Transport.RoundTrip(req)
}

// Client is a read-only Canvas API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates a Canvas client for the instance at baseURL, e.g. https://canvas.example.edu.
func NewClient(logger *slog.Logger, baseURL string, auth Auth) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("canvas base URL is empty")
	}
	if auth.Token == "" && len(auth.Cookies) == 0 {
		return nil, ErrNoAuth
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &authTransport{auth: auth, Transport: http.DefaultTransport}
	for _, c := range auth.Cookies {
		if c.Name == csrfCookie {
			transport.csrfToken = csrfValue(c.Value)
		}
	}
	if len(auth.Cookies) > 0 {
		logger.Info("Using browser session cookies for Canvas authentication.")
	} else {
		logger.Info("Using API token for Canvas authentication.")
	}

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout, Transport: transport},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}, nil
}

type course struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	WorkflowState string `json:"workflow_state"`
}

type assignment struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Description     *string  `json:"description"`
	DueAt           *string  `json:"due_at"`
	HTMLURL         string   `json:"html_url"`
	SubmissionTypes []string `json:"submission_types"`
	Submission      *struct {
		WorkflowState string  `json:"workflow_state"`
		SubmittedAt   *string `json:"submitted_at"`
	} `json:"submission"`
}

// ListActiveCourses returns published courses the caller is an active student in.
func (c *Client) ListActiveCourses(ctx context.Context) ([]models.Course, error) {
	q := url.Values{}
	q.Set("enrollment_type", "student")
	q.Set("enrollment_state", "active")
	q.Set("per_page", perPage)

	raw, err := fetchAll[course](ctx, c, c.baseURL+"/api/v1/courses?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	courses := make([]models.Course, 0, len(raw))
	for _, rc := range raw {
		// Courses hidden by date restrictions come back without a name.
		if rc.Name == "" {
			continue
		}
		if rc.WorkflowState != "" && rc.WorkflowState != "available" {
			continue
		}
		courses = append(courses, models.Course{ID: rc.ID, Name: rc.Name, WorkflowState: rc.WorkflowState})
	}
	c.logger.Info("Found active courses.", "count", len(courses))
	return courses, nil
}

// ListAssignments returns the course's assignments that have a due date, accept
// a submission, and have not been submitted by the caller.
func (c *Client) ListAssignments(ctx context.Context, crs models.Course) ([]models.Assignment, error) {
	q := url.Values{}
	q.Set("include[]", "submission")
	q.Set("per_page", perPage)

	raw, err := fetchAll[assignment](ctx, c, fmt.Sprintf("%s/api/v1/courses/%d/assignments?%s", c.baseURL, crs.ID, q.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments for course %s: %w", crs.Name, err)
	}

	var out []models.Assignment
	for _, ra := range raw {
		a, ok := toAssignment(crs, ra)
		if !ok {
			c.logger.Debug("Skipping assignment.", "course", crs.Name, "id", ra.ID, "title", ra.Name)
			continue
		}
		out = append(out, a)
	}
	c.logger.Debug("Fetched assignments.", "course", crs.Name, "total", len(raw), "open", len(out))
	return out, nil
}

// toAssignment validates a remote assignment and reports false for ones that
// should not be synced.
func toAssignment(crs models.Course, ra assignment) (models.Assignment, bool) {
	if ra.DueAt == nil || *ra.DueAt == "" {
		return models.Assignment{}, false
	}
	due, err := time.Parse(time.RFC3339, *ra.DueAt)
	if err != nil {
		return models.Assignment{}, false
	}
	if !acceptsSubmission(ra.SubmissionTypes) {
		return models.Assignment{}, false
	}
	submitted := isSubmitted(ra)
	if submitted {
		return models.Assignment{}, false
	}

	a := models.Assignment{
		ID:              ra.ID,
		Title:           ra.Name,
		DueAt:           &due,
		HTMLURL:         ra.HTMLURL,
		CourseName:      crs.Name,
		SubmissionTypes: ra.SubmissionTypes,
		Submitted:       submitted,
	}
	if ra.Description != nil {
		a.Description = *ra.Description
	}
	return a, true
}

func acceptsSubmission(types []string) bool {
	for _, t := range types {
		if t != "" && t != "none" {
			return true
		}
	}
	return false
}

func isSubmitted(ra assignment) bool {
	if ra.Submission == nil {
		return false
	}
	if ra.Submission.SubmittedAt != nil && *ra.Submission.SubmittedAt != "" {
		return true
	}
	switch ra.Submission.WorkflowState {
	case "submitted", "graded", "pending_review":
		return true
	}
	return false
}

// fetchAll GETs url and every page linked with rel="next", decoding each page as a JSON array.
func fetchAll[T any](ctx context.Context, c *Client, pageURL string) ([]T, error) {
	var all []T
	for pageURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := responseError(resp)
			resp.Body.Close()
			return nil, err
		}

		var page []T
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		all = append(all, page...)
		pageURL = nextLink(resp.Header.Get("Link"))
	}
	return all, nil
}

// nextLink returns the rel="next" target of a Link header, or "".
func nextLink(header string) string {
	for _, link := range linkheader.Parse(header).FilterByRel("next") {
		return link.URL
	}
	return ""
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("canvas request failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
}
