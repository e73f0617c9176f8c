package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"canvassync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListActiveCourses_PaginatesAndFilters(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/courses", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "student", r.URL.Query().Get("enrollment_type"))
		assert.Equal(t, "active", r.URL.Query().Get("enrollment_state"))

		switch r.URL.Query().Get("page") {
		case "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/v1/courses?page=1>; rel="current", <%s/api/v1/courses?page=2&enrollment_type=student&enrollment_state=active>; rel="next"`, server.URL, server.URL))
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"id": 1, "name": "CS101", "workflow_state": "available"},
				{"id": 2, "access_restricted_by_date": true},
			})
		case "2":
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"id": 3, "name": "Draft course", "workflow_state": "unpublished"},
				{"id": 4, "name": "MATH200"},
			})
		}
	}))
	defer server.Close()

	client, err := NewClient(testLogger(), server.URL+"/", Auth{Token: "secret"})
	require.NoError(t, err)

	courses, err := client.ListActiveCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Course{
		{ID: 1, Name: "CS101", WorkflowState: "available"},
		{ID: 4, Name: "MATH200"},
	}, courses)
}

func TestListAssignments_Filters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/courses/7/assignments", r.URL.Path)
		assert.Equal(t, "submission", r.URL.Query().Get("include[]"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[
			{"id": 42, "name": "Midterm Exam", "due_at": "2030-03-10T23:59:00Z", "description": "<p>Chapters 1-3</p>",
			 "html_url": "https://canvas.example.edu/courses/7/assignments/42", "submission_types": ["online_upload"],
			 "submission": {"workflow_state": "unsubmitted", "submitted_at": null}},
			{"id": 43, "name": "No due date", "due_at": null, "submission_types": ["online_upload"]},
			{"id": 44, "name": "In-class", "due_at": "2030-03-11T23:59:00Z", "submission_types": ["none"]},
			{"id": 45, "name": "Done", "due_at": "2030-03-12T23:59:00Z", "submission_types": ["online_text_entry"],
			 "submission": {"workflow_state": "submitted", "submitted_at": "2030-03-01T10:00:00Z"}},
			{"id": 46, "name": "Graded", "due_at": "2030-03-12T23:59:00Z", "submission_types": ["on_paper"],
			 "submission": {"workflow_state": "graded"}},
			{"id": 47, "name": "Bad date", "due_at": "tomorrow", "submission_types": ["online_upload"]},
			{"id": 48, "name": "No types", "due_at": "2030-03-12T23:59:00Z"},
			{"id": 49, "name": "Quiz 2", "due_at": "2030-03-13T12:00:00-05:00", "description": null,
			 "submission_types": ["none", "online_quiz"]}
		]`)
	}))
	defer server.Close()

	client, err := NewClient(testLogger(), server.URL, Auth{Token: "secret"})
	require.NoError(t, err)

	got, err := client.ListAssignments(context.Background(), models.Course{ID: 7, Name: "CS101"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(42), got[0].ID)
	assert.Equal(t, "Midterm Exam", got[0].Title)
	assert.Equal(t, "CS101", got[0].CourseName)
	assert.Equal(t, "<p>Chapters 1-3</p>", got[0].Description)
	assert.Equal(t, "https://canvas.example.edu/courses/7/assignments/42", got[0].HTMLURL)
	require.NotNil(t, got[0].DueAt)
	assert.True(t, got[0].DueAt.Equal(time.Date(2030, 3, 10, 23, 59, 0, 0, time.UTC)))

	assert.Equal(t, int64(49), got[1].ID)
	assert.Empty(t, got[1].Description)
	assert.True(t, got[1].DueAt.Equal(time.Date(2030, 3, 13, 17, 0, 0, 0, time.UTC)))
}

func TestListAssignments_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"errors":[{"message":"Invalid access token."}]}`)
	}))
	defer server.Close()

	client, err := NewClient(testLogger(), server.URL, Auth{Token: "expired"})
	require.NoError(t, err)

	_, err = client.ListAssignments(context.Background(), models.Course{ID: 1, Name: "CS101"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=401")
	assert.Contains(t, err.Error(), "Invalid access token")
}

func TestCookieAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		if session, err := r.Cookie("canvas_session"); assert.NoError(t, err) {
			assert.Equal(t, "sess", session.Value)
		}
		assert.Equal(t, "abc+/=", r.Header.Get("X-CSRF-Token"))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer server.Close()

	auth := Auth{Token: "ignored", Cookies: []*http.Cookie{
		{Name: "canvas_session", Value: "sess"},
		{Name: "_csrf_token", Value: "abc%2B%2F%3D"},
	}}
	client, err := NewClient(testLogger(), server.URL, auth)
	require.NoError(t, err)

	courses, err := client.ListActiveCourses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, courses)
}

func TestNewClient_RequiresAuth(t *testing.T) {
	_, err := NewClient(testLogger(), "https://canvas.example.edu", Auth{})
	assert.ErrorIs(t, err, ErrNoAuth)

	_, err = NewClient(testLogger(), "", Auth{Token: "x"})
	assert.Error(t, err)
}

func TestResolveAuth(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "canvas_state.json")
	require.NoError(t, os.WriteFile(state, []byte(`{"cookies":[
		{"name":"canvas_session","value":"from-file"},
		{"name":"_csrf_token","value":"csrf"},
		{"name":"_ga","value":"tracking"}
	],"origins":[]}`), 0600))

	auth, err := ResolveAuth(testLogger(), "token", "from-env", state)
	require.NoError(t, err)
	require.Len(t, auth.Cookies, 2)
	assert.Equal(t, "from-file", auth.Cookies[0].Value)

	auth, err = ResolveAuth(testLogger(), "token", "from-env", filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	require.Len(t, auth.Cookies, 1)
	assert.Equal(t, "from-env", auth.Cookies[0].Value)

	auth, err = ResolveAuth(testLogger(), "token", "", "")
	require.NoError(t, err)
	assert.Equal(t, "token", auth.Token)
	assert.Empty(t, auth.Cookies)

	_, err = ResolveAuth(testLogger(), "", "", filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrNoAuth)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"cookies":[{"name":"_ga","value":"x"}]}`), 0600))
	auth, err = ResolveAuth(testLogger(), "token", "", bad)
	require.NoError(t, err)
	assert.Equal(t, "token", auth.Token)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte(`{not json`), 0600))
	auth, err = ResolveAuth(testLogger(), "", "from-env", corrupt)
	require.NoError(t, err)
	require.Len(t, auth.Cookies, 1)
	assert.Equal(t, "from-env", auth.Cookies[0].Value)

	_, err = ResolveAuth(testLogger(), "", "", corrupt)
	assert.ErrorIs(t, err, ErrNoAuth)
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{`<https://c.edu/api/v1/courses?page=2>; rel="next"`, "https://c.edu/api/v1/courses?page=2"},
		{`<https://c.edu/x?page=1>; rel="current",<https://c.edu/x?page=2>; rel="next",<https://c.edu/x?page=9>; rel="last"`, "https://c.edu/x?page=2"},
		{`<https://c.edu/x?page=1>; rel="first",<https://c.edu/x?page=9>; rel="last"`, ""},
		{`garbage; rel="next"`, ""},
		{`<https://c.edu/x?page=2&per_page=100>;rel=next`, "https://c.edu/x?page=2&per_page=100"},
		{`<https://c.edu/x?page=3>; rel="next"; title="page 3"`, "https://c.edu/x?page=3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextLink(tt.header), tt.header)
	}
}
