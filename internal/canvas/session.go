package canvas

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
)

const (
	sessionCookie = "canvas_session"
	csrfCookie    = "_csrf_token"
)

// storageState is the subset of a browser storage-state file we read.
type storageState struct {
	Cookies []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"cookies"`
}

// LoadSessionState reads the Canvas session and CSRF cookies from a browser
// storage-state file captured after an interactive login.
func LoadSessionState(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}

	var cookies []*http.Cookie
	for _, c := range state.Cookies {
		if c.Name == sessionCookie || c.Name == csrfCookie {
			cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("state file %s holds no Canvas session cookies", path)
	}
	return cookies, nil
}

// ResolveAuth picks the authentication method: a readable state file first, then
// a raw session cookie, then the API token. An unusable state file is logged and
// the next method is tried.
func ResolveAuth(logger *slog.Logger, token, sessionCookieValue, stateFile string) (Auth, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stateErr error
	if stateFile != "" {
		cookies, err := LoadSessionState(stateFile)
		if err == nil {
			return Auth{Cookies: cookies}, nil
		}
		if !os.IsNotExist(err) {
			logger.Warn("Could not use browser state file, trying other authentication methods.", "file", stateFile, "error", err)
			stateErr = err
		}
	}
	if sessionCookieValue != "" {
		return Auth{Cookies: []*http.Cookie{{Name: sessionCookie, Value: sessionCookieValue}}}, nil
	}
	if token != "" {
		return Auth{Token: token}, nil
	}
	if stateErr != nil {
		return Auth{}, fmt.Errorf("%w (%v)", ErrNoAuth, stateErr)
	}
	return Auth{}, ErrNoAuth
}

// csrfValue returns the header form of the CSRF cookie, which Canvas stores URL-encoded.
func csrfValue(cookie string) string {
	if v, err := url.QueryUnescape(cookie); err == nil {
		return v
	}
	return cookie
}
