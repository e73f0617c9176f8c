// Package auth captures and stores OAuth2 tokens for the task sinks.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
)

// TokenFile returns the file a provider's token is stored in, e.g. token-ticktick.json.
func TokenFile(provider string) string {
	return fmt.Sprintf("token-%s.json", provider)
}

// TokenFromWeb exchanges an authorization code pasted by the user for a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// SaveToken saves a token to a file path. The file is readable only by the owner.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// TokenFromFile retrieves a token from a local file.
func TokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("unable to decode token file %s: %w", path, err)
	}
	return tok, nil
}

// HTTPClient returns an HTTP client that authorizes requests with the token
// stored at path and refreshes it when it expires.
func HTTPClient(ctx context.Context, config *oauth2.Config, path string) (*http.Client, error) {
	tok, err := TokenFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not load token from %s: %w. Please run the 'auth' command first", path, err)
	}
	return config.Client(ctx, tok), nil
}
