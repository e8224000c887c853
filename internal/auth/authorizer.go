package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrNoCredential      = errors.New("no credential presented")
	ErrInvalidCredential = errors.New("credential not valid")
)

// Authorizer resolves the caller's identity from the ambient credential on
// the upgrade request. Identity is never taken from message fields.
type Authorizer interface {
	Resolve(r *http.Request) (userID string, err error)
}

// Credential extracts the ambient credential: an Authorization bearer token
// or, failing that, the session_token cookie.
func Credential(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer "), true
	}
	if c, err := r.Cookie("session_token"); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

// HTTPAuthorizer verifies credentials against the platform auth service.
type HTTPAuthorizer struct {
	url    string
	client *http.Client
}

// NewHTTPAuthorizer creates an authorizer backed by the auth service at url.
func NewHTTPAuthorizer(url string, client *http.Client) *HTTPAuthorizer {
	return &HTTPAuthorizer{url: url, client: client}
}

// Resolve introspects the credential and returns the owning user id.
func (a *HTTPAuthorizer) Resolve(r *http.Request) (string, error) {
	token, ok := Credential(r)
	if !ok {
		return "", ErrNoCredential
	}

	req, err := http.NewRequestWithContext(r.Context(), "GET", a.url+"/v1/session", nil)
	if err != nil {
		return "", fmt.Errorf("create auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrInvalidCredential
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("auth status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		UserID string `json:"user_id"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if parsed.UserID == "" {
		return "", ErrInvalidCredential
	}
	return parsed.UserID, nil
}

// StaticAuthorizer maps fixed tokens to user ids. Used for local
// development and tests.
type StaticAuthorizer map[string]string

func (a StaticAuthorizer) Resolve(r *http.Request) (string, error) {
	token, ok := Credential(r)
	if !ok {
		return "", ErrNoCredential
	}
	userID, ok := a[token]
	if !ok {
		return "", ErrInvalidCredential
	}
	return userID, nil
}
