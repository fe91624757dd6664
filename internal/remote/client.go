// Package remote is the client side of the profile API: login, profile CRUD
// and AI generation over HTTP with bearer session tokens.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/profilestack/internal/generate"
	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/reconcile"
	"github.com/kalambet/profilestack/internal/storage"
)

// Error types sent by the server in {"error":{"type"}}.
const (
	TypeInvalidRequest    = "invalid_request_error"
	TypeAuthentication    = "authentication_error"
	TypeInvalidCredential = "invalid_credential"
	TypeProfileNotFound   = "profile_not_found"
	TypeNotFound          = "not_found"
	TypeGenerationFailed  = "generation_failed"
	TypeAPI               = "api_error"
)

// ErrUnauthorized is returned when the server rejects the session token.
var ErrUnauthorized = errors.New("session expired or invalid")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Unwrap maps well-known error types to their sentinels.
func (e *APIError) Unwrap() error {
	switch e.Type {
	case TypeInvalidCredential:
		return identity.ErrInvalidCredential
	case TypeAuthentication:
		return ErrUnauthorized
	case TypeProfileNotFound:
		return reconcile.ErrProfileNotFound
	case TypeNotFound:
		return profile.ErrEntryNotFound
	}
	return nil
}

// Client talks to a profilestack server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server not reachable at %s (%w)", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error.Type != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Type == TypeGenerationFailed {
		return &generate.Error{Provider: "server", Message: apiErr.Message, Err: apiErr}
	}
	return apiErr
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

// Login exchanges a provider credential for a session.
func (c *Client) Login(ctx context.Context, credential string) (identity.Credentials, error) {
	var creds identity.Credentials
	err := c.do(ctx, http.MethodPost, "/auth/google", "", map[string]string{"credential": credential}, &creds)
	if err != nil {
		return identity.Credentials{}, err
	}
	if !creds.Valid() {
		return identity.Credentials{}, errors.New("server returned no session token")
	}
	return creds, nil
}

// Logout revokes the session token.
func (c *Client) Logout(ctx context.Context, creds identity.Credentials) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", creds.Token, nil, nil)
}

// Me returns the user behind the session.
func (c *Client) Me(ctx context.Context, creds identity.Credentials) (identity.User, error) {
	var u identity.User
	err := c.do(ctx, http.MethodGet, "/auth/me", creds.Token, nil, &u)
	return u, err
}

// GetProfile fetches the caller's profile. A missing profile is reported as
// reconcile.ErrProfileNotFound.
func (c *Client) GetProfile(ctx context.Context, creds identity.Credentials) (profile.Profile, error) {
	var p profile.Profile
	if err := c.do(ctx, http.MethodGet, "/profile", creds.Token, nil, &p); err != nil {
		return profile.Profile{}, err
	}
	return profile.Clone(p), nil
}

// UpdateFields replaces the caller's flat profile fields.
func (c *Client) UpdateFields(ctx context.Context, creds identity.Credentials, f profile.Fields) error {
	return c.do(ctx, http.MethodPut, "/profile", creds.Token, f, nil)
}

// ReplaceCollection replaces one whole collection in a single call.
func (c *Client) ReplaceCollection(ctx context.Context, creds identity.Credentials, kind profile.Kind, entries []profile.Entry) ([]profile.Entry, error) {
	if entries == nil {
		entries = []profile.Entry{}
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPut, collectionPath(kind), creds.Token, entries, &raw); err != nil {
		return nil, err
	}
	return profile.DecodeEntries(kind, raw)
}

// CreateEntry adds one entry; the server assigns its id.
func (c *Client) CreateEntry(ctx context.Context, creds identity.Credentials, e profile.Entry) (profile.Entry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, collectionPath(e.Kind()), creds.Token, e, &raw); err != nil {
		return nil, err
	}
	return profile.DecodeEntry(e.Kind(), raw)
}

// UpdateEntry replaces the entry with e's id.
func (c *Client) UpdateEntry(ctx context.Context, creds identity.Credentials, e profile.Entry) (profile.Entry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPut, entryPath(e.Kind(), e.EntryID()), creds.Token, e, &raw); err != nil {
		return nil, err
	}
	return profile.DecodeEntry(e.Kind(), raw)
}

// DeleteEntry removes one entry.
func (c *Client) DeleteEntry(ctx context.Context, creds identity.Credentials, kind profile.Kind, id string) error {
	return c.do(ctx, http.MethodDelete, entryPath(kind, id), creds.Token, nil, nil)
}

// Generate asks the server to generate content for platform.
func (c *Client) Generate(ctx context.Context, creds identity.Credentials, platform generate.Platform, req generate.Request) (string, error) {
	var out struct {
		Platform string `json:"platform"`
		Content  string `json:"content"`
	}
	path := "/ai/generate/" + url.PathEscape(string(platform))
	if err := c.do(ctx, http.MethodPost, path, creds.Token, req, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// ImproveBio asks the server to rewrite bio in tone.
func (c *Client) ImproveBio(ctx context.Context, creds identity.Credentials, bio, tone string) (string, error) {
	var out struct {
		ImprovedBio string `json:"improvedBio"`
	}
	body := map[string]string{"bio": bio, "tone": tone}
	if err := c.do(ctx, http.MethodPost, "/ai/improve-bio", creds.Token, body, &out); err != nil {
		return "", err
	}
	return out.ImprovedBio, nil
}

// SuggestSkills asks the server for skills missing from the profile.
func (c *Client) SuggestSkills(ctx context.Context, creds identity.Credentials) ([]string, error) {
	var out struct {
		SuggestedSkills []string `json:"suggestedSkills"`
	}
	if err := c.do(ctx, http.MethodPost, "/ai/suggest-skills", creds.Token, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.SuggestedSkills, nil
}

// Generations lists the caller's past generations, newest first.
func (c *Client) Generations(ctx context.Context, creds identity.Credentials, limit, offset int) ([]storage.Generation, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))
	var out []storage.Generation
	if err := c.do(ctx, http.MethodGet, "/ai/generations?"+q.Encode(), creds.Token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func collectionPath(kind profile.Kind) string {
	return "/profile/" + url.PathEscape(string(kind))
}

func entryPath(kind profile.Kind, id string) string {
	return collectionPath(kind) + "/" + url.PathEscape(id)
}
