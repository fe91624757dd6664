// Package identity verifies identity-provider credentials and holds the
// credential types shared by the server and its clients.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/auth/credentials/idtoken"
)

// ErrInvalidCredential is returned when a provider credential cannot be verified.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is what a verified provider credential yields.
type Identity struct {
	SubjectID   string `json:"subjectId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl,omitempty"`
}

// User is the internal user record as seen by clients.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	PictureURL string `json:"pictureUrl,omitempty"`
}

// Credentials are the result of a successful login: a bearer session token
// and the user it belongs to.
type Credentials struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Valid reports whether c carries a session token.
func (c Credentials) Valid() bool {
	return c.Token != ""
}

// Verifier turns an opaque provider credential into a verified Identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// GoogleVerifier validates Google ID tokens locally against Google's
// signing certificates. The audience must equal the configured client id.
type GoogleVerifier struct {
	clientID  string
	validator *idtoken.Validator
}

// NewGoogleVerifier creates a verifier accepting tokens issued for clientID.
func NewGoogleVerifier(clientID string) (*GoogleVerifier, error) {
	return newGoogleVerifier(clientID, &idtoken.ValidatorOptions{})
}

// NewGoogleVerifierWithCerts creates a verifier that fetches RS256 signing
// keys from certsURL (for testing).
func NewGoogleVerifierWithCerts(clientID, certsURL string) (*GoogleVerifier, error) {
	return newGoogleVerifier(clientID, &idtoken.ValidatorOptions{RS256CertsURL: certsURL})
}

func newGoogleVerifier(clientID string, opts *idtoken.ValidatorOptions) (*GoogleVerifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("google client id is required")
	}
	opts.Client = &http.Client{
		Timeout:   10 * time.Second,
		Transport: certTransport{base: http.DefaultTransport},
	}
	v, err := idtoken.NewValidator(opts)
	if err != nil {
		return nil, fmt.Errorf("creating token validator: %w", err)
	}
	return &GoogleVerifier{clientID: clientID, validator: v}, nil
}

// certTransport reports a non-200 certificate response as a transport error,
// so Verify can tell a provider outage from a bad token.
type certTransport struct {
	base http.RoundTripper
}

func (t certTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching signing keys: status %d", resp.StatusCode)
	}
	return resp, nil
}

// Verify implements Verifier.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return Identity{}, fmt.Errorf("%w: empty credential", ErrInvalidCredential)
	}

	payload, err := v.validator.Validate(ctx, credential, v.clientID)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) || ctx.Err() != nil {
			return Identity{}, fmt.Errorf("fetching google signing keys: %w", err)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	if !googleIssuers[payload.Issuer] {
		return Identity{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidCredential, payload.Issuer)
	}
	if payload.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}
	email := stringClaim(payload.Claims, "email")
	if email != "" && !boolClaim(payload.Claims, "email_verified") {
		return Identity{}, fmt.Errorf("%w: email not verified", ErrInvalidCredential)
	}

	name := stringClaim(payload.Claims, "name")
	if name == "" {
		name = email
	}
	return Identity{
		SubjectID:   payload.Subject,
		Email:       email,
		DisplayName: name,
		PictureURL:  stringClaim(payload.Claims, "picture"),
	}, nil
}

func stringClaim(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}

// boolClaim accepts both JSON booleans and "true", which older tokens carry.
func boolClaim(claims map[string]any, key string) bool {
	switch v := claims[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
