package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kalambet/profilestack/internal/account"
	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/storage"
)

type userKey struct{}

// userFrom returns the user authenticated by BearerAuth.
func userFrom(ctx context.Context) storage.User {
	u, _ := ctx.Value(userKey{}).(storage.User)
	return u
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// BearerAuth resolves the bearer session token to its user and stores the
// user in the request context.
func BearerAuth(accounts *account.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := accounts.Authenticate(r.Context(), bearerToken(r))
			if errors.Is(err, account.ErrUnauthenticated) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "authenticating: %v", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
		})
	}
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req struct {
			Credential string `json:"credential"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Credential) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "credential is required")
			return
		}

		creds, _, err := deps.Accounts.Login(r.Context(), req.Credential)
		if errors.Is(err, identity.ErrInvalidCredential) {
			httpError(w, http.StatusUnauthorized, "invalid_credential", "invalid credential")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "login failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, creds)
	}
}

func handleLogout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Accounts.Logout(r.Context(), bearerToken(r)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "logout failed: %v", err)
			return
		}
		deps.Profiles.Invalidate(userFrom(r.Context()).ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
	}
}

func handleMe(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, account.ToIdentityUser(userFrom(r.Context())))
	}
}
