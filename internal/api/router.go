// Package api serves the profile REST API and the MCP tool surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/profilestack/internal/account"
	"github.com/kalambet/profilestack/internal/events"
	"github.com/kalambet/profilestack/internal/generate"
	"github.com/kalambet/profilestack/internal/metrics"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Emitter records domain events.
type Emitter interface {
	Emit(ctx context.Context, ev events.Event) error
}

// Deps holds the dependencies of the REST API.
type Deps struct {
	Accounts  *account.Service
	Profiles  *profile.Manager
	Store     *storage.Store
	Generator *generate.Generator // optional; AI routes answer 503 when nil
	Events    Emitter             // optional
	Metrics   *metrics.Metrics    // optional
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// emit records ev. Delivery problems never fail the request.
func (d Deps) emit(ctx context.Context, ev events.Event) {
	if d.Events == nil {
		return
	}
	if err := d.Events.Emit(ctx, ev); err != nil {
		d.logger().Warn("recording event failed", "type", ev.Type, "user_id", ev.UserID, "error", err)
	}
}

// NewHandler returns the http.Handler serving the profile API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe(deps.Metrics))

	r.Get("/health", handleHealth)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Post("/auth/google", handleLogin(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Accounts))

		r.Post("/auth/logout", handleLogout(deps))
		r.Get("/auth/me", handleMe(deps))

		r.Get("/profile", handleGetProfile(deps))
		r.Put("/profile", handleUpdateFields(deps))
		r.Put("/profile/{kind}", handleReplaceCollection(deps))
		r.Post("/profile/{kind}", handleCreateEntry(deps))
		r.Put("/profile/{kind}/{id}", handleUpdateEntry(deps))
		r.Delete("/profile/{kind}/{id}", handleDeleteEntry(deps))

		r.Post("/ai/generate/{platform}", handleGenerate(deps))
		r.Post("/ai/improve-bio", handleImproveBio(deps))
		r.Post("/ai/suggest-skills", handleSuggestSkills(deps))
		r.Get("/ai/generations", handleListGenerations(deps))
	})

	return r
}

// observe records request latency per route pattern.
func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(route, r.Method, status, time.Since(start))
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
