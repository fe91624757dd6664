package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/profilestack/internal/events"
	"github.com/kalambet/profilestack/internal/generate"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/storage"
)

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireGenerator(w, deps) {
			return
		}
		user := userFrom(r.Context())

		platform, err := generate.ParsePlatform(chi.URLParam(r, "platform"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()
		var req generate.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p, ok := loadProfile(w, r, deps)
		if !ok {
			return
		}

		prompt, content, err := deps.Generator.Generate(r.Context(), p, platform, req)
		gen := storage.Generation{
			ID:        uuid.New().String(),
			UserID:    user.ID,
			CreatedAt: time.Now().UTC(),
			Platform:  string(platform),
			Model:     deps.Generator.Model(),
			Prompt:    prompt,
			Content:   content,
			Status:    "completed",
		}
		if err != nil {
			gen.Status = "failed"
		}
		if saveErr := deps.Store.SaveGeneration(r.Context(), gen); saveErr != nil {
			deps.logger().Warn("saving generation failed", "user_id", user.ID, "platform", platform, "error", saveErr)
		}
		deps.Metrics.Generation(string(platform), gen.Status)

		if err != nil {
			generationError(w, err)
			return
		}

		deps.emit(r.Context(), events.New(events.TypeGenerationCompleted, user.ID, map[string]any{
			"platform":     string(platform),
			"generationId": gen.ID,
		}))
		writeJSON(w, http.StatusOK, map[string]string{
			"platform": string(platform),
			"content":  content,
		})
	}
}

func handleImproveBio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireGenerator(w, deps) {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()
		var req struct {
			Bio  string `json:"bio"`
			Tone string `json:"tone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		improved, err := deps.Generator.ImproveBio(r.Context(), req.Bio, req.Tone)
		if err != nil {
			generationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"improvedBio": improved})
	}
}

func handleSuggestSkills(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireGenerator(w, deps) {
			return
		}
		p, ok := loadProfile(w, r, deps)
		if !ok {
			return
		}

		skills, err := deps.Generator.SuggestSkills(r.Context(), p)
		if err != nil {
			generationError(w, err)
			return
		}
		if skills == nil {
			skills = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"suggestedSkills": skills})
	}
}

func handleListGenerations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		gens, err := deps.Store.ListGenerations(r.Context(), userFrom(r.Context()).ID, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list generations: %v", err)
			return
		}
		if gens == nil {
			gens = []storage.Generation{}
		}
		writeJSON(w, http.StatusOK, gens)
	}
}

func requireGenerator(w http.ResponseWriter, deps Deps) bool {
	if deps.Generator == nil {
		httpError(w, http.StatusServiceUnavailable, "api_error", "AI generation is not configured")
		return false
	}
	return true
}

func loadProfile(w http.ResponseWriter, r *http.Request, deps Deps) (profile.Profile, bool) {
	p, err := deps.Profiles.Get(r.Context(), userFrom(r.Context()).ID)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "profile_not_found", "profile not found")
		return profile.Profile{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
		return profile.Profile{}, false
	}
	return p, true
}

// generationError reports provider failures with the provider's message
// verbatim. Other errors are request validation failures.
func generationError(w http.ResponseWriter, err error) {
	if errors.Is(err, generate.ErrGenerationFailed) {
		httpError(w, http.StatusBadGateway, "generation_failed", "%s", err.Error())
		return
	}
	httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
}
