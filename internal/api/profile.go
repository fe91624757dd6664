package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/profilestack/internal/events"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/storage"
)

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Profiles.Get(r.Context(), userFrom(r.Context()).ID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "profile_not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleUpdateFields(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		var f profile.Fields
		if err := json.Unmarshal(body, &f); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p, err := deps.Profiles.UpdateFields(r.Context(), user.ID, f)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "profile_not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update profile: %v", err)
			return
		}

		deps.Metrics.ProfileWrite("fields", "update")
		deps.emit(r.Context(), events.New(events.TypeProfileUpdated, user.ID, map[string]any{"section": "fields"}))
		writeJSON(w, http.StatusOK, p)
	}
}

func handleReplaceCollection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		kind, ok := kindParam(w, r)
		if !ok {
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		entries, err := profile.DecodeEntries(kind, body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		for _, e := range entries {
			if err := profile.ValidateEntry(profile.Normalize(e)); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
		}

		stored, err := deps.Profiles.ReplaceCollection(r.Context(), user.ID, kind, entries)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "profile_not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to replace %s: %v", kind, err)
			return
		}
		if stored == nil {
			stored = []profile.Entry{}
		}

		deps.Metrics.ProfileWrite(string(kind), "replace")
		deps.emit(r.Context(), events.New(events.TypeCollectionReplaced, user.ID, map[string]any{
			"kind":  string(kind),
			"count": len(stored),
		}))
		writeJSON(w, http.StatusOK, stored)
	}
}

func handleCreateEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		e, ok := entryBody(w, r)
		if !ok {
			return
		}

		stored, err := deps.Profiles.CreateEntry(r.Context(), user.ID, e)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "profile_not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create entry: %v", err)
			return
		}

		deps.Metrics.ProfileWrite(string(e.Kind()), "create")
		deps.emit(r.Context(), events.New(events.TypeProfileUpdated, user.ID, map[string]any{
			"kind": string(e.Kind()),
			"op":   "create",
			"id":   stored.EntryID(),
		}))
		writeJSON(w, http.StatusCreated, stored)
	}
}

func handleUpdateEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		e, ok := entryBody(w, r)
		if !ok {
			return
		}
		e = profile.WithID(e, chi.URLParam(r, "id"))

		stored, err := deps.Profiles.UpdateEntry(r.Context(), user.ID, e)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "%s entry not found", e.Kind())
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update entry: %v", err)
			return
		}

		deps.Metrics.ProfileWrite(string(e.Kind()), "update")
		deps.emit(r.Context(), events.New(events.TypeProfileUpdated, user.ID, map[string]any{
			"kind": string(e.Kind()),
			"op":   "update",
			"id":   stored.EntryID(),
		}))
		writeJSON(w, http.StatusOK, stored)
	}
}

func handleDeleteEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		kind, ok := kindParam(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		err := deps.Profiles.DeleteEntry(r.Context(), user.ID, kind, id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "%s entry not found", kind)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete entry: %v", err)
			return
		}

		deps.Metrics.ProfileWrite(string(kind), "delete")
		deps.emit(r.Context(), events.New(events.TypeProfileUpdated, user.ID, map[string]any{
			"kind": string(kind),
			"op":   "delete",
			"id":   id,
		}))
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func kindParam(w http.ResponseWriter, r *http.Request) (profile.Kind, bool) {
	kind := profile.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		httpError(w, http.StatusNotFound, "not_found", "unknown collection %q", kind)
		return "", false
	}
	return kind, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading request body: %v", err)
		return nil, false
	}
	return body, true
}

// entryBody decodes and validates a single entry of the
// collection named in the path.
func entryBody(w http.ResponseWriter, r *http.Request) (profile.Entry, bool) {
	kind, ok := kindParam(w, r)
	if !ok {
		return nil, false
	}
	body, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	e, err := profile.DecodeEntry(kind, body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return nil, false
	}
	e = profile.Normalize(e)
	if err := profile.ValidateEntry(e); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return nil, false
	}
	return e, true
}
