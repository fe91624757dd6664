package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/profilestack/internal/account"
	"github.com/kalambet/profilestack/internal/events"
	"github.com/kalambet/profilestack/internal/generate"
	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/metrics"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/storage"
)

type mockVerifier struct {
	identities map[string]identity.Identity
}

func (m *mockVerifier) Verify(_ context.Context, credential string) (identity.Identity, error) {
	id, ok := m.identities[credential]
	if !ok {
		return identity.Identity{}, identity.ErrInvalidCredential
	}
	return id, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type mockBackend struct {
	reply string
	err   error
}

func (m *mockBackend) GenerateText(_ context.Context, _ string) (string, error) {
	return m.reply, m.err
}

func (m *mockBackend) Model() string { return "mock-model" }

type testServer struct {
	handler http.Handler
	store   *storage.Store
	emitter *recordingEmitter
	backend *mockBackend
}

func setupHandler(t *testing.T, withGenerator bool) *testServer {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	verifier := &mockVerifier{identities: map[string]identity.Identity{
		"ada-credential":   {SubjectID: "google-ada", Email: "ada@example.com", DisplayName: "Ada Lovelace"},
		"grace-credential": {SubjectID: "google-grace", Email: "grace@example.com", DisplayName: "Grace Hopper"},
	}}
	emitter := &recordingEmitter{}
	m := metrics.New()

	ts := &testServer{store: store, emitter: emitter, backend: &mockBackend{reply: "generated text"}}
	deps := Deps{
		Accounts: account.NewService(store, verifier, time.Hour, account.WithMetrics(m)),
		Profiles: profile.NewManager(store),
		Store:    store,
		Events:   emitter,
		Metrics:  m,
	}
	if withGenerator {
		deps.Generator = generate.New(ts.backend)
	}
	ts.handler = NewHandler(deps)
	return ts
}

func (ts *testServer) do(t *testing.T, method, url, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) login(t *testing.T, credential string) string {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/auth/google", `{"credential":"`+credential+`"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var creds identity.Credentials
	if err := json.NewDecoder(rr.Body).Decode(&creds); err != nil {
		t.Fatalf("decoding credentials: %v", err)
	}
	if creds.Token == "" {
		t.Fatal("login returned no token")
	}
	return creds.Token
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return envelope.Error.Type, envelope.Error.Message
}

func TestHealth(t *testing.T) {
	ts := setupHandler(t, false)
	rr := ts.do(t, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestLogin_SeedsProfile(t *testing.T) {
	ts := setupHandler(t, false)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodGet, "/profile", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var p profile.Profile
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.FirstName != "Ada" || p.LastName != "Lovelace" || p.Email != "ada@example.com" {
		t.Errorf("seeded fields = %+v", p.Fields)
	}
	if len(p.Education)+len(p.Experience)+len(p.Skills)+len(p.Projects)+len(p.Certifications) != 0 {
		t.Error("new profile should have empty collections")
	}
}

func TestLogin_InvalidCredential(t *testing.T) {
	ts := setupHandler(t, false)
	rr := ts.do(t, http.MethodPost, "/auth/google", `{"credential":"forged"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
	if typ, _ := errorType(t, rr); typ != "invalid_credential" {
		t.Errorf("type = %q", typ)
	}
}

func TestLogin_MissingCredential(t *testing.T) {
	ts := setupHandler(t, false)
	rr := ts.do(t, http.MethodPost, "/auth/google", `{}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	ts := setupHandler(t, false)
	for _, path := range []string{"/profile", "/auth/me", "/ai/generations"} {
		rr := ts.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, rr.Code)
			continue
		}
		if typ, _ := errorType(t, rr); typ != "authentication_error" {
			t.Errorf("GET %s type = %q", path, typ)
		}
	}

	rr := ts.do(t, http.MethodGet, "/profile", "", "not-a-session")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unknown token status = %d", rr.Code)
	}
}

func TestMeAndLogout(t *testing.T) {
	ts := setupHandler(t, false)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodGet, "/auth/me", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status = %d", rr.Code)
	}
	var u identity.User
	json.NewDecoder(rr.Body).Decode(&u)
	if u.Email != "ada@example.com" {
		t.Errorf("me = %+v", u)
	}

	if rr := ts.do(t, http.MethodPost, "/auth/logout", "", token); rr.Code != http.StatusOK {
		t.Fatalf("logout status = %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/auth/me", "", token); rr.Code != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want 401", rr.Code)
	}
}

func TestUpdateFields(t *testing.T) {
	ts := setupHandler(t, false)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPut, "/profile", `{"firstName":"Augusta","lastName":"King","bio":"Analyst"}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var p profile.Profile
	json.NewDecoder(rr.Body).Decode(&p)
	if p.FirstName != "Augusta" || p.Bio != "Analyst" {
		t.Errorf("fields = %+v", p.Fields)
	}
	if p.Email != "" {
		t.Errorf("fields are replaced wholesale, email = %q", p.Email)
	}

	types := ts.emitter.types()
	if len(types) == 0 || types[len(types)-1] != events.TypeProfileUpdated {
		t.Errorf("events = %v", types)
	}
}

func TestReplaceCollection(t *testing.T) {
	ts := setupHandler(t, false)
	token := ts.login(t, "ada-credential")

	body := `[{"id":"local-1","name":"Go","level":"EXPERT"},{"name":"SQL"}]`
	rr := ts.do(t, http.MethodPut, "/profile/skills", body, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var skills []profile.Skill
	if err := json.NewDecoder(rr.Body).Decode(&skills); err != nil {
		t.Fatal(err)
	}
	if len(skills) != 2 {
		t.Fatalf("got %d skills", len(skills))
	}
	for _, s := range skills {
		if s.ID == "" || strings.HasPrefix(s.ID, profile.LocalIDPrefix) {
			t.Errorf("skill %q has id %q, want a server id", s.Name, s.ID)
		}
	}

	rr = ts.do(t, http.MethodPut, "/profile/skills", `[]`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("clearing status = %d", rr.Code)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("cleared body = %s", got)
	}

	found := false
	for _, typ := range ts.emitter.types() {
		if typ == events.TypeCollectionReplaced {
			found = true
		}
	}
	if !found {
		t.Error("no collection_replaced event recorded")
	}
}

func TestReplaceCollection_InvalidEntry(t *testing.T) {
	ts := setupHandler(t, false)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPut, "/profile/education", `[{"institution":"MIT"}]`, token)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if _, msg := errorType(t, rr); !strings.Contains(msg, "degree") {
		t.Errorf("message = %q", msg)
	}
}

func TestUnknownCollection(t *testing.T) {
	ts := setupHandler(t, false)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPost, "/profile/hobbies", `{"name":"chess"}`, token)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestEntryCRUD(t *testing.T) {
	ts := setupHandler(t, false)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPost, "/profile/experience", `{"company":"Babbage & Co","position":"Programmer","current":true}`, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var created profile.Experience
	json.NewDecoder(rr.Body).Decode(&created)
	if created.ID == "" {
		t.Fatal("created entry has no id")
	}

	rr = ts.do(t, http.MethodPut, "/profile/experience/"+created.ID, `{"company":"Babbage & Co","position":"Lead Programmer"}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var updated profile.Experience
	json.NewDecoder(rr.Body).Decode(&updated)
	if updated.ID != created.ID || updated.Position != "Lead Programmer" {
		t.Errorf("updated = %+v", updated)
	}

	if rr := ts.do(t, http.MethodDelete, "/profile/experience/"+created.ID, "", token); rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = ts.do(t, http.MethodDelete, "/profile/experience/"+created.ID, "", token)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rr.Code)
	}
	if typ, _ := errorType(t, rr); typ != "not_found" {
		t.Errorf("type = %q", typ)
	}
}

func TestEntry_ScopedToCaller(t *testing.T) {
	ts := setupHandler(t, false)
	ada := ts.login(t, "ada-credential")
	grace := ts.login(t, "grace-credential")

	rr := ts.do(t, http.MethodPost, "/profile/projects", `{"title":"Engine notes"}`, ada)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rr.Code)
	}
	var p profile.Project
	json.NewDecoder(rr.Body).Decode(&p)

	rr = ts.do(t, http.MethodPut, "/profile/projects/"+p.ID, `{"title":"Hijacked"}`, grace)
	if rr.Code != http.StatusNotFound {
		t.Errorf("foreign update status = %d, want 404", rr.Code)
	}
	rr = ts.do(t, http.MethodDelete, "/profile/projects/"+p.ID, "", grace)
	if rr.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want 404", rr.Code)
	}
}

func TestGenerate(t *testing.T) {
	ts := setupHandler(t, true)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPost, "/ai/generate/cover_letter", `{"jobTitle":"Engineer","company":"Acme"}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var out map[string]string
	json.NewDecoder(rr.Body).Decode(&out)
	if out["platform"] != "cover_letter" || out["content"] != "generated text" {
		t.Errorf("response = %v", out)
	}

	rr = ts.do(t, http.MethodGet, "/ai/generations?limit=5", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("history status = %d", rr.Code)
	}
	var gens []storage.Generation
	json.NewDecoder(rr.Body).Decode(&gens)
	if len(gens) != 1 || gens[0].Status != "completed" || gens[0].Platform != "cover_letter" {
		t.Errorf("history = %+v", gens)
	}
}

func TestGenerate_EmptyBody(t *testing.T) {
	ts := setupHandler(t, true)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPost, "/ai/generate/linkedin", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
}

func TestGenerate_ProviderMessageVerbatim(t *testing.T) {
	ts := setupHandler(t, true)
	ts.backend.err = &generate.Error{Provider: "mock", Message: "You exceeded your current quota"}
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPost, "/ai/generate/resume", `{}`, token)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	typ, msg := errorType(t, rr)
	if typ != "generation_failed" || msg != "You exceeded your current quota" {
		t.Errorf("error = %q %q", typ, msg)
	}

	rr = ts.do(t, http.MethodGet, "/ai/generations", "", token)
	var gens []storage.Generation
	json.NewDecoder(rr.Body).Decode(&gens)
	if len(gens) != 1 || gens[0].Status != "failed" {
		t.Errorf("history = %+v, want one failed generation", gens)
	}
}

func TestGenerate_UnknownPlatform(t *testing.T) {
	ts := setupHandler(t, true)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPost, "/ai/generate/myspace", `{}`, token)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestAI_NotConfigured(t *testing.T) {
	ts := setupHandler(t, false)
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPost, "/ai/suggest-skills", `{}`, token)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestImproveBio(t *testing.T) {
	ts := setupHandler(t, true)
	ts.backend.reply = "A sharper bio."
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPost, "/ai/improve-bio", `{"bio":"i like math","tone":"creative"}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var out map[string]string
	json.NewDecoder(rr.Body).Decode(&out)
	if out["improvedBio"] != "A sharper bio." {
		t.Errorf("response = %v", out)
	}

	rr = ts.do(t, http.MethodPost, "/ai/improve-bio", `{"bio":"x","tone":"furious"}`, token)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad tone status = %d, want 400", rr.Code)
	}
}

func TestSuggestSkills(t *testing.T) {
	ts := setupHandler(t, true)
	ts.backend.reply = `["Statistics","Logic"]`
	token := ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodPost, "/ai/suggest-skills", `{}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var out map[string][]string
	json.NewDecoder(rr.Body).Decode(&out)
	if len(out["suggestedSkills"]) != 2 {
		t.Errorf("response = %v", out)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupHandler(t, false)
	ts.login(t, "ada-credential")

	rr := ts.do(t, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"profilestack_logins_total", "profilestack_http_request_duration_seconds"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=-1", 20},
		{"limit=abc", 20},
		{"limit=500", 100},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
