package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/profilestack/internal/account"
	"github.com/kalambet/profilestack/internal/api"
	"github.com/kalambet/profilestack/internal/generate"
	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/local"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/reconcile"
	"github.com/kalambet/profilestack/internal/session"
	"github.com/kalambet/profilestack/internal/storage"
)

type stubVerifier map[string]identity.Identity

func (v stubVerifier) Verify(_ context.Context, credential string) (identity.Identity, error) {
	id, ok := v[credential]
	if !ok {
		return identity.Identity{}, identity.ErrInvalidCredential
	}
	return id, nil
}

type stubBackend struct {
	reply string
	err   error
}

func (b *stubBackend) GenerateText(context.Context, string) (string, error) { return b.reply, b.err }
func (b *stubBackend) Model() string                                        { return "stub" }

type fixture struct {
	client  *Client
	store   *storage.Store
	backend *stubBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	verifier := stubVerifier{
		"jane": {SubjectID: "google-jane", Email: "jane@example.com", DisplayName: "Jane Doe"},
	}
	backend := &stubBackend{reply: "generated"}
	h := api.NewHandler(api.Deps{
		Accounts:  account.NewService(store, verifier, time.Hour),
		Profiles:  profile.NewManager(store),
		Store:     store,
		Generator: generate.New(backend),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &fixture{client: New(srv.URL + "/"), store: store, backend: backend}
}

func (f *fixture) login(t *testing.T) identity.Credentials {
	t.Helper()
	creds, err := f.client.Login(context.Background(), "jane")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return creds
}

// guestDevice returns a controller in guest mode holding entries.
func (f *fixture) guestDevice(t *testing.T, entries ...profile.Entry) *session.Controller {
	t.Helper()
	ctrl, err := session.NewController(local.NewMemory[profile.Profile](), local.NewMemory[session.State](), f.client)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if _, err := ctrl.BeginGuest("Jane Doe"); err != nil {
		t.Fatalf("BeginGuest: %v", err)
	}
	for _, e := range entries {
		if _, err := ctrl.AddEntry(context.Background(), e); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
	return ctrl
}

// accountWithProject gives the account one project before any device syncs.
func (f *fixture) accountWithProject(t *testing.T) identity.Credentials {
	t.Helper()
	creds := f.login(t)
	if _, err := f.client.CreateEntry(context.Background(), creds, profile.Project{Title: "Compiler"}); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	return creds
}

func (f *fixture) remoteProfile(t *testing.T, creds identity.Credentials) profile.Profile {
	t.Helper()
	p, err := f.client.GetProfile(context.Background(), creds)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	return p
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	if err := f.client.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).Health(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server not reachable") {
		t.Errorf("Health error = %v, want server not reachable", err)
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.client.Login(ctx, "forged"); !errors.Is(err, identity.ErrInvalidCredential) {
		t.Errorf("forged login error = %v, want ErrInvalidCredential", err)
	}

	creds := f.login(t)
	if creds.Token == "" || creds.User.Email != "jane@example.com" {
		t.Errorf("credentials = %+v", creds)
	}

	me, err := f.client.Me(ctx, creds)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.ID != creds.User.ID {
		t.Errorf("me = %+v, want user %s", me, creds.User.ID)
	}

	if err := f.client.Logout(ctx, creds); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.client.GetProfile(ctx, creds); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("GetProfile after logout error = %v, want ErrUnauthorized", err)
	}
}

func TestProfileCRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creds := f.login(t)

	p := f.remoteProfile(t, creds)
	if p.FirstName != "Jane" || p.LastName != "Doe" {
		t.Errorf("seeded name = %q / %q", p.FirstName, p.LastName)
	}
	if !profile.IsEmpty(&p) {
		t.Errorf("new account profile = %+v, want empty", p)
	}

	fields := p.Fields
	fields.Bio = "Systems programmer"
	if err := f.client.UpdateFields(ctx, creds, fields); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	created, err := f.client.CreateEntry(ctx, creds, profile.Certification{Name: "CKA", IssuingOrg: "CNCF"})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if created.EntryID() == "" {
		t.Fatal("created entry has no id")
	}

	cert := created.(profile.Certification)
	cert.CredentialID = "ABC-123"
	updated, err := f.client.UpdateEntry(ctx, creds, cert)
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if got := updated.(profile.Certification).CredentialID; got != "ABC-123" {
		t.Errorf("updated credential id = %q", got)
	}

	p = f.remoteProfile(t, creds)
	if p.Bio != "Systems programmer" {
		t.Errorf("bio = %q", p.Bio)
	}
	if len(p.Certifications) != 1 || p.Certifications[0].CredentialID != "ABC-123" {
		t.Errorf("certifications = %+v", p.Certifications)
	}

	if err := f.client.DeleteEntry(ctx, creds, profile.KindCertification, cert.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	err = f.client.DeleteEntry(ctx, creds, profile.KindCertification, cert.ID)
	if !errors.Is(err, profile.ErrEntryNotFound) {
		t.Errorf("second delete error = %v, want ErrEntryNotFound", err)
	}
}

func TestReplaceCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creds := f.login(t)

	stored, err := f.client.ReplaceCollection(ctx, creds, profile.KindSkill, []profile.Entry{
		profile.Skill{Name: "Go", Level: profile.LevelExpert},
		profile.Skill{Name: "SQL"},
	})
	if err != nil {
		t.Fatalf("ReplaceCollection: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored = %d entries, want 2", len(stored))
	}
	if lvl := stored[1].(profile.Skill).Level; lvl != profile.LevelBeginner {
		t.Errorf("default level = %q", lvl)
	}

	stored, err = f.client.ReplaceCollection(ctx, creds, profile.KindSkill, nil)
	if err != nil {
		t.Fatalf("clearing collection: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("stored = %+v, want none", stored)
	}

	_, err = f.client.ReplaceCollection(ctx, creds, profile.KindEducation, []profile.Entry{profile.Education{Institution: "MIT"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Type != TypeInvalidRequest {
		t.Errorf("api error = %d %s", apiErr.Status, apiErr.Type)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status  int
		errType string
		want    error
	}{
		{http.StatusNotFound, TypeProfileNotFound, reconcile.ErrProfileNotFound},
		{http.StatusNotFound, TypeNotFound, profile.ErrEntryNotFound},
		{http.StatusUnauthorized, TypeAuthentication, ErrUnauthorized},
		{http.StatusUnauthorized, TypeInvalidCredential, identity.ErrInvalidCredential},
		{http.StatusBadGateway, TypeGenerationFailed, generate.ErrGenerationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.errType, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"message":"upstream said no","type":%q}}`, tt.errType)
			}))
			defer srv.Close()

			_, err := New(srv.URL).GetProfile(context.Background(), identity.Credentials{Token: "t"})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestErrorMapping_PlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Message != "bad gateway" {
		t.Errorf("api error = %d %q", apiErr.Status, apiErr.Message)
	}
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creds := f.login(t)

	content, err := f.client.Generate(ctx, creds, generate.GitHub, generate.Request{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if content != "generated" {
		t.Errorf("content = %q", content)
	}

	const quota = "Resource has been exhausted (e.g. check quota)."
	f.backend.err = &generate.Error{Provider: "stub", Message: quota}
	_, err = f.client.Generate(ctx, creds, generate.Resume, generate.Request{})
	if !errors.Is(err, generate.ErrGenerationFailed) {
		t.Errorf("error = %v, want ErrGenerationFailed", err)
	}
	if err == nil || err.Error() != quota {
		t.Errorf("error message = %v, want the provider message verbatim", err)
	}

	history, err := f.client.Generations(ctx, creds, 10, 0)
	if err != nil {
		t.Fatalf("Generations: %v", err)
	}
	var statuses []string
	for _, g := range history {
		statuses = append(statuses, g.Status)
	}
	slices.Sort(statuses)
	if !slices.Equal(statuses, []string{"completed", "failed"}) {
		t.Errorf("history statuses = %v", statuses)
	}
}

func TestImproveBioAndSuggestSkills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creds := f.login(t)

	f.backend.reply = "Builder of reliable systems."
	bio, err := f.client.ImproveBio(ctx, creds, "i build stuff", "professional")
	if err != nil {
		t.Fatalf("ImproveBio: %v", err)
	}
	if bio != "Builder of reliable systems." {
		t.Errorf("bio = %q", bio)
	}

	f.backend.reply = `["Kubernetes","Terraform"]`
	skills, err := f.client.SuggestSkills(ctx, creds)
	if err != nil {
		t.Fatalf("SuggestSkills: %v", err)
	}
	if !slices.Equal(skills, []string{"Kubernetes", "Terraform"}) {
		t.Errorf("skills = %v", skills)
	}
}

// TestSync_AdoptLocal runs a guest-to-account login against the real server:
// a fresh account is empty, so the guest profile is uploaded.
func TestSync_AdoptLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ctrl := f.guestDevice(t,
		profile.Skill{Name: "Go", Level: profile.LevelAdvanced},
		profile.Education{Institution: "MIT", Degree: "BSc"},
	)
	if _, err := ctrl.UpdateFields(ctx, profile.Fields{Bio: "Guest bio"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	r := reconcile.NewResolver(f.client, f.client, ctrl)
	out, err := r.Login(ctx, "jane", ctrl.LocalSnapshot())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if out.Classification != reconcile.AdoptLocal || out.Settled == nil {
		t.Fatalf("outcome = %+v, want adopt_local", out)
	}
	if !out.Settled.LocalConsumed {
		t.Error("LocalConsumed = false")
	}
	if r.State() != reconcile.Settled || ctrl.Mode() != session.Authenticated {
		t.Errorf("state %s, mode %s", r.State(), ctrl.Mode())
	}

	creds, err := ctrl.Credentials()
	if err != nil {
		t.Fatal(err)
	}
	remote := f.remoteProfile(t, creds)
	if remote.Bio != "Guest bio" {
		t.Errorf("bio = %q", remote.Bio)
	}
	if remote.Email != "jane@example.com" {
		t.Errorf("email = %q, blank guest fields keep the account's values", remote.Email)
	}
	if len(remote.Skills) != 1 || len(remote.Education) != 1 {
		t.Fatalf("remote skills %d, education %d", len(remote.Skills), len(remote.Education))
	}
	if strings.HasPrefix(remote.Skills[0].ID, profile.LocalIDPrefix) {
		t.Errorf("skill id %q is a local id", remote.Skills[0].ID)
	}

	active := ctrl.Active()
	if active == nil || len(active.Skills) != 1 || active.Skills[0].ID != remote.Skills[0].ID {
		t.Errorf("active profile = %+v, want the server copy", active)
	}
}

// TestSync_ConflictKeepRemote logs a second device with its own guest data
// into an account that already has data.
func TestSync_ConflictKeepRemote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creds := f.accountWithProject(t)
	ctrl := f.guestDevice(t, profile.Skill{Name: "Rust"})

	r := reconcile.NewResolver(f.client, f.client, ctrl)
	out, err := r.Login(ctx, "jane", ctrl.LocalSnapshot())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if out.Classification != reconcile.Conflict || out.Pending == nil {
		t.Fatalf("outcome = %+v, want a pending conflict", out)
	}
	if r.State() != reconcile.AwaitingChoice {
		t.Errorf("state = %s", r.State())
	}
	if ctrl.Mode() != session.Guest {
		t.Errorf("mode = %s, nothing is activated while the choice is pending", ctrl.Mode())
	}

	settled, err := out.Pending.ResolveWithRemote(ctx)
	if err != nil {
		t.Fatalf("ResolveWithRemote: %v", err)
	}
	if settled.Resolution != reconcile.KeepRemote {
		t.Errorf("resolution = %s", settled.Resolution)
	}
	if len(settled.Profile.Projects) != 1 || len(settled.Profile.Skills) != 0 {
		t.Errorf("settled profile = %+v", settled.Profile)
	}

	if _, err := out.Pending.ResolveWithLocal(ctx); !errors.Is(err, reconcile.ErrAlreadyResolved) {
		t.Errorf("second resolution error = %v, want ErrAlreadyResolved", err)
	}
	if remote := f.remoteProfile(t, creds); len(remote.Skills) != 0 {
		t.Errorf("remote skills = %+v, keeping the account profile never writes to it", remote.Skills)
	}
}

// TestSync_ConflictKeepLocal overwrites the account with the device profile.
func TestSync_ConflictKeepLocal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creds := f.accountWithProject(t)
	ctrl := f.guestDevice(t, profile.Skill{Name: "Rust"})

	r := reconcile.NewResolver(f.client, f.client, ctrl)
	out, err := r.Login(ctx, "jane", ctrl.LocalSnapshot())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if out.Pending == nil {
		t.Fatalf("classification = %s, want a pending choice", out.Classification)
	}

	settled, err := out.Pending.ResolveWithLocal(ctx)
	if err != nil {
		t.Fatalf("ResolveWithLocal: %v", err)
	}
	if settled.Resolution != reconcile.KeepLocal {
		t.Errorf("resolution = %s", settled.Resolution)
	}

	remote := f.remoteProfile(t, creds)
	if len(remote.Projects) != 0 {
		t.Errorf("projects = %+v, collections are overwritten, not merged", remote.Projects)
	}
	if len(remote.Skills) != 1 || remote.Skills[0].Name != "Rust" {
		t.Errorf("skills = %+v", remote.Skills)
	}
}
