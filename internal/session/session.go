// Package session holds the device's single notion of who is signed in and
// which profile is active, and routes profile edits to the right store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/local"
	"github.com/kalambet/profilestack/internal/profile"
)

var (
	// ErrAlreadyAuthenticated is returned by BeginGuest on an authenticated session.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrGuestActive is returned by BeginGuest when a guest profile already exists.
	ErrGuestActive = errors.New("guest session already active")
	// ErrNoActiveProfile is returned by mutators when nobody is signed in.
	ErrNoActiveProfile = errors.New("no active profile")
	// ErrNotAuthenticated is returned by operations that need an account.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Mode is the kind of session the device is in.
type Mode int

const (
	LoggedOut Mode = iota
	Guest
	Authenticated
)

func (m Mode) String() string {
	switch m {
	case Guest:
		return "guest"
	case Authenticated:
		return "authenticated"
	}
	return "logged_out"
}

// State is what the device persists for an authenticated session.
type State struct {
	Credentials identity.Credentials `json:"credentials"`
	Profile     profile.Profile      `json:"profile"`
}

// Remote is the profile service used in authenticated mode.
type Remote interface {
	GetProfile(ctx context.Context, creds identity.Credentials) (profile.Profile, error)
	UpdateFields(ctx context.Context, creds identity.Credentials, f profile.Fields) error
	CreateEntry(ctx context.Context, creds identity.Credentials, e profile.Entry) (profile.Entry, error)
	UpdateEntry(ctx context.Context, creds identity.Credentials, e profile.Entry) (profile.Entry, error)
	DeleteEntry(ctx context.Context, creds identity.Credentials, kind profile.Kind, id string) error
	Logout(ctx context.Context, creds identity.Credentials) error
}

// Controller owns the active identity and profile. A guest profile lives
// only in the guest store; an authenticated profile lives on the remote and
// is cached in the state store.
type Controller struct {
	guest  local.Store[profile.Profile]
	state  local.Store[State]
	remote Remote
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	mode   Mode
	creds  identity.Credentials
	active *profile.Profile
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController restores the session from its stores. A persisted
// authenticated state wins over a leftover guest profile.
func NewController(guest local.Store[profile.Profile], state local.Store[State], remote Remote, opts ...Option) (*Controller, error) {
	c := &Controller{
		guest:  guest,
		state:  state,
		remote: remote,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	st, err := state.Load()
	if err != nil {
		return nil, fmt.Errorf("loading session state: %w", err)
	}
	if st != nil && st.Credentials.Valid() {
		p := profile.Clone(st.Profile)
		c.mode, c.creds, c.active = Authenticated, st.Credentials, &p
		return c, nil
	}

	g, err := guest.Load()
	if err != nil {
		return nil, fmt.Errorf("loading guest profile: %w", err)
	}
	if g != nil {
		p := profile.Clone(*g)
		c.mode, c.active = Guest, &p
	}
	return c, nil
}

// Mode returns the current session mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Authenticated reports whether an account is signed in.
func (c *Controller) Authenticated() bool {
	return c.Mode() == Authenticated
}

// Credentials returns the session credentials, or ErrNotAuthenticated.
func (c *Controller) Credentials() (identity.Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Authenticated {
		return identity.Credentials{}, ErrNotAuthenticated
	}
	return c.creds, nil
}

// Active returns a copy of the active profile, or nil when logged out.
func (c *Controller) Active() *profile.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	p := profile.Clone(*c.active)
	return &p
}

// LocalSnapshot returns a copy of the guest profile, or nil outside guest
// mode. This is what a login reconciles against.
func (c *Controller) LocalSnapshot() *profile.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Guest || c.active == nil {
		return nil
	}
	p := profile.Clone(*c.active)
	return &p
}

// BeginGuest starts a guest session with an empty profile named name.
// Valid only when logged out.
func (c *Controller) BeginGuest(name string) (profile.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case Authenticated:
		return profile.Profile{}, ErrAlreadyAuthenticated
	case Guest:
		return profile.Profile{}, ErrGuestActive
	}

	p := profile.NewGuest(name, c.now())
	if err := c.guest.Save(p); err != nil {
		return profile.Profile{}, fmt.Errorf("saving guest profile: %w", err)
	}
	c.mode, c.active = Guest, &p
	c.logger.Info("guest session started", "profile_id", p.ID)
	return profile.Clone(p), nil
}

// CompleteAuthentication installs p as the active profile for creds and
// discards any guest data.
func (c *Controller) CompleteAuthentication(creds identity.Credentials, p profile.Profile) error {
	if !creds.Valid() {
		return errors.New("completing authentication: credentials are incomplete")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p = profile.Clone(p)
	if err := c.state.Save(State{Credentials: creds, Profile: p}); err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}
	if err := c.guest.Clear(); err != nil {
		c.logger.Warn("clearing guest profile failed", "error", err)
	}
	c.mode, c.creds, c.active = Authenticated, creds, &p
	c.logger.Info("session authenticated", "user_id", creds.User.ID)
	return nil
}

// Logout clears the active identity and profile and deletes guest data.
// Remote profile data is kept. The remote session is revoked on a best
// effort basis.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode == Authenticated && c.remote != nil {
		if err := c.remote.Logout(ctx, c.creds); err != nil {
			c.logger.Warn("remote logout failed", "user_id", c.creds.User.ID, "error", err)
		}
	}

	if err := c.state.Clear(); err != nil {
		return fmt.Errorf("clearing session state: %w", err)
	}
	if err := c.guest.Clear(); err != nil {
		return fmt.Errorf("clearing guest profile: %w", err)
	}
	prev := c.mode
	c.mode, c.creds, c.active = LoggedOut, identity.Credentials{}, nil
	c.logger.Info("logged out", "previous_mode", prev.String())
	return nil
}

// Refresh re-reads the active profile from the remote.
func (c *Controller) Refresh(ctx context.Context) (profile.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Authenticated {
		return profile.Profile{}, ErrNotAuthenticated
	}
	if err := c.refreshLocked(ctx); err != nil {
		return profile.Profile{}, err
	}
	return profile.Clone(*c.active), nil
}

func (c *Controller) refreshLocked(ctx context.Context) error {
	p, err := c.remote.GetProfile(ctx, c.creds)
	if err != nil {
		return fmt.Errorf("refreshing profile: %w", err)
	}
	if err := c.state.Save(State{Credentials: c.creds, Profile: p}); err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}
	c.active = &p
	return nil
}

// UpdateFields replaces the flat fields of the active profile.
func (c *Controller) UpdateFields(ctx context.Context, f profile.Fields) (profile.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case Guest:
		p := profile.Clone(*c.active)
		p.Fields = f
		if err := c.saveGuestLocked(p); err != nil {
			return profile.Profile{}, err
		}
	case Authenticated:
		if err := c.remote.UpdateFields(ctx, c.creds, f); err != nil {
			return profile.Profile{}, fmt.Errorf("updating fields: %w", err)
		}
		if err := c.refreshLocked(ctx); err != nil {
			return profile.Profile{}, err
		}
	default:
		return profile.Profile{}, ErrNoActiveProfile
	}
	return profile.Clone(*c.active), nil
}

// AddEntry appends e to its collection on the active profile and returns it
// with its assigned id.
func (c *Controller) AddEntry(ctx context.Context, e profile.Entry) (profile.Entry, error) {
	e = profile.Normalize(e)
	if err := profile.ValidateEntry(e); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case Guest:
		e = profile.WithID(e, profile.NewLocalID())
		p := profile.Clone(*c.active)
		if err := p.Add(e); err != nil {
			return nil, err
		}
		if err := c.saveGuestLocked(p); err != nil {
			return nil, err
		}
		return e, nil
	case Authenticated:
		created, err := c.remote.CreateEntry(ctx, c.creds, profile.WithID(e, ""))
		if err != nil {
			return nil, fmt.Errorf("creating %s entry: %w", e.Kind(), err)
		}
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
		return created, nil
	}
	return nil, ErrNoActiveProfile
}

// UpdateEntry replaces the entry with e's id on the active profile.
func (c *Controller) UpdateEntry(ctx context.Context, e profile.Entry) (profile.Entry, error) {
	e = profile.Normalize(e)
	if err := profile.ValidateEntry(e); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case Guest:
		p := profile.Clone(*c.active)
		if err := p.Update(e); err != nil {
			return nil, err
		}
		if err := c.saveGuestLocked(p); err != nil {
			return nil, err
		}
		return e, nil
	case Authenticated:
		updated, err := c.remote.UpdateEntry(ctx, c.creds, e)
		if err != nil {
			return nil, fmt.Errorf("updating %s entry: %w", e.Kind(), err)
		}
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrNoActiveProfile
}

// DeleteEntry removes an entry from the active profile.
func (c *Controller) DeleteEntry(ctx context.Context, kind profile.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", profile.ErrUnknownKind, kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.mode {
	case Guest:
		p := profile.Clone(*c.active)
		if err := p.Remove(kind, id); err != nil {
			return err
		}
		return c.saveGuestLocked(p)
	case Authenticated:
		if err := c.remote.DeleteEntry(ctx, c.creds, kind, id); err != nil {
			return fmt.Errorf("deleting %s entry: %w", kind, err)
		}
		return c.refreshLocked(ctx)
	}
	return ErrNoActiveProfile
}

func (c *Controller) saveGuestLocked(p profile.Profile) error {
	if err := c.guest.Save(p); err != nil {
		return fmt.Errorf("saving guest profile: %w", err)
	}
	c.active = &p
	return nil
}
