package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/profile"
)

// State is a step of the login flow.
type State int

const (
	Idle State = iota
	Authenticating
	Classifying
	AutoResolving
	AwaitingChoice
	Finalizing
	Settled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Authenticating:
		return "authenticating"
	case Classifying:
		return "classifying"
	case AutoResolving:
		return "auto_resolving"
	case AwaitingChoice:
		return "awaiting_choice"
	case Finalizing:
		return "finalizing"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Resolution says which side became authoritative.
type Resolution int

const (
	KeepRemote Resolution = iota + 1
	KeepLocal
)

func (r Resolution) String() string {
	switch r {
	case KeepRemote:
		return "keep_remote"
	case KeepLocal:
		return "keep_local"
	}
	return "unknown"
}

// Authenticator exchanges a provider credential for session credentials.
type Authenticator interface {
	Login(ctx context.Context, credential string) (identity.Credentials, error)
}

// Remote is the slice of the remote profile service the resolver writes
// through. GetProfile must wrap ErrProfileNotFound when the identity has no
// profile.
type Remote interface {
	GetProfile(ctx context.Context, creds identity.Credentials) (profile.Profile, error)
	UpdateFields(ctx context.Context, creds identity.Credentials, f profile.Fields) error
	ReplaceCollection(ctx context.Context, creds identity.Credentials, kind profile.Kind, entries []profile.Entry) ([]profile.Entry, error)
}

// Activator installs the settled profile as the active one. Implemented by
// session.Controller.
type Activator interface {
	Authenticated() bool
	CompleteAuthentication(creds identity.Credentials, p profile.Profile) error
}

// Settlement is the result of a completed login.
type Settlement struct {
	Credentials    identity.Credentials
	Profile        profile.Profile
	Classification Classification
	Resolution     Resolution
	// LocalConsumed reports whether a local profile existed and was either
	// written to the remote or discarded.
	LocalConsumed bool
}

// Outcome is returned by Login. Exactly one of Settled and Pending is set.
type Outcome struct {
	Classification Classification
	Settled        *Settlement
	Pending        *Pending
}

// Resolver drives one login at a time from credential to settled session.
type Resolver struct {
	auth    Authenticator
	remote  Remote
	session Activator
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	pending *Pending
}

// NewResolver creates a Resolver in the Idle state.
func NewResolver(auth Authenticator, remote Remote, session Activator) *Resolver {
	return &Resolver{
		auth:    auth,
		remote:  remote,
		session: session,
		logger:  slog.Default(),
	}
}

// State returns the current state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resolver) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()
	r.logger.Debug("login state", "from", prev.String(), "to", s.String())
}

// Login authenticates credential and reconciles local against the
// identity's remote profile. local is the guest profile as it was when the
// user started signing in; it is copied once and never read again.
//
// On Conflict the returned Outcome carries a Pending handle and nothing has
// been written anywhere. Authentication failures return the resolver to
// Idle; failures after that leave it Failed with local data untouched.
func (r *Resolver) Login(ctx context.Context, credential string, local *profile.Profile) (Outcome, error) {
	r.mu.Lock()
	switch r.state {
	case AwaitingChoice:
		r.mu.Unlock()
		return Outcome{}, ErrAwaitingChoice
	case Authenticating, Classifying, AutoResolving, Finalizing:
		r.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	if r.session.Authenticated() {
		r.mu.Unlock()
		return Outcome{}, ErrAlreadyAuthenticated
	}
	r.state = Authenticating
	r.mu.Unlock()

	var snapshot *profile.Profile
	if local != nil {
		cp := profile.Clone(*local)
		snapshot = &cp
	}

	creds, err := r.auth.Login(ctx, credential)
	if err != nil {
		r.setState(Idle)
		return Outcome{}, fmt.Errorf("authenticating: %w", err)
	}

	remote, err := r.remote.GetProfile(ctx, creds)
	if err != nil {
		r.setState(Failed)
		r.logger.Warn("fetching remote profile failed", "user_id", creds.User.ID, "error", err)
		return Outcome{}, fmt.Errorf("fetching remote profile: %w", err)
	}

	r.setState(Classifying)
	c := Classify(snapshot, &remote)
	r.logger.Info("profiles classified", "user_id", creds.User.ID, "classification", c.String())

	switch c {
	case Conflict:
		p := &Pending{r: r, creds: creds, local: *snapshot, remote: remote}
		r.mu.Lock()
		r.state = AwaitingChoice
		r.pending = p
		r.mu.Unlock()
		return Outcome{Classification: c, Pending: p}, nil
	case AdoptLocal:
		r.setState(AutoResolving)
		s, err := r.finalize(ctx, creds, snapshot, remote, c, KeepLocal)
		if err != nil {
			return Outcome{Classification: c}, err
		}
		return Outcome{Classification: c, Settled: s}, nil
	default:
		r.setState(AutoResolving)
		s, err := r.finalize(ctx, creds, snapshot, remote, c, KeepRemote)
		if err != nil {
			return Outcome{Classification: c}, err
		}
		return Outcome{Classification: c, Settled: s}, nil
	}
}

func (r *Resolver) finalize(ctx context.Context, creds identity.Credentials, local *profile.Profile, remote profile.Profile, c Classification, res Resolution) (*Settlement, error) {
	r.setState(Finalizing)

	final := remote
	if res == KeepLocal {
		src := profile.Clone(*local)
		src.Fields = profile.OverlayFields(remote.Fields, local.Fields)
		written, err := Overwrite(ctx, r.remote, creds, src)
		if err != nil {
			r.setState(Failed)
			r.logger.Warn("writing local profile failed", "user_id", creds.User.ID, "error", err)
			return nil, err
		}
		final = written
	}

	if err := r.session.CompleteAuthentication(creds, final); err != nil {
		r.setState(Failed)
		r.logger.Error("activating profile failed", "user_id", creds.User.ID, "error", err)
		return nil, fmt.Errorf("activating profile: %w", err)
	}

	r.setState(Settled)
	r.logger.Info("login settled",
		"user_id", creds.User.ID,
		"classification", c.String(),
		"resolution", res.String(),
	)
	return &Settlement{
		Credentials:    creds,
		Profile:        final,
		Classification: c,
		Resolution:     res,
		LocalConsumed:  local != nil,
	}, nil
}

// Pending is an unresolved Conflict. It holds both snapshots and the new
// credentials in memory only. Exactly one of ResolveWithLocal,
// ResolveWithRemote and Cancel takes effect; later calls return
// ErrAlreadyResolved.
type Pending struct {
	r      *Resolver
	creds  identity.Credentials
	local  profile.Profile
	remote profile.Profile
	done   bool
}

// Local returns a copy of the local snapshot.
func (p *Pending) Local() profile.Profile { return profile.Clone(p.local) }

// Remote returns a copy of the remote snapshot.
func (p *Pending) Remote() profile.Profile { return profile.Clone(p.remote) }

// Credentials returns the credentials obtained during authentication.
func (p *Pending) Credentials() identity.Credentials { return p.creds }

// ResolveWithLocal overwrites the remote profile with the local snapshot.
// On *PartialSyncError the decision is spent; log in again to retry.
func (p *Pending) ResolveWithLocal(ctx context.Context) (*Settlement, error) {
	if err := p.claim(); err != nil {
		return nil, err
	}
	local := p.local
	return p.r.finalize(ctx, p.creds, &local, p.remote, Conflict, KeepLocal)
}

// ResolveWithRemote discards the local snapshot and activates the remote
// profile as fetched.
func (p *Pending) ResolveWithRemote(ctx context.Context) (*Settlement, error) {
	if err := p.claim(); err != nil {
		return nil, err
	}
	local := p.local
	return p.r.finalize(ctx, p.creds, &local, p.remote, Conflict, KeepRemote)
}

// Cancel abandons the decision with no effect on either store and returns
// the resolver to Idle.
func (p *Pending) Cancel() error {
	if err := p.claim(); err != nil {
		return err
	}
	p.r.setState(Idle)
	p.r.logger.Info("sync decision abandoned", "user_id", p.creds.User.ID)
	return nil
}

func (p *Pending) claim() error {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	if p.done || p.r.pending != p {
		return ErrAlreadyResolved
	}
	p.done = true
	p.r.pending = nil
	return nil
}
