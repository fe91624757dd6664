// Package account implements server-side login: credential verification,
// first-login provisioning, and bearer session tokens.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/profilestack/internal/events"
	"github.com/kalambet/profilestack/internal/identity"
	"github.com/kalambet/profilestack/internal/metrics"
	"github.com/kalambet/profilestack/internal/profile"
	"github.com/kalambet/profilestack/internal/storage"
)

// ErrUnauthenticated is returned when a bearer token does not resolve to a live session.
var ErrUnauthenticated = errors.New("unauthenticated")

// Store defines the storage operations the Service needs.
// Implemented by storage.Store.
type Store interface {
	GetUserBySubject(ctx context.Context, subject string) (storage.User, error)
	GetUser(ctx context.Context, id string) (storage.User, error)
	CreateUserWithProfile(ctx context.Context, u storage.User, profileID string, f profile.Fields) error
	UpdateUserIdentity(ctx context.Context, id, email, name, pictureURL string) error
	CreateSession(ctx context.Context, sess storage.Session) error
	GetSession(ctx context.Context, token string, now time.Time) (storage.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// Emitter records domain events.
type Emitter interface {
	Emit(ctx context.Context, ev events.Event) error
}

// Service verifies provider credentials and manages sessions.
type Service struct {
	store    Store
	verifier identity.Verifier
	emitter  Emitter
	metrics  *metrics.Metrics
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEmitter sets the event emitter used for user.created events.
func WithEmitter(e Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service issuing sessions that last ttl.
func NewService(store Store, verifier identity.Verifier, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		store:    store,
		verifier: verifier,
		ttl:      ttl,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credential and returns a fresh session. On the identity's
// first login it creates the user and an empty profile seeded with the
// provider's name and email. created reports whether that happened.
func (s *Service) Login(ctx context.Context, credential string) (creds identity.Credentials, created bool, err error) {
	id, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredential) {
			s.metrics.Login("invalid")
		} else {
			s.metrics.Login("error")
		}
		return identity.Credentials{}, false, fmt.Errorf("verifying credential: %w", err)
	}

	user, err := s.store.GetUserBySubject(ctx, id.SubjectID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		user, err = s.provision(ctx, id)
		if err != nil {
			s.metrics.Login("error")
			return identity.Credentials{}, false, err
		}
		created = true
	case err != nil:
		s.metrics.Login("error")
		return identity.Credentials{}, false, fmt.Errorf("looking up user: %w", err)
	default:
		if user.Email != id.Email || user.Name != id.DisplayName || user.PictureURL != id.PictureURL {
			if err := s.store.UpdateUserIdentity(ctx, user.ID, id.Email, id.DisplayName, id.PictureURL); err != nil {
				s.logger.Warn("refreshing user identity failed", "user_id", user.ID, "error", err)
			} else {
				user.Email, user.Name, user.PictureURL = id.Email, id.DisplayName, id.PictureURL
			}
		}
	}

	now := s.now()
	sess := storage.Session{
		Token:     uuid.New().String(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		s.metrics.Login("error")
		return identity.Credentials{}, false, fmt.Errorf("creating session: %w", err)
	}

	if created {
		s.metrics.Login("created")
	} else {
		s.metrics.Login("existing")
	}
	s.logger.Info("user logged in", "user_id", user.ID, "created", created)
	return identity.Credentials{Token: sess.Token, User: ToIdentityUser(user)}, created, nil
}

func (s *Service) provision(ctx context.Context, id identity.Identity) (storage.User, error) {
	user := storage.User{
		ID:         uuid.New().String(),
		Subject:    id.SubjectID,
		Email:      id.Email,
		Name:       id.DisplayName,
		PictureURL: id.PictureURL,
		CreatedAt:  s.now(),
	}
	first, last := profile.SplitName(id.DisplayName)
	fields := profile.Fields{
		FirstName:  first,
		LastName:   last,
		Email:      id.Email,
		ProfilePic: id.PictureURL,
	}
	if err := s.store.CreateUserWithProfile(ctx, user, uuid.New().String(), fields); err != nil {
		return storage.User{}, fmt.Errorf("creating user: %w", err)
	}

	if s.emitter != nil {
		ev := events.New(events.TypeUserCreated, user.ID, map[string]any{"email": user.Email})
		if err := s.emitter.Emit(ctx, ev); err != nil {
			s.logger.Warn("recording user.created failed", "user_id", user.ID, "error", err)
		}
	}
	return user, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (storage.User, error) {
	if token == "" {
		return storage.User{}, ErrUnauthenticated
	}
	sess, err := s.store.GetSession(ctx, token, s.now())
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrUnauthenticated
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("loading session: %w", err)
	}
	user, err := s.store.GetUser(ctx, sess.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrUnauthenticated
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

// Logout invalidates token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.store.DeleteSession(ctx, token)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// ToIdentityUser converts the stored user to its client-facing form.
func ToIdentityUser(u storage.User) identity.User {
	return identity.User{ID: u.ID, Email: u.Email, Name: u.Name, PictureURL: u.PictureURL}
}
