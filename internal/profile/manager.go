package profile

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
	UpdateFields(ctx context.Context, userID string, f Fields) error
	ReplaceCollection(ctx context.Context, userID string, kind Kind, entries []Entry) ([]Entry, error)
	CreateEntry(ctx context.Context, userID string, e Entry) (Entry, error)
	UpdateEntry(ctx context.Context, userID string, e Entry) (Entry, error)
	DeleteEntry(ctx context.Context, userID string, kind Kind, id string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	profile  Profile
	cachedAt time.Time
}

// Manager provides cached, per-user access to stored profiles. Every write
// goes through the store and invalidates that user's cache entry.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
	}
}

// Get returns the profile owned by userID, from cache when fresh.
func (m *Manager) Get(ctx context.Context, userID string) (Profile, error) {
	m.mu.RLock()
	if c, ok := m.cache[userID]; ok && m.clock.Now().Before(c.cachedAt.Add(m.ttl)) {
		p := Clone(c.profile)
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.cache[userID]; ok && m.clock.Now().Before(c.cachedAt.Add(m.ttl)) {
		return Clone(c.profile), nil
	}

	p, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile: %w", err)
	}
	m.cache[userID] = cacheEntry{profile: Clone(p), cachedAt: m.clock.Now()}
	return Clone(p), nil
}

// UpdateFields replaces the flat fields of the user's profile.
func (m *Manager) UpdateFields(ctx context.Context, userID string, f Fields) (Profile, error) {
	if err := m.write(userID, func() error { return m.store.UpdateFields(ctx, userID, f) }); err != nil {
		return Profile{}, fmt.Errorf("updating fields: %w", err)
	}
	return m.Get(ctx, userID)
}

// ReplaceCollection replaces one collection wholesale. Entries get fresh
// identifiers assigned by the store.
func (m *Manager) ReplaceCollection(ctx context.Context, userID string, kind Kind, entries []Entry) ([]Entry, error) {
	for _, e := range entries {
		if err := ValidateEntry(Normalize(e)); err != nil {
			return nil, err
		}
	}
	var out []Entry
	err := m.write(userID, func() error {
		var err error
		out, err = m.store.ReplaceCollection(ctx, userID, kind, normalizeAll(entries))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("replacing %s: %w", kind, err)
	}
	return out, nil
}

// CreateEntry adds a single entry to its collection.
func (m *Manager) CreateEntry(ctx context.Context, userID string, e Entry) (Entry, error) {
	e = Normalize(e)
	if err := ValidateEntry(e); err != nil {
		return nil, err
	}
	var out Entry
	err := m.write(userID, func() error {
		var err error
		out, err = m.store.CreateEntry(ctx, userID, e)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s entry: %w", e.Kind(), err)
	}
	return out, nil
}

// UpdateEntry replaces a single entry, keyed by its id.
func (m *Manager) UpdateEntry(ctx context.Context, userID string, e Entry) (Entry, error) {
	e = Normalize(e)
	if err := ValidateEntry(e); err != nil {
		return nil, err
	}
	var out Entry
	err := m.write(userID, func() error {
		var err error
		out, err = m.store.UpdateEntry(ctx, userID, e)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("updating %s entry: %w", e.Kind(), err)
	}
	return out, nil
}

// DeleteEntry removes a single entry.
func (m *Manager) DeleteEntry(ctx context.Context, userID string, kind Kind, id string) error {
	err := m.write(userID, func() error { return m.store.DeleteEntry(ctx, userID, kind, id) })
	if err != nil {
		return fmt.Errorf("deleting %s entry: %w", kind, err)
	}
	return nil
}

// Invalidate drops any cached profile for userID.
func (m *Manager) Invalidate(userID string) {
	m.mu.Lock()
	delete(m.cache, userID)
	m.mu.Unlock()
}

// write runs fn under the write lock and invalidates the cache entry whether
// or not fn succeeded, since a failed write may still have partially applied.
func (m *Manager) write(userID string, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, userID)
	return fn()
}

func normalizeAll(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Normalize(e)
	}
	return out
}
