package settings

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backend is the external key/value store the settings live in.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	All(ctx context.Context) (map[string][]byte, error)
}

// Updater is implemented by backends that can read-modify-write a single key
// atomically, even against writers in other processes.
type Updater interface {
	Update(ctx context.Context, key string, fn func(raw []byte, ok bool) ([]byte, error)) ([]byte, error)
}

// Change describes one settings update delivered to subscribers.
type Change struct {
	Key string
	Old Snapshot
	New Snapshot
}

// Store keeps an in-memory copy of the persisted settings.
//
// Readers never touch the backend: the cached copy is updated on every write
// made through the Store and on every external change pushed via Apply or
// picked up by Refresh, and subscribers are notified after each update.
type Store struct {
	backend Backend
	logger  *zap.Logger

	mu  sync.RWMutex // guards cur; held across backend writes so read-modify-write is serialized
	cur Snapshot

	subsMu sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// NewStore creates a store initialized with Defaults. Call Load to pull the
// persisted values.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		cur:     Defaults(),
		subs:    make(map[int]func(Change)),
	}
}

// Load replaces the cached copy with the persisted values, keeping defaults
// for missing keys. Undecodable values are logged and ignored.
func (s *Store) Load(ctx context.Context) error {
	all, err := s.backend.All(ctx)
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	snap := Defaults()
	for _, k := range keys {
		if err := decodeKey(&snap, k, all[k]); err != nil {
			s.logger.Warn("ignoring persisted setting", zap.String("key", k), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.cur = snap
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current cached settings.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// APIURL returns the configured classification service base URL.
func (s *Store) APIURL() string {
	return s.Snapshot().APIURL
}

// AutoBlock reports whether navigations to phishing pages are redirected.
func (s *Store) AutoBlock() bool {
	return s.Snapshot().AutoBlock
}

// Stats returns the lifetime counters.
func (s *Store) Stats() Stats {
	return s.Snapshot().Stats
}

func (s *Store) SetAPIURL(ctx context.Context, apiURL string) error {
	if err := validateAPIURL(apiURL); err != nil {
		return err
	}
	return s.update(ctx, func(snap *Snapshot) error {
		snap.APIURL = apiURL
		return nil
	}, KeyAPIURL)
}

func (s *Store) SetAutoBlock(ctx context.Context, enabled bool) error {
	return s.update(ctx, func(snap *Snapshot) error {
		snap.AutoBlock = enabled
		return nil
	}, KeyAutoBlock)
}

func (s *Store) SetTheme(ctx context.Context, theme Theme) error {
	if err := validateTheme(theme); err != nil {
		return err
	}
	return s.update(ctx, func(snap *Snapshot) error {
		snap.Theme = theme
		return nil
	}, KeyTheme)
}

// SetCurrentPageScore records the safety score of the last navigated page.
func (s *Store) SetCurrentPageScore(ctx context.Context, score int) error {
	return s.update(ctx, func(snap *Snapshot) error {
		snap.CurrentPageScore = score
		return nil
	}, KeyCurrentPageScore)
}

// Increment adds one to the named counter and persists the stats. When the
// backend is an Updater the increment is applied to the persisted counters
// rather than the cached ones, so counts bumped by other processes survive.
func (s *Store) Increment(ctx context.Context, c Counter) error {
	u, ok := s.backend.(Updater)
	if !ok {
		return s.update(ctx, func(snap *Snapshot) error {
			return snap.Stats.increment(c)
		}, KeyStats)
	}

	s.mu.Lock()
	old := s.cur
	next := old
	raw, err := u.Update(ctx, KeyStats, func(raw []byte, found bool) ([]byte, error) {
		persisted := Snapshot{Stats: old.Stats}
		if found {
			if err := decodeKey(&persisted, KeyStats, raw); err != nil {
				s.logger.Warn("ignoring persisted setting", zap.String("key", KeyStats), zap.Error(err))
				persisted.Stats = old.Stats
			}
		}
		if err := persisted.Stats.increment(c); err != nil {
			return nil, err
		}
		return encodeKey(persisted, KeyStats)
	})
	if err == nil {
		err = decodeKey(&next, KeyStats, raw)
	}
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("persist %s: %w", KeyStats, err)
	}
	s.cur = next
	s.mu.Unlock()

	s.notify(Change{Key: KeyStats, Old: old, New: next})
	return nil
}

// Install resets the counters and re-enables auto-block, as on a fresh install.
func (s *Store) Install(ctx context.Context) error {
	return s.update(ctx, func(snap *Snapshot) error {
		snap.Stats = Stats{}
		snap.AutoBlock = true
		return nil
	}, KeyStats, KeyAutoBlock)
}

// Apply records a change made by another context directly in the backend.
// It updates the cached copy and notifies subscribers without writing back.
func (s *Store) Apply(key string, raw []byte) error {
	s.mu.Lock()
	old := s.cur
	next := old
	if err := decodeKey(&next, key, raw); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("Apply: %w", err)
	}
	s.cur = next
	s.mu.Unlock()

	s.notify(Change{Key: key, Old: old, New: next})
	return nil
}

// Refresh re-reads the backend and applies every value that differs from the
// cached copy, notifying subscribers once per changed key. It is the change
// feed for writes made by other processes sharing the backend.
func (s *Store) Refresh(ctx context.Context) error {
	all, err := s.backend.All(ctx)
	if err != nil {
		return fmt.Errorf("Refresh: %w", err)
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s.mu.Lock()
	old := s.cur
	next := old
	var changed []string
	for _, k := range keys {
		cached, err := encodeKey(next, k)
		if err != nil || bytes.Equal(cached, all[k]) {
			continue
		}
		before := next
		if err := decodeKey(&next, k, all[k]); err != nil {
			s.logger.Debug("ignoring persisted setting", zap.String("key", k), zap.Error(err))
			continue
		}
		if next != before {
			changed = append(changed, k)
		}
	}
	s.cur = next
	s.mu.Unlock()

	for _, k := range changed {
		s.notify(Change{Key: k, Old: old, New: next})
	}
	return nil
}

// Watch calls Refresh every interval until ctx is done.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("settings refresh failed", zap.Error(err))
			}
		}
	}
}

// Subscribe registers fn to be called after every change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) update(ctx context.Context, mutate func(*Snapshot) error, keys ...string) error {
	s.mu.Lock()
	old := s.cur
	next := old
	if err := mutate(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	for _, k := range keys {
		raw, err := encodeKey(next, k)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if err := s.backend.Put(ctx, k, raw); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persist %s: %w", k, err)
		}
	}
	s.cur = next
	s.mu.Unlock()

	for _, k := range keys {
		s.notify(Change{Key: k, Old: old, New: next})
	}
	return nil
}

func (s *Store) notify(c Change) {
	s.subsMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
