// Package session provides the in-memory per-identity session store.
//
// Sessions live for the process lifetime only; all durable state is held by
// the remote profile store. Memory grows with the number of distinct
// identities seen, which is the documented bound for the target deployment
// scale. There is no eviction.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vedaverse/followerbot/internal/models"
)

// Store maps user identities to mutable session data. All operations are
// safe under concurrent access. Per-identity mutual exclusion is provided
// by WithLock; events for different identities never share a lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[models.UserID]*models.Session
	locks    map[models.UserID]*sync.Mutex
}

// New creates an empty session store.
func New() *Store {
	return &Store{
		sessions: make(map[models.UserID]*models.Session),
		locks:    make(map[models.UserID]*sync.Mutex),
	}
}

// Get returns a snapshot copy of the session for the identity, if present.
func (s *Store) Get(id models.UserID) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	return cloneSession(sess), true
}

// GetOrCreate returns a snapshot of the session for the identity, creating
// a fresh NotRegistered session if none exists yet.
func (s *Store) GetOrCreate(id models.UserID) models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSession(s.getOrCreateLocked(id))
}

// Update runs the mutator against the identity's session under its
// per-identity lock. It is a convenience wrapper over WithLock for callers
// that only mutate in-memory state.
func (s *Store) Update(id models.UserID, mutate func(*models.Session)) {
	_ = s.WithLock(id, func(sess *models.Session) error {
		mutate(sess)
		return nil
	})
}

// WithLock acquires the identity's lock, then runs fn with the live session
// (created on demand). The lock spans the whole call, so fn may perform the
// full read-state, decide, remote-call, write-state critical section without
// a second in-flight transition for the same identity interleaving. Sessions
// for other identities remain fully concurrent.
func (s *Store) WithLock(id models.UserID, fn func(*models.Session) error) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	sess := s.getOrCreateLocked(id)
	s.mu.Unlock()

	err := fn(sess)
	if err != nil {
		slog.Debug("session WithLock mutator returned error", "user_id", id, "error", err)
	}
	return err
}

// Len returns the number of distinct identities currently tracked.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) lockFor(id models.UserID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// getOrCreateLocked requires s.mu to be held.
func (s *Store) getOrCreateLocked(id models.UserID) *models.Session {
	sess, ok := s.sessions[id]
	if !ok {
		now := time.Now()
		sess = &models.Session{
			UserID:    id,
			State:     models.StateNotRegistered,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.sessions[id] = sess
		slog.Debug("session created", "user_id", id)
	}
	return sess
}

func cloneSession(sess *models.Session) models.Session {
	out := *sess
	if sess.Attribution != nil {
		out.Attribution = make(map[string]string, len(sess.Attribution))
		for k, v := range sess.Attribution {
			out.Attribution[k] = v
		}
	}
	if sess.NewsPreference != nil {
		pref := *sess.NewsPreference
		out.NewsPreference = &pref
	}
	return out
}
