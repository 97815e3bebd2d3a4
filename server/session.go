package server

import (
	"errors"
	"sync"
	"time"

	"medagentx/form"
)

const (
	// DefaultSessionTTL is how long an untouched session is kept.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultMaxSessions caps the number of live sessions.
	DefaultMaxSessions = 10000
)

var errSessionsFull = errors.New("too many active sessions")

type session struct {
	ctrl     *form.Controller
	lastSeen time.Time
}

// sessionStore maps session ids to form controllers. Idle sessions expire after
// ttl; once max is reached the least recently used idle session is evicted.
// Sessions with a submission in flight are never evicted.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	max      int
	now      func() time.Time
}

func newStore(ttl time.Duration, maxSessions int) *sessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &sessionStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
		max:      maxSessions,
		now:      time.Now,
	}
}

// get returns a live session's controller and marks it used.
func (s *sessionStore) get(id string) (*form.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(sess, now) {
		delete(s.sessions, id)
		return nil, false
	}
	sess.lastSeen = now
	return sess.ctrl, true
}

func (s *sessionStore) getOrCreate(id string, create func() (*form.Controller, error)) (*form.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if sess, ok := s.sessions[id]; ok && !s.expired(sess, now) {
		sess.lastSeen = now
		return sess.ctrl, nil
	}

	s.sweep(now)
	if len(s.sessions) >= s.max && !s.evictOldest() {
		return nil, errSessionsFull
	}
	c, err := create()
	if err != nil {
		return nil, err
	}
	s.sessions[id] = &session{ctrl: c, lastSeen: now}
	return c, nil
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) expired(sess *session, now time.Time) bool {
	return now.Sub(sess.lastSeen) > s.ttl && !sess.ctrl.View().Loading
}

func (s *sessionStore) sweep(now time.Time) {
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
		}
	}
}

func (s *sessionStore) evictOldest() bool {
	var (
		oldestID string
		oldest   *session
	)
	for id, sess := range s.sessions {
		if sess.ctrl.View().Loading {
			continue
		}
		if oldest == nil || sess.lastSeen.Before(oldest.lastSeen) {
			oldestID, oldest = id, sess
		}
	}
	if oldest == nil {
		return false
	}
	delete(s.sessions, oldestID)
	return true
}
