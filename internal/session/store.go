// Package session tracks the client's single session identity and its
// Anonymous -> Authenticated -> Expired lifecycle.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/paper-piper/Dini/internal/domain"
	"github.com/paper-piper/Dini/pkg/logger"
)

type Persister interface {
	Load() (domain.Session, bool, error)
	Save(s domain.Session) error
	Clear() error
}

// Listener observes every state transition. Listeners run synchronously, in
// transition order, and may call Current or State but must not start another
// transition.
type Listener func(state domain.SessionState, s domain.Session)

// Store is the only writer of session state. Transitions are serialized by
// transitionMu, which is held while listeners run; reads only take mu.
type Store struct {
	persister Persister

	transitionMu sync.Mutex
	listeners    []Listener

	mu      sync.Mutex
	state   domain.SessionState
	current domain.Session
}

func NewStore(persister Persister) *Store {
	return &Store{
		persister: persister,
		state:     domain.Anonymous,
	}
}

// Restore loads the persisted session, if any, and reports whether the store
// is now Authenticated.
func (s *Store) Restore() (bool, error) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	sess, ok, err := s.persister.Load()
	if err != nil {
		return false, fmt.Errorf("error restoring session: %w", err)
	}
	if !ok {
		return false, nil
	}

	s.set(domain.Authenticated, sess)
	logger.Log.Info("session restored", logger.String("username", sess.Username))
	return true, nil
}

// Login atomically replaces whatever session was tracked before.
func (s *Store) Login(sess domain.Session) error {
	if sess.ID == "" || sess.Username == "" {
		return errors.New("session requires username and id")
	}

	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	if err := s.persister.Save(sess); err != nil {
		return fmt.Errorf("error persisting session: %w", err)
	}

	s.set(domain.Authenticated, sess)
	logger.Log.Info("session authenticated", logger.String("username", sess.Username))
	return nil
}

func (s *Store) Logout() error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	err := s.persister.Clear()
	s.set(domain.Anonymous, domain.Session{})

	if err != nil {
		return fmt.Errorf("error clearing persisted session: %w", err)
	}
	return nil
}

// Expire demotes the session to Expired if sessionID is still the current
// Authenticated session. It reports whether a transition happened, so
// repeated rejections of the same session expire it only once.
func (s *Store) Expire(sessionID string) bool {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	cur, ok := s.Current()
	if !ok || cur.ID != sessionID {
		return false
	}

	if err := s.persister.Clear(); err != nil {
		logger.Log.Error("error clearing expired session", logger.Error(err))
	}
	s.set(domain.Expired, domain.Session{})

	logger.Log.Warn("session expired", logger.String("username", cur.Username))
	return true
}

// Acknowledge moves an Expired store back to Anonymous.
func (s *Store) Acknowledge() {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	if s.State() != domain.Expired {
		return
	}
	s.set(domain.Anonymous, domain.Session{})
}

// Current returns the session only while Authenticated.
func (s *Store) Current() (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.Authenticated {
		return domain.Session{}, false
	}
	return s.current, true
}

func (s *Store) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Subscribe(l Listener) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// set must be called with transitionMu held.
func (s *Store) set(state domain.SessionState, sess domain.Session) {
	s.mu.Lock()
	s.state = state
	s.current = sess
	s.mu.Unlock()

	for _, l := range s.listeners {
		l(state, sess)
	}
}
