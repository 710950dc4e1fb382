package authclient

import (
	"errors"
	"sync"
)

type State int

const (
	StateLoggedOut State = iota
	StateLoggedIn
)

func (s State) String() string {
	if s == StateLoggedIn {
		return "logged_in"
	}
	return "logged_out"
}

var ErrNotLoggedIn = errors.New("authclient: not logged in")

// Session is the client-side auth state. Every token change bumps the
// generation so callers can tell whether the token they used is still current.
type Session struct {
	mu         sync.Mutex
	state      State
	tokens     Tokens
	generation uint64
	store      TokenStore
	listeners  []func(reason error)
}

// NewSession restores a previous session from the store when one exists.
func NewSession(store TokenStore) (*Session, error) {
	if store == nil {
		store = &MemoryStore{}
	}
	t, err := store.Load()
	if err != nil {
		return nil, err
	}
	s := &Session{store: store}
	if !t.empty() {
		s.state = StateLoggedIn
		s.tokens = t
	}
	return s, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) snapshot() (Tokens, uint64, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens, s.generation, s.state
}

func (s *Session) Tokens() Tokens {
	t, _, _ := s.snapshot()
	return t
}

// OnLogout registers fn to run whenever the session ends. reason is nil for an
// explicit logout.
func (s *Session) OnLogout(fn func(reason error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// LogIn moves to LoggedIn from any state.
func (s *Session) LogIn(t Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(t); err != nil {
		return err
	}
	s.state = StateLoggedIn
	s.tokens = t
	s.generation++
	return nil
}

// rotate replaces the tokens of a live session. It fails once the session has
// been logged out so a late refresh cannot resurrect it.
func (s *Session) rotate(t Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoggedIn {
		return ErrNotLoggedIn
	}
	if err := s.store.Save(t); err != nil {
		return err
	}
	s.tokens = t
	s.generation++
	return nil
}

// LogOut clears the tokens and notifies listeners. It is a no-op when
// already logged out.
func (s *Session) LogOut(reason error) {
	s.mu.Lock()
	if s.state == StateLoggedOut {
		s.mu.Unlock()
		return
	}
	s.state = StateLoggedOut
	s.tokens = Tokens{}
	s.generation++
	_ = s.store.Clear()
	listeners := append([]func(error){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(reason)
	}
}
