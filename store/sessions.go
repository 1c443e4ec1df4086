package store

import "sync"

// Handle identifies a live client connection.
type Handle interface {
	ID() string
}

// closable is implemented by handles that know when their connection was torn down.
type closable interface {
	Closed() bool
}

// Sessions binds usernames to connection handles, one to one.
type Sessions struct {
	mu     sync.RWMutex
	byUser map[string]Handle
	byConn map[string]string
}

func NewSessions() *Sessions {
	return &Sessions{
		byUser: make(map[string]Handle),
		byConn: make(map[string]string),
	}
}

// Login binds username to h. It fails if either side already has a session or h is closed.
// The closed check shares the lock with EndByHandle.
func (s *Sessions) Login(username string, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := h.(closable); ok && c.Closed() {
		return ErrConnectionClosed
	}
	if _, ok := s.byUser[username]; ok {
		return ErrAlreadyLoggedIn
	}
	if _, ok := s.byConn[h.ID()]; ok {
		return ErrConnectionBound
	}
	s.byUser[username] = h
	s.byConn[h.ID()] = username
	return nil
}

// Logout ends username's session if it is bound to h.
func (s *Sessions) Logout(username string, h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byUser[username]
	if !ok || cur.ID() != h.ID() {
		return ErrNotLoggedIn
	}
	delete(s.byUser, username)
	delete(s.byConn, h.ID())
	return nil
}

// EndByHandle drops whatever session h carries and returns its username.
func (s *Sessions) EndByHandle(h Handle) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.byConn[h.ID()]
	if !ok {
		return "", false
	}
	delete(s.byConn, h.ID())
	delete(s.byUser, username)
	return username, true
}

// Owner returns the username bound to h.
func (s *Sessions) Owner(h Handle) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	username, ok := s.byConn[h.ID()]
	return username, ok
}

// Online reports whether username has a live session.
func (s *Sessions) Online(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byUser[username]
	return ok
}

// Count returns the number of live sessions.
func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser)
}
