package main

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"simplecrop/session"
)

type cropSession struct {
	*session.Session
	ID        string
	Filename  string
	Preview   *PreviewRenderer
	CreatedAt time.Time
}

// sessionStore keeps one crop session per open image. Each session
// serializes its own operations.
type sessionStore struct {
	mu    sync.RWMutex
	items map[string]*cropSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{items: make(map[string]*cropSession)}
}

func (s *sessionStore) Add(filename string, sess *session.Session, preview *PreviewRenderer) *cropSession {
	cs := &cropSession{
		Session:   sess,
		ID:        uuid.NewString(),
		Filename:  filename,
		Preview:   preview,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[cs.ID] = cs
	return cs
}

func (s *sessionStore) Get(id string) (*cropSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.items[id]
	return cs, ok
}

func (s *sessionStore) Remove(id string) bool {
	s.mu.Lock()
	cs, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()
	if ok {
		cs.Close()
	}
	return ok
}

func (s *sessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *sessionStore) CloseAll() {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]*cropSession)
	s.mu.Unlock()
	for _, cs := range items {
		cs.Close()
	}
}
