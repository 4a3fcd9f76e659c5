package repository

import (
	"sync"

	authdomain "mailvault-backend/internal/auth/domain"
	ingestdomain "mailvault-backend/internal/ingest/domain"
)

// SessionStore keeps live sessions and their mail sources. Everything stays
// in memory: provider credentials must not outlive the process.
type SessionStore interface {
	Save(session *authdomain.Session, source ingestdomain.MailSource)
	// Find returns the session and its mail source, or (nil, nil) when the
	// session is unknown or expired. Expired sessions are evicted on lookup.
	Find(id string) (*authdomain.Session, ingestdomain.MailSource)
	Delete(id string)
}

type sessionEntry struct {
	session *authdomain.Session
	source  ingestdomain.MailSource
}

type sessionStore struct {
	mu      sync.RWMutex
	entries map[string]sessionEntry
}

// NewSessionStore creates a new instance of sessionStore
func NewSessionStore() SessionStore {
	return &sessionStore{
		entries: make(map[string]sessionEntry),
	}
}

func (s *sessionStore) Save(session *authdomain.Session, source ingestdomain.MailSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[session.ID] = sessionEntry{session: session, source: source}
}

func (s *sessionStore) Find(id string) (*authdomain.Session, ingestdomain.MailSource) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if entry.session.Expired() {
		s.Delete(id)
		return nil, nil
	}

	return entry.session, entry.source
}

func (s *sessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}
