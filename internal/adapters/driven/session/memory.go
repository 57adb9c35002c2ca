// Package session provides SessionStore adapters: a server-side in-memory
// store (the default, required for single logout) and a stateless JWT
// cookie store.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
	"github.com/schl3ck/cas-authentication-middleware/internal/core/ports"
)

// sweepInterval is how often the background sweeper evicts expired sessions.
const sweepInterval = time.Minute

// MemoryStore is an in-memory SessionStore keyed by opaque tokens. It also
// maintains the ticket-to-token reverse index written at session creation,
// which makes single-logout notifications actionable.
//
// All methods are safe for concurrent use. Expired sessions are rejected on
// read and evicted by a background sweeper; Close stops the sweeper.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	byTicket map[string]string
	duration time.Duration
	done     chan struct{}
	closed   sync.Once
}

// NewMemoryStore creates a memory store whose sessions expire after the
// given duration.
func NewMemoryStore(duration time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*domain.Session),
		byTicket: make(map[string]string),
		duration: duration,
		done:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Create stores the session and returns its token. The session record and
// the ticket index entry are written under one lock: either both exist or
// neither does.
func (s *MemoryStore) Create(session *domain.Session) (string, error) {
	token := uuid.NewString()
	now := time.Now()

	stored := *session
	stored.IssuedAt = now
	stored.ExpiresAt = now.Add(s.duration)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = &stored
	if stored.Ticket != "" {
		s.byTicket[stored.Ticket] = token
	}
	return token, nil
}

// Get retrieves a session by token.
func (s *MemoryStore) Get(token string) (*domain.Session, error) {
	s.mu.RLock()
	stored, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ports.ErrSessionNotFound
	}
	if time.Now().After(stored.ExpiresAt) {
		// Lazy eviction; the sweeper handles sessions nobody reads.
		_ = s.Destroy(token)
		return nil, ports.ErrSessionNotFound
	}

	copied := *stored
	return &copied, nil
}

// ClearAuth removes the authentication state from a session while keeping
// the session record alive until it expires.
func (s *MemoryStore) ClearAuth(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[token]
	if !ok {
		return ports.ErrSessionNotFound
	}
	if stored.Ticket != "" {
		delete(s.byTicket, stored.Ticket)
	}
	stored.Principal = ""
	stored.Attributes = nil
	stored.Ticket = ""
	return nil
}

// Destroy removes a session wholesale, including its ticket index entry.
func (s *MemoryStore) Destroy(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[token]
	if !ok {
		return ports.ErrSessionNotFound
	}
	if stored.Ticket != "" {
		delete(s.byTicket, stored.Ticket)
	}
	delete(s.sessions, token)
	return nil
}

// DestroyByTicket removes the session established from the given ticket.
// Unknown tickets are not an error: the CAS server may notify logout for
// sessions that already expired locally.
func (s *MemoryStore) DestroyByTicket(ticket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.byTicket[ticket]
	if !ok {
		return nil
	}
	delete(s.byTicket, ticket)
	delete(s.sessions, token)
	return nil
}

// Len reports the number of live session records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background sweeper. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closed.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for token, stored := range s.sessions {
				if now.After(stored.ExpiresAt) {
					if stored.Ticket != "" {
						delete(s.byTicket, stored.Ticket)
					}
					delete(s.sessions, token)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Ensure MemoryStore implements ports.SessionStore
var _ ports.SessionStore = (*MemoryStore)(nil)
