package domain

import (
	"time"
)

// Session holds authenticated user information.
// This is the core domain model - it has no external dependencies.
type Session struct {
	// Principal is the verified identity returned by ticket validation.
	Principal string

	// Attributes contains the attribute mapping from the validation
	// response, if the CAS server supplied one.
	Attributes Attributes

	// Ticket is the service ticket this session was established from.
	// It is the key under which single-logout notifications identify
	// the session.
	Ticket string

	// IssuedAt is when the session was created.
	IssuedAt time.Time

	// ExpiresAt is when the session expires.
	ExpiresAt time.Time
}

// Authenticated reports whether the session carries a verified identity.
// A session whose authentication state was cleared on logout remains in
// the store but no longer authenticates requests.
func (s *Session) Authenticated() bool {
	return s != nil && s.Principal != ""
}
