package ports

import (
	"errors"

	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
)

// SessionStore is the port interface for session management.
type SessionStore interface {
	// Create creates a new session and returns a token. The session is
	// written atomically: a token is only returned once every field,
	// including the ticket index entry, is in place.
	Create(session *domain.Session) (string, error)

	// Get retrieves a session by token. Returns ErrSessionNotFound if
	// the token is invalid, expired, or not found.
	Get(token string) (*domain.Session, error)

	// ClearAuth removes the authentication state (principal, attributes,
	// ticket) from a session while keeping the session record itself.
	ClearAuth(token string) error

	// Destroy removes a session wholesale. For stateless implementations
	// (JWT), this may be a no-op as actual cookie removal happens in the
	// HTTP layer.
	Destroy(token string) error

	// DestroyByTicket removes the session established from the given
	// service ticket. This is the reverse index single-logout depends on.
	// Implementations without a server-side index return
	// ErrTicketLookupUnsupported.
	DestroyByTicket(ticket string) error
}

// ErrSessionNotFound is returned when a session cannot be found or is invalid.
var ErrSessionNotFound = errors.New("session not found")

// ErrTicketLookupUnsupported is returned by stores that keep no
// ticket-to-session index and therefore cannot honor single logout.
var ErrTicketLookupUnsupported = errors.New("ticket lookup not supported by session store")
