package casauth

import (
	"context"

	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
)

// Re-export core session types so host code only needs the root import.
type Session = domain.Session
type Attributes = domain.Attributes

// sessionContextKey is the context key for the authenticated session.
type sessionContextKey struct{}

// SessionFromContext returns the authenticated session attached to the
// request context, or nil if the request is not authenticated.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*domain.Session)
	return sess
}

// SessionValues exposes the session under the configured key names: the
// principal under the session-user key and, when attributes are present,
// the attributes mapping under the session-info key.
func (s *CASAuth) SessionValues(ctx context.Context) map[string]any {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return nil
	}
	values := map[string]any{
		s.SessionUserKey: sess.Principal,
	}
	if sess.Attributes != nil {
		values[s.SessionInfoKey] = sess.Attributes
	}
	return values
}
