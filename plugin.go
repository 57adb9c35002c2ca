// Package casauth provides a Caddy v2 plugin for Central Authentication
// Service (CAS) single sign-on: it redirects unauthenticated visitors to the
// CAS server, validates returned service tickets, establishes sessions and
// handles logout including asynchronous single-logout notifications.
package casauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"

	"github.com/schl3ck/cas-authentication-middleware/internal/adapters/driven/cas"
	"github.com/schl3ck/cas-authentication-middleware/internal/adapters/driven/session"
	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
	"github.com/schl3ck/cas-authentication-middleware/internal/core/ports"
)

const Version = "1.0.0"

// Paths owned by the middleware. The callback path is where the CAS server
// redirects the browser with a ticket and where it pushes single-logout
// notifications.
const (
	callbackPath = "/cas/callback"
	logoutPath   = "/cas/logout"
)

// returnToCookieName holds the pre-login return target for one redirect
// cycle; it is cleared as soon as it is consumed.
const returnToCookieName = "cas_return_to"

// maxLogoutBody caps the size of a pushed single-logout document.
const maxLogoutBody = 1 << 20

func init() {
	caddy.RegisterModule(CASAuth{})
	httpcaddyfile.RegisterHandlerDirective("cas_auth", parseCaddyfile)
}

// CASAuth is a Caddy HTTP handler module that protects routes with CAS
// single sign-on.
type CASAuth struct {
	// Configuration embedded directly
	Config

	// Runtime state (not serialized)
	sessionStore    ports.SessionStore
	validator       ports.TicketValidator
	metrics         MetricsRecorder
	logger          *zap.Logger
	serverURL       *url.URL
	serviceURL      *url.URL // nil when derived per request
	sessionDuration time.Duration
	devAttributes   domain.Attributes
}

// CaddyModule returns the Caddy module information.
func (CASAuth) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.cas_auth",
		New: func() caddy.Module { return new(CASAuth) },
	}
}

// Provision sets up the module. The configuration is frozen here; every
// component receives what it needs and nothing runs before this returns.
func (s *CASAuth) Provision(ctx caddy.Context) error {
	s.logger = ctx.Logger()

	s.Config.SetDefaults()
	if err := s.Config.Validate(); err != nil {
		return err
	}

	serverURL, err := url.Parse(s.CASServerURL)
	if err != nil {
		return domain.ConfigError("cas_server_url must be an absolute URL")
	}
	s.serverURL = serverURL

	if s.ServiceURL != "" {
		serviceURL, err := url.Parse(s.ServiceURL)
		if err != nil {
			return domain.ConfigError("service_url must be an absolute URL")
		}
		s.serviceURL = serviceURL
	}

	s.sessionDuration, err = time.ParseDuration(s.SessionDuration)
	if err != nil {
		return domain.ConfigError("session_duration is not a valid duration")
	}

	switch s.SessionStoreType {
	case StoreJWT:
		privateKey, err := session.LoadPrivateKey(s.JWTKeyFile)
		if err != nil {
			return domain.ConfigError("load jwt key file: " + err.Error())
		}
		s.sessionStore = session.NewJWTStore(privateKey, s.sessionDuration)
	default:
		s.sessionStore = session.NewMemoryStore(s.sessionDuration)
	}

	s.validator = cas.NewServiceTicketValidator(&http.Client{}, serverURL, s.Version, s.logger)

	if s.MetricsEnabled {
		s.metrics = NewPrometheusMetricsRecorder()
	} else {
		s.metrics = NewNoopMetricsRecorder()
	}

	if s.DevMode {
		s.devAttributes = make(domain.Attributes, len(s.DevModeInfo))
		for k, v := range s.DevModeInfo {
			s.devAttributes[k] = v
		}
		s.getLogger().Warn("dev mode enabled, CAS server will not be contacted",
			zap.String("dev_mode_user", s.DevModeUser))
	}

	s.getLogger().Info("cas authentication provisioned",
		zap.String("cas_server_url", s.CASServerURL),
		zap.String("protocol_version", s.Config.Version),
		zap.String("session_store", s.SessionStoreType),
		zap.String("version", Version),
	)

	return nil
}

// Validate ensures the module's configuration is valid.
func (s *CASAuth) Validate() error {
	return s.Config.Validate()
}

// Cleanup releases the session store's background resources.
func (s *CASAuth) Cleanup() error {
	if store, ok := s.sessionStore.(*session.MemoryStore); ok {
		return store.Close()
	}
	return nil
}

// ServeHTTP implements caddyhttp.MiddlewareHandler.
func (s *CASAuth) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	switch {
	case r.URL.Path == callbackPath && r.Method == http.MethodPost:
		return s.handleSingleLogout(w, r)
	case r.URL.Path == callbackPath && r.Method == http.MethodGet:
		return s.handleCallback(w, r)
	case r.URL.Path == logoutPath && r.Method == http.MethodGet:
		return s.handleLogout(w, r)
	}

	// Strip the exported header so clients cannot spoof the principal.
	if s.UserHeader != "" {
		r.Header.Del(s.UserHeader)
	}

	// Dev-mode bypass: a fixed identity, no CAS round trip.
	if s.DevMode {
		sess := &domain.Session{
			Principal:  s.DevModeUser,
			Attributes: s.devAttributes,
		}
		return next.ServeHTTP(w, s.withSession(r, sess))
	}

	if cookie, err := r.Cookie(s.SessionCookieName); err == nil && cookie.Value != "" {
		sess, err := s.sessionStore.Get(cookie.Value)
		if err == nil && sess.Authenticated() {
			// Already authenticated: no redirect, no CAS contact.
			s.metrics.RecordSessionValidation(true)
			return next.ServeHTTP(w, s.withSession(r, sess))
		}
		s.metrics.RecordSessionValidation(false)
	}

	s.redirectToLogin(w, r)
	return nil
}

// redirectToLogin persists the return-to target in a transient cookie and
// sends the browser to the CAS login endpoint. The renew parameter appears
// only when configured true, as the literal string "true".
func (s *CASAuth) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := r.URL.Query().Get("returnTo")
	if returnTo == "" {
		returnTo = r.URL.RequestURI()
	}
	returnTo = validateReturnTo(returnTo)

	http.SetCookie(w, &http.Cookie{
		Name:     returnToCookieName,
		Value:    url.QueryEscape(returnTo),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	loginURL := *s.serverURL
	loginURL.Path = path.Join(loginURL.Path, "login")
	q := url.Values{}
	q.Set("service", s.resolveServiceURL(r).String())
	if s.Renew {
		q.Set("renew", "true")
	}
	loginURL.RawQuery = q.Encode()

	http.Redirect(w, r, loginURL.String(), http.StatusFound)
}

// handleCallback processes the redirected-back request carrying a service
// ticket. An absent ticket is still presented to the CAS server, which
// rejects it; the middleware owns no ticket syntax rules.
func (s *CASAuth) handleCallback(w http.ResponseWriter, r *http.Request) error {
	ticket := r.URL.Query().Get("ticket")

	auth, err := s.validator.Validate(r.Context(), s.resolveServiceURL(r), ticket)
	if err != nil {
		s.metrics.RecordAuthAttempt(false)
		return s.renderValidationError(w, err)
	}
	s.metrics.RecordAuthAttempt(true)

	// Session fields are written in one store call: all or nothing. The
	// cookie is only set after the store accepted the session.
	sess := &domain.Session{
		Principal:  auth.Principal,
		Attributes: auth.Attributes,
		Ticket:     ticket,
	}
	token, err := s.sessionStore.Create(sess)
	if err != nil {
		s.getLogger().Error("session creation failed", zap.Error(err))
		s.renderError(w, domain.ServiceError("Failed to create session"))
		return nil
	}
	s.metrics.RecordSessionCreated()

	s.getLogger().Info("cas authentication successful",
		zap.String("principal", auth.Principal),
	)

	s.setSessionCookie(w, r, token)
	http.Redirect(w, r, s.consumeReturnTo(w, r), http.StatusFound)
	return nil
}

// renderValidationError maps a validation failure onto an HTTP response.
// The error is surfaced, never retried: retry policy belongs to the caller.
func (s *CASAuth) renderValidationError(w http.ResponseWriter, err error) error {
	var authErr *domain.AuthenticationError
	if errors.As(err, &authErr) {
		s.getLogger().Warn("cas rejected ticket",
			zap.String("code", authErr.Code),
			zap.String("description", authErr.Description),
		)
		s.renderError(w, domain.AuthError("CAS authentication failed", authErr))
		return nil
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		s.getLogger().Error("ticket validation failed",
			zap.String("code", appErr.Code.String()),
			zap.Error(err),
		)
		s.renderError(w, appErr)
		return nil
	}

	s.getLogger().Error("ticket validation failed", zap.Error(err))
	s.renderError(w, domain.ServiceError("Ticket validation failed"))
	return nil
}

// handleLogout tears down the local session and redirects to the CAS logout
// endpoint. Store cleanup errors are logged, never surfaced: logout must
// succeed from the browser's perspective.
func (s *CASAuth) handleLogout(w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(s.SessionCookieName); err == nil && cookie.Value != "" {
		var err error
		if s.DestroySession {
			err = s.sessionStore.Destroy(cookie.Value)
		} else {
			err = s.sessionStore.ClearAuth(cookie.Value)
		}
		if err != nil && !errors.Is(err, ports.ErrSessionNotFound) {
			s.getLogger().Warn("session cleanup failed on logout", zap.Error(err))
		}
	}

	s.clearSessionCookie(w, r)

	logoutURL := *s.serverURL
	logoutURL.Path = path.Join(logoutURL.Path, "logout")
	http.Redirect(w, r, logoutURL.String(), http.StatusFound)
	return nil
}

// handleSingleLogout processes a logout notification pushed by the CAS
// server, out of band of any browser session. The session is identified
// only by the service ticket it was established from.
func (s *CASAuth) handleSingleLogout(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxLogoutBody)

	// CAS servers POST the document as the logoutRequest form field;
	// some push the raw XML body instead.
	doc := r.PostFormValue("logoutRequest")
	if doc == "" {
		data, err := io.ReadAll(r.Body)
		if err == nil {
			doc = string(data)
		}
	}

	ticket, err := cas.ExtractLogoutTicket([]byte(doc))
	if err != nil {
		s.metrics.RecordSingleLogout(false)
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			s.getLogger().Warn("rejected single-logout document",
				zap.String("code", appErr.Code.String()),
			)
			s.renderJSONError(w, appErr)
			return nil
		}
		s.renderJSONError(w, domain.ServiceError("Failed to process logout notification"))
		return nil
	}

	// Invalidation failures are logged and swallowed; the CAS server gets
	// a 200 either way, it will not retry on our behalf.
	if err := s.sessionStore.DestroyByTicket(ticket); err != nil {
		s.getLogger().Warn("single logout: session invalidation failed",
			zap.String("ticket", ticket),
			zap.Error(err),
		)
	} else {
		s.getLogger().Info("single logout processed", zap.String("ticket", ticket))
	}

	s.metrics.RecordSingleLogout(true)
	w.WriteHeader(http.StatusOK)
	return nil
}

// consumeReturnTo reads and clears the transient return-to cookie.
func (s *CASAuth) consumeReturnTo(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(returnToCookieName)
	if err != nil || cookie.Value == "" {
		return "/"
	}

	http.SetCookie(w, &http.Cookie{
		Name:     returnToCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1, // Delete cookie
	})

	returnTo, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "/"
	}
	return validateReturnTo(returnTo)
}

// withSession attaches the session to the request context and exports the
// principal header when configured.
func (s *CASAuth) withSession(r *http.Request, sess *domain.Session) *http.Request {
	if s.UserHeader != "" {
		r.Header.Set(s.UserHeader, sanitizeHeaderValue(sess.Principal))
	}
	ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
	return r.WithContext(ctx)
}

// resolveServiceURL computes the service URL from the request and
// configuration.
func (s *CASAuth) resolveServiceURL(r *http.Request) *url.URL {
	if s.serviceURL != nil {
		u := *s.serviceURL
		return &u
	}

	scheme := "https"
	if r.TLS == nil {
		// Check X-Forwarded-Proto header
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else {
			scheme = "http"
		}
	}

	return &url.URL{
		Scheme: scheme,
		Host:   r.Host,
		Path:   callbackPath,
	}
}

// setSessionCookie sets the session cookie on the response.
func (s *CASAuth) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.sessionDuration.Seconds()),
	})
}

// clearSessionCookie deletes the session cookie.
func (s *CASAuth) clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1, // Delete cookie
	})
}

// renderError renders an AppError as a plain HTTP error response.
func (s *CASAuth) renderError(w http.ResponseWriter, err *domain.AppError) {
	http.Error(w, err.Message, err.Code.HTTPStatus())
}

// renderJSONError renders an AppError as JSON for protocol endpoints.
func (s *CASAuth) renderJSONError(w http.ResponseWriter, err *domain.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code.HTTPStatus())
	json.NewEncoder(w).Encode(domain.NewJSONErrorResponse(err))
}

// getLogger returns the logger, or a no-op logger if not set.
// This allows tests to run without calling Provision().
func (s *CASAuth) getLogger() *zap.Logger {
	if s.logger != nil {
		return s.logger
	}
	return zap.NewNop()
}

// validateReturnTo ensures the return-to target is a safe relative path.
// Returns "/" for any invalid, absolute, or potentially dangerous URLs.
// This prevents open redirect vulnerabilities.
func validateReturnTo(returnTo string) string {
	// Empty or whitespace-only defaults to root
	returnTo = strings.TrimSpace(returnTo)
	if returnTo == "" {
		return "/"
	}

	// Must start with single forward slash (relative path)
	// Reject protocol-relative URLs (//evil.com)
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		return "/"
	}

	// Parse to detect schemes and other tricks
	parsed, err := url.Parse(returnTo)
	if err != nil {
		return "/"
	}

	// Reject if it has a scheme (http:, javascript:, data:, etc.)
	if parsed.Scheme != "" {
		return "/"
	}

	// Reject if it has a host (shouldn't happen with leading / but be safe)
	if parsed.Host != "" {
		return "/"
	}

	// Reject paths with newlines (header injection)
	if strings.ContainsAny(returnTo, "\r\n") {
		return "/"
	}

	// Check for encoded characters that could bypass validation
	// Decode and re-check for protocol-relative URLs
	decoded, err := url.QueryUnescape(returnTo)
	if err != nil {
		return "/"
	}
	if strings.HasPrefix(decoded, "//") {
		return "/"
	}

	return returnTo
}

// sanitizeHeaderValue removes characters that would allow header injection.
func sanitizeHeaderValue(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == 0 {
			return -1
		}
		return r
	}, v)
}

// Interface guards
var (
	_ caddy.Module                = (*CASAuth)(nil)
	_ caddy.Provisioner           = (*CASAuth)(nil)
	_ caddy.Validator             = (*CASAuth)(nil)
	_ caddy.CleanerUpper          = (*CASAuth)(nil)
	_ caddyhttp.MiddlewareHandler = (*CASAuth)(nil)
	_ caddyfile.Unmarshaler       = (*CASAuth)(nil)
)
