//go:build unit

package casauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/caddyserver/caddy/v2/modules/caddyhttp"

	"github.com/schl3ck/cas-authentication-middleware/internal/adapters/driven/session"
	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
	"github.com/schl3ck/cas-authentication-middleware/internal/core/ports"
)

// stubValidator is a test double for TicketValidator.
type stubValidator struct {
	auth  *domain.Authentication
	err   error
	calls int

	gotTicket  string
	gotService *url.URL
}

func (v *stubValidator) Validate(ctx context.Context, serviceURL *url.URL, ticket string) (*domain.Authentication, error) {
	v.calls++
	v.gotTicket = ticket
	v.gotService = serviceURL
	return v.auth, v.err
}

var _ ports.TicketValidator = (*stubValidator)(nil)

// mockNextHandler is a test double for the next handler in the middleware chain.
type mockNextHandler struct {
	called  bool
	request *http.Request
}

func (m *mockNextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) error {
	m.called = true
	m.request = r
	w.WriteHeader(http.StatusOK)
	return nil
}

var _ caddyhttp.Handler = (*mockNextHandler)(nil)

// newTestCASAuth assembles a handler without going through Provision, so
// tests run outside a Caddy context.
func newTestCASAuth(t *testing.T, validator ports.TicketValidator) (*CASAuth, *session.MemoryStore) {
	t.Helper()

	s := &CASAuth{
		Config: Config{CASServerURL: "https://cas.example.com/cas"},
	}
	s.Config.SetDefaults()

	serverURL, err := url.Parse(s.CASServerURL)
	if err != nil {
		t.Fatalf("parse cas server url: %v", err)
	}
	s.serverURL = serverURL

	store := session.NewMemoryStore(time.Hour)
	t.Cleanup(func() { store.Close() })
	s.sessionStore = store
	s.validator = validator
	s.metrics = NewNoopMetricsRecorder()
	s.sessionDuration = time.Hour

	return s, store
}

// authenticate creates a session in the store and returns a cookie for it.
func authenticate(t *testing.T, store *session.MemoryStore, sess *domain.Session) *http.Cookie {
	t.Helper()
	token, err := store.Create(sess)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &http.Cookie{Name: "cas_session", Value: token}
}

func TestServeHTTP_Unauthenticated_RedirectsToLogin(t *testing.T) {
	validator := &stubValidator{}
	s, _ := newTestCASAuth(t, validator)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports?q=1", nil)
	w := httptest.NewRecorder()
	next := &mockNextHandler{}

	if err := s.ServeHTTP(w, r, next); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if next.called {
		t.Error("next handler should not run for unauthenticated requests")
	}
	if validator.calls != 0 {
		t.Error("CAS server should not be contacted on redirect")
	}
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}

	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if loc.Host != "cas.example.com" || loc.Path != "/cas/login" {
		t.Errorf("redirected to %q, want the CAS login endpoint", loc)
	}

	q := loc.Query()
	if q.Get("service") == "" {
		t.Error("login redirect is missing the service parameter")
	}
	if _, ok := q["renew"]; ok {
		t.Error("renew parameter must be absent when renew is not configured")
	}

	// The pre-login target is preserved for the post-callback redirect.
	var returnTo *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "cas_return_to" {
			returnTo = c
		}
	}
	if returnTo == nil {
		t.Fatal("return-to cookie not set")
	}
	if got, _ := url.QueryUnescape(returnTo.Value); got != "/reports?q=1" {
		t.Errorf("return-to = %q, want %q", got, "/reports?q=1")
	}
}

func TestServeHTTP_RenewConfigured_AddsRenewParameter(t *testing.T) {
	s, _ := newTestCASAuth(t, &stubValidator{})
	s.Renew = true

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	loc, _ := url.Parse(w.Header().Get("Location"))
	if loc.Query().Get("renew") != "true" {
		t.Errorf("renew = %q, want literal %q", loc.Query().Get("renew"), "true")
	}
}

func TestServeHTTP_Authenticated_PassesThrough(t *testing.T) {
	validator := &stubValidator{}
	s, store := newTestCASAuth(t, validator)
	s.UserHeader = "X-Cas-User"

	cookie := authenticate(t, store, &domain.Session{
		Principal:  "alice",
		Attributes: domain.Attributes{"email": "alice@x.com"},
	})

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports", nil)
	r.AddCookie(cookie)
	// A spoofed identity header must never survive.
	r.Header.Set("X-Cas-User", "mallory")
	w := httptest.NewRecorder()
	next := &mockNextHandler{}

	if err := s.ServeHTTP(w, r, next); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if !next.called {
		t.Fatal("next handler should run for authenticated requests")
	}
	if validator.calls != 0 {
		t.Error("an existing session must not trigger ticket validation")
	}
	if got := next.request.Header.Get("X-Cas-User"); got != "alice" {
		t.Errorf("X-Cas-User = %q, want %q", got, "alice")
	}

	sess := SessionFromContext(next.request.Context())
	if sess == nil || sess.Principal != "alice" {
		t.Errorf("session in context = %+v, want principal alice", sess)
	}
}

func TestServeHTTP_ExpiredCookie_RedirectsAgain(t *testing.T) {
	s, _ := newTestCASAuth(t, &stubValidator{})

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/", nil)
	r.AddCookie(&http.Cookie{Name: "cas_session", Value: "no-such-token"})
	w := httptest.NewRecorder()
	next := &mockNextHandler{}

	if err := s.ServeHTTP(w, r, next); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if next.called {
		t.Error("stale cookie must not pass through")
	}
	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want redirect to login", w.Code)
	}
}

func TestServeHTTP_Callback_Success(t *testing.T) {
	validator := &stubValidator{
		auth: &domain.Authentication{
			Principal:  "alice",
			Attributes: domain.Attributes{"email": "alice@x.com"},
		},
	}
	s, store := newTestCASAuth(t, validator)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/cas/callback?ticket=ST-1", nil)
	r.AddCookie(&http.Cookie{Name: "cas_return_to", Value: url.QueryEscape("/reports?q=1")})
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if validator.gotTicket != "ST-1" {
		t.Errorf("validated ticket = %q, want %q", validator.gotTicket, "ST-1")
	}
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); loc != "/reports?q=1" {
		t.Errorf("Location = %q, want the saved return-to target", loc)
	}

	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "cas_session" && c.Value != "" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("session cookie not set after successful validation")
	}

	sess, err := store.Get(sessionCookie.Value)
	if err != nil {
		t.Fatalf("stored session: %v", err)
	}
	if sess.Principal != "alice" || sess.Ticket != "ST-1" {
		t.Errorf("stored session = %+v", sess)
	}
}

func TestServeHTTP_Callback_RejectedTicket(t *testing.T) {
	validator := &stubValidator{
		err: &domain.AuthenticationError{Code: "INVALID_TICKET", Description: "ticket expired"},
	}
	s, store := newTestCASAuth(t, validator)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/cas/callback?ticket=ST-bad", nil)
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == "cas_session" && c.Value != "" {
			t.Error("no session cookie may be set for a rejected ticket")
		}
	}
	if store.Len() != 0 {
		t.Error("no session may be created for a rejected ticket")
	}
}

func TestServeHTTP_Callback_CASUnreachable(t *testing.T) {
	validator := &stubValidator{
		err: domain.TransportError("cas server unreachable", nil),
	}
	s, _ := newTestCASAuth(t, validator)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/cas/callback?ticket=ST-1", nil)
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestServeHTTP_Callback_MissingTicketStillValidated(t *testing.T) {
	validator := &stubValidator{
		err: &domain.AuthenticationError{Code: "INVALID_TICKET_SPEC"},
	}
	s, _ := newTestCASAuth(t, validator)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/cas/callback", nil)
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	// The absent ticket is presented to the CAS server for rejection; the
	// middleware owns no ticket syntax rules.
	if validator.calls != 1 {
		t.Fatalf("validator calls = %d, want 1", validator.calls)
	}
	if validator.gotTicket != "" {
		t.Errorf("ticket = %q, want empty", validator.gotTicket)
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestServeHTTP_Logout_ClearsAuthAndRedirects(t *testing.T) {
	s, store := newTestCASAuth(t, &stubValidator{})

	cookie := authenticate(t, store, &domain.Session{Principal: "alice", Ticket: "ST-1"})

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/cas/logout", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if loc := w.Header().Get("Location"); loc != "https://cas.example.com/cas/logout" {
		t.Errorf("Location = %q, want the CAS logout endpoint", loc)
	}

	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "cas_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie was not cleared")
	}

	// Default logout keeps the record but strips the authentication state.
	sess, err := store.Get(cookie.Value)
	if err != nil {
		t.Fatalf("session record should survive default logout: %v", err)
	}
	if sess.Authenticated() {
		t.Error("session should no longer authenticate after logout")
	}
}

func TestServeHTTP_Logout_DestroySession(t *testing.T) {
	s, store := newTestCASAuth(t, &stubValidator{})
	s.DestroySession = true

	cookie := authenticate(t, store, &domain.Session{Principal: "alice"})

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/cas/logout", nil)
	r.AddCookie(cookie)
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if _, err := store.Get(cookie.Value); err == nil {
		t.Error("session record should be gone after destroy_session logout")
	}
}

func TestServeHTTP_SingleLogout_DestroysSessionByTicket(t *testing.T) {
	s, store := newTestCASAuth(t, &stubValidator{})

	cookie := authenticate(t, store, &domain.Session{Principal: "alice", Ticket: "ST-1"})

	form := url.Values{}
	form.Set("logoutRequest", `<samlp:LogoutRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol">
		<samlp:SessionIndex>ST-1</samlp:SessionIndex>
	</samlp:LogoutRequest>`)

	r := httptest.NewRequest(http.MethodPost, "https://app.example.com/cas/callback", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if _, err := store.Get(cookie.Value); err == nil {
		t.Error("session should be destroyed by the logout notification")
	}
}

func TestServeHTTP_SingleLogout_RawBody(t *testing.T) {
	s, store := newTestCASAuth(t, &stubValidator{})

	cookie := authenticate(t, store, &domain.Session{Principal: "alice", Ticket: "ST-2"})

	body := `<logoutRequest><sessionIndex>ST-2</sessionIndex></logoutRequest>`
	r := httptest.NewRequest(http.MethodPost, "https://app.example.com/cas/callback", strings.NewReader(body))
	r.Header.Set("Content-Type", "text/xml")
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if _, err := store.Get(cookie.Value); err == nil {
		t.Error("session should be destroyed by the raw-body notification")
	}
}

func TestServeHTTP_SingleLogout_InvalidDocument(t *testing.T) {
	s, _ := newTestCASAuth(t, &stubValidator{})

	body := `<serviceResponse><user>alice</user></serviceResponse>`
	r := httptest.NewRequest(http.MethodPost, "https://app.example.com/cas/callback", strings.NewReader(body))
	r.Header.Set("Content-Type", "text/xml")
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp domain.JSONErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error.Code != domain.ErrCodeNoValidLogout.String() {
		t.Errorf("error code = %q, want %q", resp.Error.Code, domain.ErrCodeNoValidLogout)
	}
}

func TestServeHTTP_SingleLogout_UnknownTicketStillOK(t *testing.T) {
	s, _ := newTestCASAuth(t, &stubValidator{})

	body := `<logoutRequest><sessionIndex>ST-gone</sessionIndex></logoutRequest>`
	r := httptest.NewRequest(http.MethodPost, "https://app.example.com/cas/callback", strings.NewReader(body))
	r.Header.Set("Content-Type", "text/xml")
	w := httptest.NewRecorder()

	if err := s.ServeHTTP(w, r, &mockNextHandler{}); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d for an already-gone session", w.Code, http.StatusOK)
	}
}

func TestServeHTTP_DevMode_BypassesCAS(t *testing.T) {
	validator := &stubValidator{}
	s, _ := newTestCASAuth(t, validator)
	s.DevMode = true
	s.DevModeUser = "dev"
	s.devAttributes = domain.Attributes{"email": "dev@example.com"}

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports", nil)
	w := httptest.NewRecorder()
	next := &mockNextHandler{}

	if err := s.ServeHTTP(w, r, next); err != nil {
		t.Fatalf("ServeHTTP error: %v", err)
	}

	if !next.called {
		t.Fatal("dev mode should pass every request through")
	}
	if validator.calls != 0 {
		t.Error("dev mode must never contact the CAS server")
	}

	sess := SessionFromContext(next.request.Context())
	if sess == nil || sess.Principal != "dev" {
		t.Errorf("session = %+v, want dev principal", sess)
	}
	if got := sess.Attributes.Get("email"); got != "dev@example.com" {
		t.Errorf("email = %q, want %q", got, "dev@example.com")
	}
}

func TestSessionValues(t *testing.T) {
	s, _ := newTestCASAuth(t, &stubValidator{})

	sess := &domain.Session{
		Principal:  "alice",
		Attributes: domain.Attributes{"email": "alice@x.com"},
	}
	ctx := context.WithValue(context.Background(), sessionContextKey{}, sess)

	values := s.SessionValues(ctx)
	if values["cas_user"] != "alice" {
		t.Errorf("cas_user = %v, want alice", values["cas_user"])
	}
	if _, ok := values["cas_userinfo"]; !ok {
		t.Error("cas_userinfo missing despite attributes being present")
	}

	if got := s.SessionValues(context.Background()); got != nil {
		t.Errorf("SessionValues without session = %v, want nil", got)
	}
}

func TestValidateReturnTo(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "/"},
		{"plain path", "/reports", "/reports"},
		{"path with query", "/reports?q=1", "/reports?q=1"},
		{"absolute url", "https://evil.com/", "/"},
		{"protocol relative", "//evil.com/", "/"},
		{"encoded protocol relative", "%2F%2Fevil.com", "/"},
		{"javascript scheme", "javascript:alert(1)", "/"},
		{"no leading slash", "reports", "/"},
		{"newline injection", "/a\r\nSet-Cookie: x", "/"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := validateReturnTo(tc.input); got != tc.want {
				t.Errorf("validateReturnTo(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestResolveServiceURL(t *testing.T) {
	t.Run("configured service url wins", func(t *testing.T) {
		s, _ := newTestCASAuth(t, &stubValidator{})
		s.serviceURL = &url.URL{Scheme: "https", Host: "app.example.com", Path: "/cas/callback"}

		r := httptest.NewRequest(http.MethodGet, "http://other.example.com/x", nil)
		if got := s.resolveServiceURL(r).String(); got != "https://app.example.com/cas/callback" {
			t.Errorf("service url = %q", got)
		}
	})

	t.Run("derived from forwarded proto", func(t *testing.T) {
		s, _ := newTestCASAuth(t, &stubValidator{})

		r := httptest.NewRequest(http.MethodGet, "http://app.example.com/x", nil)
		r.Header.Set("X-Forwarded-Proto", "https")
		if got := s.resolveServiceURL(r).String(); got != "https://app.example.com/cas/callback" {
			t.Errorf("service url = %q", got)
		}
	})
}
