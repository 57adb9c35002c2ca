package casauth

import (
	"net/url"
	"time"

	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
)

// Supported session store kinds.
const (
	StoreMemory = "memory"
	StoreJWT    = "jwt"
)

var supportedVersions = map[string]bool{
	"1.0": true,
	"2.0": true,
	"3.0": true,
}

// Config holds the configuration for the CAS authentication plugin.
// It is frozen at provision time; no component runs before Validate passes.
type Config struct {
	// CASServerURL is the base URL of the CAS server (required).
	// Login, logout and validation endpoints are derived from it.
	CASServerURL string `json:"cas_server_url,omitempty"`

	// ServiceURL is the service URL registered with the CAS server.
	// If not set, it is derived per request as {scheme}://{host}/cas/callback.
	ServiceURL string `json:"service_url,omitempty"`

	// Version is the CAS protocol version: "1.0", "2.0" or "3.0".
	// Defaults to "2.0". Only 3.0 changes the validation endpoint path.
	Version string `json:"version,omitempty"`

	// Renew forces fresh credential entry at the CAS server even if the
	// user has an existing CAS session. When false the renew parameter is
	// omitted from the login redirect entirely.
	Renew bool `json:"renew,omitempty"`

	// SessionUserKey is the key under which the principal is exposed to
	// downstream handlers. Defaults to "cas_user".
	SessionUserKey string `json:"session_user_key,omitempty"`

	// SessionInfoKey is the key under which the attributes mapping is
	// exposed to downstream handlers. Defaults to "cas_userinfo".
	SessionInfoKey string `json:"session_info_key,omitempty"`

	// DestroySession selects wholesale session destruction on logout.
	// When false only the authentication keys are cleared and the session
	// record survives until it expires.
	DestroySession bool `json:"destroy_session,omitempty"`

	// SessionStoreType selects the session store: "memory" (default) or
	// "jwt". Single logout requires the memory store.
	SessionStoreType string `json:"session_store,omitempty"`

	// SessionDuration is how long sessions last (e.g., "8h").
	// Defaults to "8h" if not specified.
	SessionDuration string `json:"session_duration,omitempty"`

	// SessionCookieName is the name of the session cookie.
	// Defaults to "cas_session".
	SessionCookieName string `json:"session_cookie_name,omitempty"`

	// JWTKeyFile is the path to the RSA private key (PEM) signing JWT
	// session tokens. Required when session_store is "jwt".
	JWTKeyFile string `json:"jwt_key_file,omitempty"`

	// UserHeader, when set, exports the principal to downstream handlers
	// as an HTTP header. Must start with "X-". The header is stripped from
	// inbound requests so clients cannot spoof it.
	UserHeader string `json:"user_header,omitempty"`

	// DevMode short-circuits authentication with a fixed identity instead
	// of contacting the CAS server. Local development only; never enable
	// in production.
	DevMode bool `json:"dev_mode,omitempty"`

	// DevModeUser is the principal used when DevMode is enabled.
	DevModeUser string `json:"dev_mode_user,omitempty"`

	// DevModeInfo is the attribute mapping used when DevMode is enabled.
	DevModeInfo map[string]string `json:"dev_mode_info,omitempty"`

	// MetricsEnabled enables Prometheus metrics exposition.
	// Defaults to false.
	MetricsEnabled bool `json:"metrics_enabled,omitempty"`
}

// Validate checks if the configuration is valid. All violations are
// invalid_configuration errors; provisioning aborts on the first one.
func (c *Config) Validate() error {
	if c.CASServerURL == "" {
		return domain.ConfigError("cas_server_url is required")
	}
	if u, err := url.Parse(c.CASServerURL); err != nil || !u.IsAbs() {
		return domain.ConfigError("cas_server_url must be an absolute URL")
	}

	if c.ServiceURL != "" {
		if u, err := url.Parse(c.ServiceURL); err != nil || !u.IsAbs() {
			return domain.ConfigError("service_url must be an absolute URL")
		}
	}

	if c.Version != "" && !supportedVersions[c.Version] {
		return domain.ConfigError("version must be one of 1.0, 2.0, 3.0")
	}

	switch c.SessionStoreType {
	case "", StoreMemory:
	case StoreJWT:
		if c.JWTKeyFile == "" {
			return domain.ConfigError("jwt_key_file is required when session_store is jwt")
		}
	default:
		return domain.ConfigError("session_store must be memory or jwt")
	}

	if c.SessionDuration != "" {
		if _, err := time.ParseDuration(c.SessionDuration); err != nil {
			return domain.ConfigError("session_duration is not a valid duration")
		}
	}

	if c.UserHeader != "" && !domain.IsValidHeaderName(c.UserHeader) {
		return domain.ConfigError("user_header must start with X- and contain only A-Za-z0-9-")
	}

	if c.DevMode && c.DevModeUser == "" {
		return domain.ConfigError("dev_mode_user is required when dev_mode is enabled")
	}

	return nil
}

// SetDefaults applies default values to unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = "2.0"
	}
	if c.SessionUserKey == "" {
		c.SessionUserKey = "cas_user"
	}
	if c.SessionInfoKey == "" {
		c.SessionInfoKey = "cas_userinfo"
	}
	if c.SessionStoreType == "" {
		c.SessionStoreType = StoreMemory
	}
	if c.SessionDuration == "" {
		c.SessionDuration = "8h"
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = "cas_session"
	}
}
