package casauth

import (
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
)

// parseCaddyfile sets up the handler from Caddyfile tokens.
//
// Syntax:
//
//	cas_auth {
//	    cas_server_url <url>
//	    service_url <url>
//	    version <1.0|2.0|3.0>
//	    renew
//	    session_user_key <name>
//	    session_info_key <name>
//	    destroy_session
//	    session_store <memory|jwt>
//	    session_duration <duration>
//	    session_cookie_name <name>
//	    jwt_key_file <path>
//	    user_header <name>
//	    dev_mode
//	    dev_mode_user <name>
//	    dev_mode_info <key> <value>
//	    metrics <enabled|off>
//	}
//
// Unrecognized subdirectives are rejected outright; permissive merging of
// unknown options is a latent source of misconfiguration.
func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var s CASAuth
	err := s.UnmarshalCaddyfile(h.Dispenser)
	return &s, err
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler.
func (s *CASAuth) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	d.Next() // consume directive name

	for d.NextBlock(0) {
		switch d.Val() {
		case "cas_server_url":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.CASServerURL = d.Val()

		case "service_url":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.ServiceURL = d.Val()

		case "version":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.Config.Version = d.Val()

		case "renew":
			s.Renew = true

		case "session_user_key":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.SessionUserKey = d.Val()

		case "session_info_key":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.SessionInfoKey = d.Val()

		case "destroy_session":
			s.DestroySession = true

		case "session_store":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.SessionStoreType = d.Val()

		case "session_duration":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.SessionDuration = d.Val()

		case "session_cookie_name":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.SessionCookieName = d.Val()

		case "jwt_key_file":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.JWTKeyFile = d.Val()

		case "user_header":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.UserHeader = d.Val()

		case "dev_mode":
			s.DevMode = true

		case "dev_mode_user":
			if !d.NextArg() {
				return d.ArgErr()
			}
			s.DevModeUser = d.Val()

		case "dev_mode_info":
			args := d.RemainingArgs()
			if len(args) != 2 {
				return d.ArgErr()
			}
			if s.DevModeInfo == nil {
				s.DevModeInfo = make(map[string]string)
			}
			s.DevModeInfo[args[0]] = args[1]

		case "metrics":
			if !d.NextArg() {
				return d.ArgErr()
			}
			switch d.Val() {
			case "enabled", "on":
				s.MetricsEnabled = true
			case "disabled", "off":
				s.MetricsEnabled = false
			default:
				return d.Errf("metrics must be 'enabled' or 'off', got %q", d.Val())
			}

		default:
			return d.Errf("unrecognized subdirective: %s", d.Val())
		}
	}

	s.Config.SetDefaults()
	return nil
}
