// Package cas implements the CAS protocol pieces: service ticket validation
// against a CAS server and single-logout notification parsing.
package cas

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"go.uber.org/zap"

	"github.com/schl3ck/cas-authentication-middleware/internal/adapters/driven/xmlmap"
	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
)

const userAgent = "cas-authentication-middleware"

// Protocol versions supported by the validator. Version selection only
// affects the validation endpoint path; the response format is interpreted
// uniformly through the normalized decoder.
const (
	Version10 = "1.0"
	Version20 = "2.0"
	Version30 = "3.0"
)

// ServiceTicketValidator validates service tickets against a CAS server.
// Each call is independent; the validator holds no mutable state and is safe
// for concurrent use.
type ServiceTicketValidator struct {
	client    *http.Client
	serverURL *url.URL
	version   string
	logger    *zap.Logger
}

// NewServiceTicketValidator creates a validator for the given CAS server
// base URL and protocol version. The injected client owns timeout policy;
// the validator never retries.
func NewServiceTicketValidator(client *http.Client, serverURL *url.URL, version string, logger *zap.Logger) *ServiceTicketValidator {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceTicketValidator{
		client:    client,
		serverURL: serverURL,
		version:   version,
		logger:    logger,
	}
}

// ValidationURL builds the validation endpoint URL for the configured
// protocol version. Version 3.0 uses /p3/serviceValidate; 1.0 and 2.0 use
// /serviceValidate. The query carries exactly service and ticket.
func (v *ServiceTicketValidator) ValidationURL(serviceURL *url.URL, ticket string) string {
	u := *v.serverURL
	if v.version == Version30 {
		u.Path = path.Join(u.Path, "p3", "serviceValidate")
	} else {
		u.Path = path.Join(u.Path, "serviceValidate")
	}

	q := url.Values{}
	q.Set("service", serviceURL.String())
	q.Set("ticket", ticket)
	u.RawQuery = q.Encode()

	return u.String()
}

// Validate redeems a service ticket. An empty ticket still produces a
// request; the server rejects it with an authenticationFailure element.
func (v *ServiceTicketValidator) Validate(ctx context.Context, serviceURL *url.URL, ticket string) (*domain.Authentication, error) {
	u := v.ValidationURL(serviceURL, ticket)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, domain.TransportError("build validation request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	v.logger.Debug("validating service ticket",
		zap.String("url", u),
		zap.String("version", v.version),
	)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, domain.TransportError("reach CAS server", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.TransportError("read validation response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.TransportError(
			fmt.Sprintf("CAS server returned status %d", resp.StatusCode), nil)
	}

	return interpretResponse(body)
}

// interpretResponse classifies a decoded validation response.
// An authenticationFailure element wins over a simultaneously present
// success element: ambiguous responses default to failure. A response with
// neither element is a protocol violation and also fails.
func interpretResponse(body []byte) (*domain.Authentication, error) {
	root, err := xmlmap.Decode(body)
	if err != nil {
		return nil, err
	}

	if f := root.First("authenticationfailure"); f != nil {
		return nil, &domain.AuthenticationError{
			Code:        f.Attr["code"],
			Description: f.Text,
		}
	}

	if s := root.First("authenticationsuccess"); s != nil {
		auth := &domain.Authentication{Principal: s.FirstText("user")}
		if attrs := s.First("attributes"); attrs != nil {
			auth.Attributes = decodeAttributes(attrs)
		}
		return auth, nil
	}

	return nil, &domain.AuthenticationError{Description: "authentication failed"}
}
