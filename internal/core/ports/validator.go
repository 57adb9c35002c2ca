package ports

import (
	"context"
	"net/url"

	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
)

// TicketValidator is the port interface for CAS service ticket validation.
type TicketValidator interface {
	// Validate redeems a service ticket against the CAS server.
	// A nil error means the server vouched for the identity. An explicit
	// rejection is returned as *domain.AuthenticationError; transport and
	// decoding failures as *domain.AppError. Validate performs no retries;
	// retry and timeout policy belong to the caller and the injected
	// transport.
	Validate(ctx context.Context, serviceURL *url.URL, ticket string) (*domain.Authentication, error)
}
