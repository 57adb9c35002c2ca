package cas

import (
	"github.com/schl3ck/cas-authentication-middleware/internal/adapters/driven/xmlmap"
	"github.com/schl3ck/cas-authentication-middleware/internal/core/domain"
)

// ExtractLogoutTicket parses a pushed single-logout document and returns the
// service ticket identifier being invalidated.
//
// Malformed XML fails with malformed_document. A well-formed document that
// lacks the logoutRequest root or its sessionIndex field fails with
// NO_VALID_CAS_LOGOUT: the document was valid XML but not a CAS logout
// notification. The session index is returned verbatim; it is an opaque
// ticket identifier.
func ExtractLogoutTicket(data []byte) (string, error) {
	root, err := xmlmap.Decode(data)
	if err != nil {
		return "", err
	}

	if root.Name != "logoutrequest" {
		return "", domain.NoValidLogoutError("document is not a CAS logout request")
	}

	ticket := root.FirstText("sessionindex")
	if ticket == "" {
		return "", domain.NoValidLogoutError("logout request has no session index")
	}

	return ticket, nil
}
