package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"dealroom/internal/identity"
	id "dealroom/pkg/domain"
)

// WithIdentity places who on the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithIdentity(req *http.Request, who identity.Identity) *http.Request {
	return req.WithContext(identity.WithIdentity(req.Context(), who))
}

// As builds a request identity for role with a fresh user ID when userID is nil.
func As(role identity.Role, userID id.UserID) identity.Identity {
	if userID.IsNil() {
		userID = id.UserID(uuid.New())
	}
	return identity.Identity{ID: userID, Role: role}
}
